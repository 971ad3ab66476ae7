// Package gemini wraps the Gemini API for short generated copy. Callers get
// an empty string on any failure and are expected to fall back to static
// text; generation is flavor, never a dependency.
package gemini

import (
	"context"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"moodsync/config"
)

const model = "gemini-2.0-flash"

func generate(ctx context.Context, prompt string) string {
	if config.Config == nil || !config.Config.Gemini.Enabled {
		return ""
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.Config.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Errorf("failed to create gemini client: %v", err)
		sentry.CaptureException(err)
		return ""
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		log.Errorf("failed to generate content: %v", err)
		sentry.CaptureException(err)
		return ""
	}

	return strings.TrimSpace(resp.Text())
}

// MoodBlurb produces a one-line intro for a mood-based recommendation set.
func MoodBlurb(ctx context.Context, mood string, playlistTitles []string) string {
	prompt := PersonalityPrompt + `

Write one short sentence introducing music picked for someone who looks ` + mood + `.
Playlists on offer: ` + strings.Join(playlistTitles, ", ") + `.
Plain text, no markdown, no emojis.`

	return generate(ctx, prompt)
}

// TrackBlurb produces a one-line reaction to a track being loaded.
func TrackBlurb(ctx context.Context, title, artist string) string {
	prompt := PersonalityPrompt + `

Write one short sentence acknowledging that "` + title + `" by ` + artist + ` is starting.
Plain text, no markdown, no emojis.`

	return generate(ctx, prompt)
}
