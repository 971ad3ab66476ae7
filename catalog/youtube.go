package catalog

import (
	"context"
	"fmt"
	"html"
	"os/exec"
	"strconv"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"moodsync/models"
)

// YouTube searches the music category of the Data API. Watch URLs are not
// directly playable; ResolveStream shells out to yt-dlp for the audio URL
// just before the track is loaded.
type YouTube struct {
	apiKey string
	limit  int
	logger *log.Entry
}

func NewYouTube(apiKey string, limit int) *YouTube {
	if limit <= 0 {
		limit = 15
	}
	return &YouTube{
		apiKey: apiKey,
		limit:  limit,
		logger: log.WithFields(log.Fields{"module": "catalog", "source": "youtube"}),
	}
}

func (y *YouTube) Name() models.TrackSource {
	return models.SourceYoutube
}

func (y *YouTube) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	span := sentry.StartSpan(ctx, "youtube.search")
	span.Description = "Search YouTube API"
	span.SetTag("query", query)
	defer span.Finish()

	if limit <= 0 || limit > y.limit {
		limit = y.limit
	}

	service, err := ytapi.NewService(ctx, option.WithAPIKey(y.apiKey))
	if err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("error creating YouTube client: %w", err)
	}

	call := service.Search.List([]string{"snippet"}).
		Q(query + " (official music video|official audio|lyrics|audio|Audio)").
		MaxResults(int64(limit)).
		Type("video").
		VideoCategoryId("10")

	response, err := call.Do()
	if err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("error querying YouTube: %w", err)
	}

	videoIDs := make([]string, 0)
	titles := make(map[string]string)
	channels := make(map[string]string)
	for _, item := range response.Items {
		if item.Id.Kind == "youtube#video" {
			videoIDs = append(videoIDs, item.Id.VideoId)
			titles[item.Id.VideoId] = html.UnescapeString(item.Snippet.Title)
			channels[item.Id.VideoId] = html.UnescapeString(item.Snippet.ChannelTitle)
		}
	}
	if len(videoIDs) == 0 {
		span.Status = sentry.SpanStatusOK
		return nil, nil
	}

	// One batch call for durations instead of N
	videoCall := service.Videos.List([]string{"contentDetails"}).Id(videoIDs...)
	videoResponse, err := videoCall.Do()
	if err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("error getting video details: %w", err)
	}

	tracks := make([]models.Track, 0, len(videoResponse.Items))
	for _, item := range videoResponse.Items {
		seconds := parseISODuration(item.ContentDetails.Duration)
		if seconds > 12*60 {
			continue
		}
		tracks = append(tracks, models.Track{
			ID:       "youtube-" + item.Id,
			Title:    titles[item.Id],
			Artist:   channels[item.Id],
			URL:      "https://www.youtube.com/watch?v=" + item.Id,
			Duration: seconds,
			Source:   models.SourceYoutube,
		})
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(tracks))
	y.logger.Tracef("found %d videos", len(tracks))
	return tracks, nil
}

// ResolveStream swaps the watch URL for a direct audio stream URL via
// yt-dlp. Up to three attempts, matching yt-dlp's flakiness in practice.
func (y *YouTube) ResolveStream(track models.Track) (models.Track, error) {
	logger := y.logger.WithFields(log.Fields{"track": track.ID})

	span := sentry.StartSpan(context.Background(), "youtube.get_stream")
	span.Description = "Get audio stream URL via yt-dlp"
	span.SetTag("track_id", track.ID)
	defer span.Finish()

	var output []byte
	var err error
	for i := range 3 {
		cmd := exec.Command("yt-dlp",
			"-f", "bestaudio",
			"--no-playlist",
			"--socket-timeout", "10",
			"--extractor-retries", "1",
			"--no-audio-multistreams",
			"-g",
			"--no-warnings",
			track.URL)

		output, err = cmd.CombinedOutput()
		if err != nil {
			logger.WithFields(log.Fields{
				"attempt": i + 1,
				"error":   err,
				"output":  string(output),
			}).Error("yt-dlp command failed")

			if i == 2 {
				span.Status = sentry.SpanStatusInternalError
				sentry.CaptureException(fmt.Errorf("yt-dlp error after 3 attempts: %v, output: %s", err, string(output)))
				return track, fmt.Errorf("yt-dlp error after 3 attempts: %v", err)
			}
			continue
		}
		break
	}

	track.URL = strings.TrimSpace(string(output))
	span.Status = sentry.SpanStatusOK
	return track, nil
}

// parseISODuration converts the API's ISO-8601 duration to seconds.
func parseISODuration(duration string) float64 {
	duration = strings.TrimPrefix(duration, "PT")

	var seconds float64
	if idx := strings.Index(duration, "H"); idx != -1 {
		h, _ := strconv.ParseFloat(duration[:idx], 64)
		seconds += h * 3600
		duration = duration[idx+1:]
	}
	if idx := strings.Index(duration, "M"); idx != -1 {
		m, _ := strconv.ParseFloat(duration[:idx], 64)
		seconds += m * 60
		duration = duration[idx+1:]
	}
	if idx := strings.Index(duration, "S"); idx != -1 {
		s, _ := strconv.ParseFloat(duration[:idx], 64)
		seconds += s
	}
	return seconds
}
