// Package mood maps a detected facial expression to playable
// recommendations. Detection itself happens client-side; this package takes
// the resulting mood label and finds matching playlists and tracks.
package mood

import (
	"context"

	log "github.com/sirupsen/logrus"

	"moodsync/gemini"
	"moodsync/models"
)

// moodToTags maps face-api expression labels to playlist tags.
var moodToTags = map[string][]string{
	"happy":     {"happy", "upbeat", "pop"},
	"sad":       {"sad", "acoustic", "mellow"},
	"neutral":   {"chill", "lofi", "ambient"},
	"surprised": {"energetic", "electronic", "dance"},
	"angry":     {"intense", "rock", "metal"},
	"fearful":   {"ambient", "calm", "chill"},
	"disgusted": {"intense", "experimental"},
}

// blurbFallbacks are static intros when Gemini is unavailable.
var blurbFallbacks = map[string]string{
	"happy":     "Something bright to keep it going.",
	"sad":       "Softer sounds for a heavy moment.",
	"neutral":   "Easy listening while you settle in.",
	"surprised": "High energy to match the jolt.",
	"angry":     "Loud enough to burn it off.",
	"fearful":   "Calm tracks to slow things down.",
	"disgusted": "Something different to reset the palate.",
}

// Library is the slice of the track database the recommender reads.
type Library interface {
	PlaylistsByTags(tags []string, limit int) ([]models.Playlist, error)
	PlaylistTracks(id string) ([]models.Track, error)
}

// TagSearcher finds tracks by tag in an external catalog when the local
// library has nothing.
type TagSearcher interface {
	SearchByTags(ctx context.Context, tags []string, limit int) ([]models.Track, error)
}

// Recommendation is one mood lookup result.
type Recommendation struct {
	Mood      string            `json:"mood"`
	Blurb     string            `json:"blurb,omitempty"`
	Playlists []models.Playlist `json:"playlists"`
	Tracks    []models.Track    `json:"tracks,omitempty"`
}

type Service struct {
	library  Library
	searcher TagSearcher
	logger   *log.Entry
}

// NewService creates the recommender. searcher may be nil when no external
// catalog is configured.
func NewService(library Library, searcher TagSearcher) *Service {
	return &Service{
		library:  library,
		searcher: searcher,
		logger:   log.WithFields(log.Fields{"module": "mood"}),
	}
}

// TagsForMood resolves the tag set for a mood label. Unknown labels search
// by the label itself rather than failing.
func TagsForMood(mood string) []string {
	if tags, ok := moodToTags[mood]; ok {
		return tags
	}
	return []string{mood}
}

// Recommend returns playlists matching the mood's tags, with a static
// default pair when the library has none, plus catalog tracks when a tag
// searcher is wired.
func (s *Service) Recommend(ctx context.Context, mood string, max int) Recommendation {
	if max <= 0 {
		max = 5
	}
	tags := TagsForMood(mood)

	playlists, err := s.library.PlaylistsByTags(tags, max)
	if err != nil {
		s.logger.Warnf("playlist lookup for %s failed: %v", mood, err)
	}
	if len(playlists) == 0 {
		playlists = defaultPlaylists()
	}

	rec := Recommendation{
		Mood:      mood,
		Playlists: playlists,
	}

	if s.searcher != nil {
		tracks, err := s.searcher.SearchByTags(ctx, tags, max)
		if err != nil {
			s.logger.Warnf("catalog tag search for %s failed: %v", mood, err)
		}
		rec.Tracks = tracks
	}

	rec.Blurb = s.blurb(ctx, mood, playlists)
	return rec
}

// PlaylistTracks resolves a recommended playlist into its track list. The
// static defaults have no stored tracks; callers fall back to catalog
// search for those.
func (s *Service) PlaylistTracks(id string) ([]models.Track, error) {
	return s.library.PlaylistTracks(id)
}

func (s *Service) blurb(ctx context.Context, mood string, playlists []models.Playlist) string {
	titles := make([]string, 0, len(playlists))
	for _, p := range playlists {
		titles = append(titles, p.Title)
	}
	if text := gemini.MoodBlurb(ctx, mood, titles); text != "" {
		return text
	}
	if fallback, ok := blurbFallbacks[mood]; ok {
		return fallback
	}
	return "Here's what fits right now."
}

func defaultPlaylists() []models.Playlist {
	return []models.Playlist{
		{ID: "default-1", Title: "Chill Hits", Description: "Relaxed beats to match your mood"},
		{ID: "default-2", Title: "Top Vibes", Description: "Popular tracks to lift spirits"},
	}
}
