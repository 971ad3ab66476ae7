package catalog

import (
	"context"
	"fmt"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"moodsync/models"
)

// Spotify searches track metadata via the client-credentials flow. Only the
// 30-second preview clip is playable without a user session, so results
// without a preview URL are dropped.
type Spotify struct {
	client *spotifyclient.Client
	logger *log.Entry
}

func NewSpotify(clientID, clientSecret string) (*Spotify, error) {
	ctx := context.Background()
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	token, err := config.Token(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return nil, fmt.Errorf("spotify token exchange failed: %w", err)
	}

	httpClient := spotifyauth.New().Client(ctx, token)
	return &Spotify{
		client: spotifyclient.New(httpClient),
		logger: log.WithFields(log.Fields{"module": "catalog", "source": "spotify"}),
	}, nil
}

func (s *Spotify) Name() models.TrackSource {
	return models.SourceSpotify
}

func (s *Spotify) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	span := sentry.StartSpan(ctx, "spotify.search")
	span.Description = "Search Spotify API"
	span.SetTag("query", query)
	defer span.Finish()

	results, err := s.client.Search(ctx, query, spotifyclient.SearchTypeTrack, spotifyclient.Limit(limit))
	if err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("spotify search failed: %w", err)
	}

	var tracks []models.Track
	if results.Tracks != nil {
		for _, item := range results.Tracks.Tracks {
			if item.PreviewURL == "" {
				continue
			}
			artists := make([]string, 0, len(item.Artists))
			for _, artist := range item.Artists {
				artists = append(artists, artist.Name)
			}
			image := ""
			if len(item.Album.Images) > 0 {
				image = item.Album.Images[0].URL
			}
			tracks = append(tracks, models.Track{
				ID:       "spotify-" + string(item.ID),
				Title:    item.Name,
				Artist:   strings.Join(artists, ", "),
				Album:    item.Album.Name,
				URL:      item.PreviewURL,
				Image:    image,
				Duration: float64(item.Duration) / 1000,
				Source:   models.SourceSpotify,
			})
		}
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(tracks))
	s.logger.Tracef("found %d tracks", len(tracks))
	return tracks, nil
}
