package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"moodsync/models"
)

const jamendoBaseURL = "https://api.jamendo.com/v3.0"

// Jamendo searches the Jamendo free-music API. Results carry a directly
// playable mp3 URL, so they feed the audio output without a resolver step.
type Jamendo struct {
	clientID   string
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

func NewJamendo(clientID string) *Jamendo {
	return &Jamendo{
		clientID: clientID,
		baseURL:  jamendoBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.WithFields(log.Fields{"module": "catalog", "source": "jamendo"}),
	}
}

type jamendoResponse struct {
	Headers struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	} `json:"headers"`
	Results []jamendoTrack `json:"results"`
}

type jamendoTrack struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ArtistName string  `json:"artist_name"`
	AlbumName  string  `json:"album_name"`
	Duration   float64 `json:"duration"`
	Audio      string  `json:"audio"`
	Image      string  `json:"image"`
}

func (j *Jamendo) Name() models.TrackSource {
	return models.SourceJamendo
}

func (j *Jamendo) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	params := url.Values{}
	params.Set("search", query)
	return j.fetch(ctx, params, limit)
}

// SearchByTags queries by fuzzy tags, which is how mood playlists are
// sourced when the local library has nothing matching.
func (j *Jamendo) SearchByTags(ctx context.Context, tags []string, limit int) ([]models.Track, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	params := url.Values{}
	fuzzy := tags[0]
	for _, tag := range tags[1:] {
		fuzzy += "+" + tag
	}
	params.Set("fuzzytags", fuzzy)
	params.Set("order", "popularity_total")
	return j.fetch(ctx, params, limit)
}

func (j *Jamendo) fetch(ctx context.Context, params url.Values, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 10
	}
	params.Set("client_id", j.clientID)
	params.Set("format", "json")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("audioformat", "mp32")

	u := j.baseURL + "/tracks/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jamendo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jamendo API returned status %d", resp.StatusCode)
	}

	var body jamendoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("jamendo decode failed: %w", err)
	}
	if body.Headers.ErrorMessage != "" {
		return nil, fmt.Errorf("jamendo API error: %s", body.Headers.ErrorMessage)
	}

	tracks := make([]models.Track, 0, len(body.Results))
	for _, r := range body.Results {
		if r.Audio == "" {
			continue
		}
		tracks = append(tracks, models.Track{
			ID:       "jamendo-" + r.ID,
			Title:    r.Name,
			Artist:   r.ArtistName,
			Album:    r.AlbumName,
			URL:      r.Audio,
			Image:    r.Image,
			Duration: r.Duration,
			Source:   models.SourceJamendo,
		})
	}
	j.logger.Tracef("found %d tracks", len(tracks))
	return tracks, nil
}
