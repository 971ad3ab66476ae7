package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"moodsync/models"
)

// PagalWorld searches pagalworld mirrors. The JSON endpoint is unofficial
// and flaky, so an HTML scrape of the search page backs it up.
type PagalWorld struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

func NewPagalWorld() *PagalWorld {
	return &PagalWorld{
		baseURL: "https://pagalworld.com.se",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.WithFields(log.Fields{"module": "catalog", "source": "pagalworld"}),
	}
}

type pagalworldItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	AudioURL string `json:"audio_url"`
	Image    string `json:"image"`
}

func (p *PagalWorld) Name() models.TrackSource {
	return models.SourcePagalWorld
}

func (p *PagalWorld) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 10
	}

	tracks, err := p.searchJSON(ctx, query, limit)
	if err == nil && len(tracks) > 0 {
		return tracks, nil
	}
	if err != nil {
		p.logger.Debugf("JSON endpoint failed (%v), falling back to HTML scrape", err)
	}
	return p.scrapeSearch(ctx, query, limit)
}

func (p *PagalWorld) searchJSON(ctx context.Context, query string, limit int) ([]models.Track, error) {
	u := fmt.Sprintf("%s/api/search?q=%s&limit=%d", p.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagalworld request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pagalworld API returned status %d", resp.StatusCode)
	}

	var items []pagalworldItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("pagalworld decode failed: %w", err)
	}

	tracks := make([]models.Track, 0, len(items))
	for _, item := range items {
		if item.AudioURL == "" {
			continue
		}
		tracks = append(tracks, models.Track{
			ID:     "pagalworld-" + item.ID,
			Title:  item.Title,
			Artist: item.Artist,
			Album:  item.Album,
			URL:    item.AudioURL,
			Image:  item.Image,
			Source: models.SourcePagalWorld,
		})
	}
	return tracks, nil
}

// scrapeSearch parses the public search page. Track rows link to a song
// page whose URL embeds the slug; the direct mp3 lives behind a stable
// /download/<slug>.mp3 path.
func (p *PagalWorld) scrapeSearch(ctx context.Context, query string, limit int) ([]models.Track, error) {
	u := fmt.Sprintf("%s/search?q=%s", p.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	// Realistic User-Agent to avoid blocks
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagalworld scrape failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pagalworld returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var tracks []models.Track
	doc.Find("a[href*='/song/']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		title := strings.TrimSpace(s.Text())
		if title == "" {
			return true
		}

		slug := href[strings.LastIndex(href, "/")+1:]
		if slug == "" {
			return true
		}

		// "Song Name - Artist" is the common listing format.
		artist := ""
		if idx := strings.LastIndex(title, " - "); idx != -1 {
			artist = strings.TrimSpace(title[idx+3:])
			title = strings.TrimSpace(title[:idx])
		}

		tracks = append(tracks, models.Track{
			ID:     "pagalworld-" + slug,
			Title:  title,
			Artist: artist,
			URL:    p.baseURL + "/download/" + slug + ".mp3",
			Source: models.SourcePagalWorld,
		})
		return len(tracks) < limit
	})

	p.logger.Tracef("scraped %d tracks", len(tracks))
	return tracks, nil
}
