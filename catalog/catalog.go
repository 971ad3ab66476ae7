// Package catalog federates external track search across the configured
// sources. Each source maps its own result shape onto models.Track; the
// registry fans a query out and merges whatever came back.
package catalog

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"moodsync/models"
)

// Source is one external track provider.
type Source interface {
	Name() models.TrackSource
	Search(ctx context.Context, query string, limit int) ([]models.Track, error)
}

// Registry holds the enabled sources.
type Registry struct {
	sources []Source
	logger  *log.Entry
}

func NewRegistry(sources ...Source) *Registry {
	return &Registry{
		sources: sources,
		logger:  log.WithFields(log.Fields{"module": "catalog"}),
	}
}

// Sources lists the enabled source names.
func (r *Registry) Sources() []models.TrackSource {
	names := make([]models.TrackSource, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	return names
}

// Search queries every source concurrently and merges results in source
// registration order. A failing source logs and contributes nothing; the
// search as a whole only fails when the context does.
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 10
	}

	results := make([][]models.Track, len(r.sources))
	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			tracks, err := src.Search(ctx, query, limit)
			if err != nil {
				r.logger.Warnf("%s search failed: %v", src.Name(), err)
				return
			}
			results[i] = tracks
		}(i, src)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []models.Track
	for _, tracks := range results {
		merged = append(merged, tracks...)
	}
	return merged, nil
}

// SearchSource queries one named source only.
func (r *Registry) SearchSource(ctx context.Context, name models.TrackSource, query string, limit int) ([]models.Track, error) {
	for _, src := range r.sources {
		if src.Name() == name {
			return src.Search(ctx, query, limit)
		}
	}
	return nil, nil
}
