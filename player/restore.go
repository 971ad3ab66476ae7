package player

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"moodsync/models"
	"moodsync/store"
)

// Restore reconstructs the last persisted transport state. The engine comes
// back paused even if it was playing at shutdown; resuming output needs an
// explicit PlayPause from the caller. Missing or malformed slots fall back
// to session defaults.
func (e *Engine) Restore(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if raw, ok := e.slot(ctx, store.KeyCurrentTrack); ok {
		var track *models.Track
		if err := json.Unmarshal([]byte(raw), &track); err == nil && track != nil && track.URL != "" {
			e.track = track
			e.duration = track.Duration
			e.state = StatePaused
		}
	}
	if raw, ok := e.slot(ctx, store.KeyPlaylist); ok {
		var queue []models.Track
		if err := json.Unmarshal([]byte(raw), &queue); err == nil {
			e.queue = queue
		}
	}
	if raw, ok := e.slot(ctx, store.KeyCurrentIndex); ok {
		if idx, err := strconv.Atoi(raw); err == nil && idx >= -1 && idx < len(e.queue) {
			e.index = idx
		}
	}
	if raw, ok := e.slot(ctx, store.KeyCurrentTime); ok {
		if pos, err := strconv.ParseFloat(raw, 64); err == nil && pos >= 0 {
			e.position = pos
		}
	}
	// A stale time slot can outlive a track edit; clamp like a live seek.
	if e.duration > 0 && e.position > e.duration {
		e.position = e.duration
	}
	if raw, ok := e.slot(ctx, store.KeyVolume); ok {
		if vol, err := strconv.ParseFloat(raw, 64); err == nil {
			e.volume = SnapVolume(vol)
		}
	}
	if raw, ok := e.slot(ctx, store.KeyIsMuted); ok {
		e.muted = raw == "true"
	}

	if e.track != nil {
		e.out.Load(e.track.URL)
		e.out.SetVolume(e.effectiveVolumeLocked())
		if e.position > 0 {
			e.out.SetCurrentTime(e.position)
		}
		e.logger.Infof("restored session: %s at %.0fs", e.track.Title, e.position)
	}
}

func (e *Engine) slot(ctx context.Context, key string) (string, bool) {
	raw, err := e.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warnf("restore %s: %v", key, err)
		}
		return "", false
	}
	return raw, true
}
