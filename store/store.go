// Package store is the key-value persistence collaborator for the player.
// Every transport-state field is mirrored here write-through so a restart
// can reconstruct the last session.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("store: key not found")

// Store is a flat string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Named slots for the player's persisted transport state. The names match
// the web client's localStorage keys so the two stay recognizably the same
// schema.
const (
	KeyCurrentTrack = "player_currentTrack"
	KeyIsPlaying    = "player_isPlaying"
	KeyCurrentTime  = "player_currentTime"
	KeyVolume       = "player_volume"
	KeyIsMuted      = "player_isMuted"
	KeyPlaylist     = "player_playlist"
	KeyCurrentIndex = "player_currentIndex"
)
