package player

import "errors"

var (
	// ErrNoTrack rejects transport operations while no track is loaded.
	ErrNoTrack = errors.New("player: no track loaded")
	// ErrNoSource rejects loading a track without a playable URL.
	ErrNoSource = errors.New("player: track has no source url")
	// ErrInvalidIndex rejects a playlist start index outside the list.
	ErrInvalidIndex = errors.New("player: start index out of range")
	// ErrMediaLoad is the asynchronous load/decode failure. Non-fatal: the
	// engine keeps the prior track paused, or settles into empty.
	ErrMediaLoad = errors.New("player: media failed to load")
)
