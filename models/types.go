package models

import (
	"time"
)

// TrackSource tags where a track came from so the player can tell
// locally uploaded content apart from catalog results.
type TrackSource string

const (
	SourceLibrary    TrackSource = "library"
	SourceJamendo    TrackSource = "jamendo"
	SourcePagalWorld TrackSource = "pagalworld"
	SourceSpotify    TrackSource = "spotify"
	SourceYoutube    TrackSource = "youtube"
)

// Track is an immutable description of a playable item. Multiple playlists
// may reference the same track by ID without copying.
type Track struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Artist   string      `json:"artist"`
	URL      string      `json:"url"`
	Album    string      `json:"album,omitempty"`
	Duration float64     `json:"duration,omitempty"`
	Image    string      `json:"image,omitempty"`
	Source   TrackSource `json:"source"`
	Tags     []string    `json:"tags,omitempty"`
}

// ControlAction is a transport command shared between synchronized peers.
type ControlAction string

const (
	ActionPlay  ControlAction = "play"
	ActionPause ControlAction = "pause"
	ActionSeek  ControlAction = "seek"
)

// Valid reports whether the action is one the player knows how to apply.
func (a ControlAction) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek:
		return true
	}
	return false
}

// ControlEvent is an immutable, append-only message on a synchronized
// channel. Position is only meaningful for seek.
type ControlEvent struct {
	ID          string        `json:"id,omitempty"`
	UserID      string        `json:"uid"`
	DisplayName string        `json:"display_name,omitempty"`
	Action      ControlAction `json:"action"`
	Position    float64       `json:"position,omitempty"`
}

// MessageType distinguishes plain chat text from transport control messages.
type MessageType string

const (
	MessageText    MessageType = "message"
	MessageControl MessageType = "control"
)

// ChatMessage is one record in a room's message history. Control-tagged
// messages carry a ControlEvent in Control and no text.
type ChatMessage struct {
	ID          string        `json:"id,omitempty"`
	RoomID      string        `json:"room_id"`
	UserID      string        `json:"uid"`
	DisplayName string        `json:"display_name,omitempty"`
	Type        MessageType   `json:"type"`
	Text        string        `json:"text,omitempty"`
	Control     *ControlEvent `json:"control,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Playlist is an ordered set of tracks with tag metadata used by the mood
// recommender.
type Playlist struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	OwnerID     string   `json:"owner_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	TrackIDs    []string `json:"track_ids,omitempty"`
}
