// Package audio defines the single audio output primitive the player owns.
// Exactly one Output exists per client process; no other component may
// drive transport primitives directly.
package audio

// NotificationType identifies an asynchronous signal from the output.
type NotificationType string

const (
	// TimeUpdated carries the current playback position.
	TimeUpdated NotificationType = "time_updated"
	// DurationKnown carries the media duration once decoding knows it.
	DurationKnown NotificationType = "duration_known"
	// Ended fires when the media played to its end.
	Ended NotificationType = "ended"
	// LoadError fires when the media source failed to load or decode.
	LoadError NotificationType = "load_error"
)

// Notification is one asynchronous output signal.
type Notification struct {
	Event    NotificationType
	Position float64
	Duration float64
	Err      error
}

// Output is the transport primitive surface. Load is asynchronous: failures
// surface as a LoadError notification, never as a synchronous error.
type Output interface {
	Load(url string)
	Play()
	Pause()
	SetCurrentTime(seconds float64)
	SetVolume(level float64)
	Close()
	Notifications() <-chan Notification
}
