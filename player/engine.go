// Package player owns the audio session: current track, queue, transport
// state, and the reconciliation between local intents and remote control
// events from a synchronized peer.
package player

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"moodsync/audio"
	"moodsync/models"
	"moodsync/store"
	"moodsync/stream"
)

// State is the engine's transport state machine position.
type State string

const (
	StateEmpty   State = "empty"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
)

// Origin tags a transition so remotely applied events are never published
// back to the channel they came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Channel is the slice of the control adapter the engine needs. Nil when
// the session has no synchronized peer.
type Channel interface {
	Publish(ctx context.Context, channelID string, ev models.ControlEvent) error
	Subscribe(channelID string, onEvent func(models.ControlEvent)) stream.CancelFunc
	Unsubscribe(channelID string)
}

// Snapshot is a copy of the transport state for handlers and tests.
type Snapshot struct {
	State    State          `json:"state"`
	Track    *models.Track  `json:"track"`
	Playing  bool           `json:"playing"`
	Position float64        `json:"position"`
	Duration float64        `json:"duration"`
	Volume   float64        `json:"volume"`
	Muted    bool           `json:"muted"`
	Queue    []models.Track `json:"queue"`
	Index    int            `json:"index"`
	Channel  string         `json:"channel,omitempty"`
}

// Engine is the playback state machine. Every entry point (local
// operations, remote events, audio notifications) serializes on one mutex,
// so no two transitions interleave and same-tick simultaneity cannot occur.
type Engine struct {
	mu sync.Mutex

	out     audio.Output
	store   store.Store
	channel Channel

	userID      string
	displayName string

	state     State
	track     *models.Track
	prevTrack *models.Track
	queue     []models.Track
	index     int
	position  float64
	duration  float64
	volume    float64
	muted     bool
	autoplay  bool

	boundChannel string
	cancelSub    stream.CancelFunc

	seenRemote map[string]struct{}
	seenOrder  []string

	logger *log.Entry
}

// remoteSeenLimit bounds the dedup window for remote event ids.
const remoteSeenLimit = 256

// NewEngine creates an engine with session defaults: no track, paused,
// position 0, volume 1.0, unmuted. ch may be nil for a session with no
// synchronized peer.
func NewEngine(out audio.Output, st store.Store, ch Channel, userID, displayName string) *Engine {
	e := &Engine{
		out:         out,
		store:       st,
		channel:     ch,
		userID:      userID,
		displayName: displayName,
		state:       StateEmpty,
		index:       -1,
		volume:      1.0,
		autoplay:    true,
		seenRemote:  make(map[string]struct{}),
		logger: log.WithFields(log.Fields{
			"module": "player",
			"user":   userID,
		}),
	}
	go e.listenForOutputEvents()
	return e
}

// LoadTrack replaces the current track, resets position, and starts
// playback (explicit selection always autoplays). Media fetch is
// asynchronous; failures arrive later as a load-error notification.
func (e *Engine) LoadTrack(track models.Track) error {
	if track.URL == "" {
		return ErrNoSource
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadTrackLocked(track)
	return nil
}

// LoadPlaylist replaces the queue wholesale and starts playing the element
// at startIndex.
func (e *Engine) LoadPlaylist(tracks []models.Track, startIndex int) error {
	if startIndex < 0 || startIndex >= len(tracks) {
		return ErrInvalidIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = make([]models.Track, len(tracks))
	copy(e.queue, tracks)
	e.index = startIndex
	e.persistLocked(store.KeyPlaylist, store.KeyCurrentIndex)
	e.loadTrackLocked(e.queue[startIndex])
	return nil
}

// PlayPause toggles transport state. With a bound channel, the local
// transition publishes exactly one control event; a publish failure never
// reverts the transition.
func (e *Engine) PlayPause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playPauseLocked(OriginLocal)
}

// SeekTo clamps the target to [0, duration] and moves the playhead.
func (e *Engine) SeekTo(position float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seekLocked(position, OriginLocal)
}

// Next advances the queue cursor. Inert at the last index and with no
// queue; wrap-around is deliberately not performed.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 || e.index >= len(e.queue)-1 {
		return
	}
	e.index++
	e.persistLocked(store.KeyCurrentIndex)
	e.loadTrackLocked(e.queue[e.index])
}

// Previous moves the queue cursor back. Inert at index 0 and with no queue.
func (e *Engine) Previous() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 || e.index <= 0 {
		return
	}
	e.index--
	e.persistLocked(store.KeyCurrentIndex)
	e.loadTrackLocked(e.queue[e.index])
}

// SetVolume snaps the requested level to the discrete set and returns the
// level actually applied. A non-zero result clears the muted flag.
func (e *Engine) SetVolume(level float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = SnapVolume(level)
	if e.volume > 0 && e.muted {
		e.muted = false
		e.persistLocked(store.KeyIsMuted)
	}
	e.out.SetVolume(e.effectiveVolumeLocked())
	e.persistLocked(store.KeyVolume)
	return e.volume
}

// ToggleMute flips the muted flag. Unmuting restores the stored volume.
func (e *Engine) ToggleMute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.muted = !e.muted
	e.out.SetVolume(e.effectiveVolumeLocked())
	e.persistLocked(store.KeyIsMuted)
	return e.muted
}

// ApplyRemoteEvent is the entry point the control adapter and the chat
// bridge call. Events for a channel the engine is not bound to are ignored,
// not buffered. Remote transitions never publish.
func (e *Engine) ApplyRemoteEvent(channelID string, ev models.ControlEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if channelID == "" || channelID != e.boundChannel {
		e.logger.Tracef("ignoring %s for unbound channel %s", ev.Action, channelID)
		return
	}

	// The adapter subscription and the chat bridge both observe the room
	// stream, so the same event can arrive twice. Record ids dedup it.
	if ev.ID != "" {
		if _, dup := e.seenRemote[ev.ID]; dup {
			e.logger.Tracef("duplicate remote event %s ignored", ev.ID)
			return
		}
		e.seenRemote[ev.ID] = struct{}{}
		e.seenOrder = append(e.seenOrder, ev.ID)
		if len(e.seenOrder) > remoteSeenLimit {
			delete(e.seenRemote, e.seenOrder[0])
			e.seenOrder = e.seenOrder[1:]
		}
	}

	switch ev.Action {
	case models.ActionPlay:
		if e.state == StatePaused {
			_ = e.playPauseLocked(OriginRemote)
		}
	case models.ActionPause:
		if e.state == StatePlaying {
			_ = e.playPauseLocked(OriginRemote)
		}
	case models.ActionSeek:
		_ = e.seekLocked(ev.Position, OriginRemote)
	default:
		e.logger.Warnf("unknown remote action %q", ev.Action)
	}
}

// BindChannel subscribes the engine to a synchronized channel, replacing
// any previous binding. The old subscription is cancelled before the new
// one is established so a stale event cannot land after the switch.
func (e *Engine) BindChannel(channelID string) {
	e.mu.Lock()
	if e.channel == nil {
		e.mu.Unlock()
		return
	}
	prevCancel := e.cancelSub
	e.cancelSub = nil
	e.boundChannel = channelID
	e.mu.Unlock()

	// Cancel and subscribe outside the engine lock: stream delivery may
	// re-enter through ApplyRemoteEvent.
	if prevCancel != nil {
		prevCancel()
	}
	if channelID == "" {
		return
	}
	cancel := e.channel.Subscribe(channelID, func(ev models.ControlEvent) {
		e.ApplyRemoteEvent(channelID, ev)
	})
	e.mu.Lock()
	e.cancelSub = cancel
	e.mu.Unlock()
	e.logger.Infof("bound to channel %s", channelID)
}

// UnbindChannel leaves the synchronized session.
func (e *Engine) UnbindChannel() {
	e.BindChannel("")
}

// Snapshot copies the transport state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		State:    e.state,
		Playing:  e.state == StatePlaying,
		Position: e.position,
		Duration: e.duration,
		Volume:   e.volume,
		Muted:    e.muted,
		Index:    e.index,
		Channel:  e.boundChannel,
	}
	if e.track != nil {
		t := *e.track
		snap.Track = &t
	}
	if len(e.queue) > 0 {
		snap.Queue = make([]models.Track, len(e.queue))
		copy(snap.Queue, e.queue)
	}
	return snap
}

// Close releases the subscription and the audio output.
func (e *Engine) Close() {
	e.mu.Lock()
	cancel := e.cancelSub
	e.cancelSub = nil
	e.mu.Unlock()

	// Cancel outside the lock: cancellation waits for in-flight delivery,
	// and delivery re-enters through ApplyRemoteEvent.
	if cancel != nil {
		cancel()
	}
	e.out.Close()
}

// --- internals; callers hold e.mu ---

func (e *Engine) loadTrackLocked(track models.Track) {
	if e.track != nil {
		prev := *e.track
		e.prevTrack = &prev
	}
	t := track
	e.track = &t
	e.position = 0
	e.duration = track.Duration
	e.state = StatePaused

	e.out.Load(track.URL)
	e.out.SetVolume(e.effectiveVolumeLocked())
	e.persistLocked(store.KeyCurrentTrack, store.KeyCurrentTime)

	// Explicit selection autoplays. Autoplay is a local intent but does not
	// publish: only play/pause/seek ship control events.
	if e.autoplay {
		e.state = StatePlaying
		e.out.Play()
	}
	e.persistLocked(store.KeyIsPlaying)
	e.logger.Debugf("loaded %s - %s", track.Artist, track.Title)
}

func (e *Engine) playPauseLocked(origin Origin) error {
	if e.state == StateEmpty {
		return ErrNoTrack
	}

	var action models.ControlAction
	if e.state == StatePlaying {
		e.state = StatePaused
		e.out.Pause()
		action = models.ActionPause
	} else {
		e.state = StatePlaying
		e.out.Play()
		action = models.ActionPlay
	}
	e.persistLocked(store.KeyIsPlaying)

	return e.publishLocked(origin, action, 0)
}

func (e *Engine) seekLocked(position float64, origin Origin) error {
	if e.state == StateEmpty {
		return ErrNoTrack
	}

	if position < 0 {
		position = 0
	}
	if e.duration > 0 && position > e.duration {
		position = e.duration
	}
	e.position = position
	e.out.SetCurrentTime(position)
	e.persistLocked(store.KeyCurrentTime)

	return e.publishLocked(origin, models.ActionSeek, position)
}

// publishLocked ships a control event for local-origin transitions on a
// bound channel. The transition has already been applied; failure here is
// surfaced but never rolled back, because the peer may have rendered it.
func (e *Engine) publishLocked(origin Origin, action models.ControlAction, position float64) error {
	if origin != OriginLocal || e.channel == nil || e.boundChannel == "" {
		return nil
	}

	ev := models.ControlEvent{
		UserID:      e.userID,
		DisplayName: e.displayName,
		Action:      action,
		Position:    position,
	}
	if err := e.channel.Publish(context.Background(), e.boundChannel, ev); err != nil {
		e.logger.Warnf("publish %s failed, local state kept: %v", action, err)
		return err
	}
	return nil
}

func (e *Engine) effectiveVolumeLocked() float64 {
	if e.muted {
		return 0
	}
	return e.volume
}

func (e *Engine) listenForOutputEvents() {
	for n := range e.out.Notifications() {
		switch n.Event {
		case audio.TimeUpdated:
			e.mu.Lock()
			if e.state == StatePlaying {
				e.position = n.Position
				e.persistLocked(store.KeyCurrentTime)
			}
			e.mu.Unlock()
		case audio.DurationKnown:
			e.mu.Lock()
			e.duration = n.Duration
			if e.position > e.duration {
				e.position = e.duration
			}
			e.mu.Unlock()
		case audio.Ended:
			e.mu.Lock()
			if e.state == StatePlaying {
				e.state = StatePaused
				e.position = e.duration
				e.persistLocked(store.KeyIsPlaying, store.KeyCurrentTime)
				e.logger.Debug("track ended")
			}
			e.mu.Unlock()
		case audio.LoadError:
			e.handleLoadError(n.Err)
		}
	}
}

// handleLoadError applies the media-load failure policy: keep the prior
// track visible but paused when one existed, otherwise settle into empty.
func (e *Engine) handleLoadError(cause error) {
	sentry.CaptureException(cause)
	e.logger.Errorf("%v: %v", ErrMediaLoad, cause)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.prevTrack != nil {
		prior := e.prevTrack
		e.track = prior
		e.prevTrack = nil
		e.state = StatePaused
		e.duration = prior.Duration
		// Put the prior source back in the output; leaving the failed URL
		// loaded would play the broken source on the next resume.
		e.out.Load(prior.URL)
		e.out.SetVolume(e.effectiveVolumeLocked())
	} else {
		e.track = nil
		e.state = StateEmpty
		e.duration = 0
	}
	e.position = 0
	e.persistLocked(store.KeyCurrentTrack, store.KeyIsPlaying, store.KeyCurrentTime)
}

// persistLocked mirrors the named slots to the store write-through. Errors
// are logged and reported, never allowed to block or reverse the in-memory
// transition they shadow.
func (e *Engine) persistLocked(keys ...string) {
	ctx := context.Background()
	for _, key := range keys {
		var value string
		switch key {
		case store.KeyCurrentTrack:
			value = marshalJSON(e.track)
		case store.KeyIsPlaying:
			value = strconv.FormatBool(e.state == StatePlaying)
		case store.KeyCurrentTime:
			value = strconv.FormatFloat(e.position, 'f', 3, 64)
		case store.KeyVolume:
			value = strconv.FormatFloat(e.volume, 'f', 2, 64)
		case store.KeyIsMuted:
			value = strconv.FormatBool(e.muted)
		case store.KeyPlaylist:
			value = marshalJSON(e.queue)
		case store.KeyCurrentIndex:
			value = strconv.Itoa(e.index)
		default:
			continue
		}
		if err := e.store.Set(ctx, key, value); err != nil {
			e.logger.Warnf("persist %s: %v", key, err)
		}
	}
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
