package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moodsync/audio"
	"moodsync/control"
	"moodsync/models"
	"moodsync/store"
	"moodsync/stream"
)

// fakeOutput is a scriptable audio.Output. Tests drive asynchronous
// notifications by writing to ch directly.
type fakeOutput struct {
	mu      sync.Mutex
	loads   []string
	plays   int
	pauses  int
	seeks   []float64
	volumes []float64
	ch      chan audio.Notification
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{ch: make(chan audio.Notification, 16)}
}

func (f *fakeOutput) Load(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, url)
}

func (f *fakeOutput) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
}

func (f *fakeOutput) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakeOutput) SetCurrentTime(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
}

func (f *fakeOutput) SetVolume(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, level)
}

func (f *fakeOutput) Close()                                 { close(f.ch) }
func (f *fakeOutput) Notifications() <-chan audio.Notification { return f.ch }

// fakeChannel counts publishes and records the events that went out.
type fakeChannel struct {
	mu     sync.Mutex
	events []models.ControlEvent
	fail   bool
}

func (f *fakeChannel) Publish(_ context.Context, _ string, ev models.ControlEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return control.ErrChannelUnavailable
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeChannel) Subscribe(_ string, _ func(models.ControlEvent)) stream.CancelFunc {
	return func() {}
}

func (f *fakeChannel) Unsubscribe(_ string) {}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func track(id string) models.Track {
	return models.Track{
		ID:       id,
		Title:    "Track " + id,
		Artist:   "Artist",
		URL:      "https://cdn.example.com/" + id + ".mp3",
		Duration: 300,
		Source:   models.SourceJamendo,
	}
}

func newTestEngine(ch Channel) (*Engine, *fakeOutput, *store.Memory) {
	out := newFakeOutput()
	st := store.NewMemory()
	e := NewEngine(out, st, ch, "user-a", "User A")
	e.autoplay = false
	return e, out, st
}

func TestPlayPauseGuardWhileEmpty(t *testing.T) {
	ch := &fakeChannel{}
	e, _, _ := newTestEngine(ch)
	e.BindChannel("private_a_b")

	if err := e.PlayPause(); !errors.Is(err, ErrNoTrack) {
		t.Fatalf("PlayPause on empty engine = %v, want ErrNoTrack", err)
	}
	if got := ch.count(); got != 0 {
		t.Errorf("published %d events from a rejected operation, want 0", got)
	}
}

func TestEchoSuppression(t *testing.T) {
	ch := &fakeChannel{}
	e, _, _ := newTestEngine(ch)
	e.BindChannel("private_a_b")

	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}
	if err := e.PlayPause(); err != nil {
		t.Fatalf("PlayPause: %v", err)
	}
	if got := ch.count(); got != 1 {
		t.Fatalf("publish count = %d, want 1", got)
	}
	if ch.events[0].Action != models.ActionPlay {
		t.Fatalf("published action = %q, want play", ch.events[0].Action)
	}

	// Feed the published event back as if the stream echoed it. The engine
	// is already playing, so nothing changes and nothing is re-published.
	echo := ch.events[0]
	echo.UserID = "user-b"
	e.ApplyRemoteEvent("private_a_b", echo)

	if got := ch.count(); got != 1 {
		t.Errorf("publish count after echo = %d, want 1 (no echo loop)", got)
	}

	// A genuine remote pause flips state but still publishes nothing.
	e.ApplyRemoteEvent("private_a_b", models.ControlEvent{UserID: "user-b", Action: models.ActionPause})
	if snap := e.Snapshot(); snap.State != StatePaused {
		t.Errorf("state after remote pause = %q, want paused", snap.State)
	}
	if got := ch.count(); got != 1 {
		t.Errorf("publish count after remote pause = %d, want 1", got)
	}
}

func TestSeekClamping(t *testing.T) {
	e, out, _ := newTestEngine(nil)
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	if err := e.SeekTo(-5); err != nil {
		t.Fatalf("SeekTo(-5): %v", err)
	}
	if snap := e.Snapshot(); snap.Position != 0 {
		t.Errorf("position after SeekTo(-5) = %v, want 0", snap.Position)
	}

	if err := e.SeekTo(9999); err != nil {
		t.Fatalf("SeekTo(9999): %v", err)
	}
	if snap := e.Snapshot(); snap.Position != 300 {
		t.Errorf("position after SeekTo(9999) = %v, want 300 (duration)", snap.Position)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.seeks) != 2 || out.seeks[0] != 0 || out.seeks[1] != 300 {
		t.Errorf("output seeks = %v, want [0 300]", out.seeks)
	}
}

func TestSeekWhileEmptyRejected(t *testing.T) {
	e, _, _ := newTestEngine(nil)
	if err := e.SeekTo(10); !errors.Is(err, ErrNoTrack) {
		t.Errorf("SeekTo on empty engine = %v, want ErrNoTrack", err)
	}
}

func TestBoundaryNavigationInert(t *testing.T) {
	e, _, _ := newTestEngine(nil)
	tracks := []models.Track{track("t1"), track("t2"), track("t3")}

	if err := e.LoadPlaylist(tracks, 2); err != nil {
		t.Fatalf("LoadPlaylist: %v", err)
	}
	e.Next() // already at the last index
	if snap := e.Snapshot(); snap.Index != 2 || snap.Track.ID != "t3" {
		t.Errorf("Next at last index moved cursor: index=%d track=%s", snap.Index, snap.Track.ID)
	}

	if err := e.LoadPlaylist(tracks, 0); err != nil {
		t.Fatalf("LoadPlaylist: %v", err)
	}
	e.Previous() // already at index 0
	if snap := e.Snapshot(); snap.Index != 0 || snap.Track.ID != "t1" {
		t.Errorf("Previous at index 0 moved cursor: index=%d track=%s", snap.Index, snap.Track.ID)
	}

	// No queue at all: both directions are no-ops, not errors.
	e2, _, _ := newTestEngine(nil)
	e2.Next()
	e2.Previous()
	if snap := e2.Snapshot(); snap.State != StateEmpty {
		t.Errorf("navigation on empty engine changed state to %q", snap.State)
	}
}

func TestLoadPlaylistValidatesIndex(t *testing.T) {
	e, _, _ := newTestEngine(nil)
	tracks := []models.Track{track("t1"), track("t2")}

	for _, idx := range []int{-1, 2, 99} {
		if err := e.LoadPlaylist(tracks, idx); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("LoadPlaylist(start=%d) = %v, want ErrInvalidIndex", idx, err)
		}
	}
	if snap := e.Snapshot(); snap.State != StateEmpty || len(snap.Queue) != 0 {
		t.Error("rejected LoadPlaylist mutated engine state")
	}

	if err := e.LoadPlaylist(tracks, 1); err != nil {
		t.Fatalf("LoadPlaylist(start=1): %v", err)
	}
	if snap := e.Snapshot(); snap.Track.ID != "t2" {
		t.Errorf("started at track %s, want t2", snap.Track.ID)
	}
}

func TestSetVolumeClearsMute(t *testing.T) {
	e, out, _ := newTestEngine(nil)

	if muted := e.ToggleMute(); !muted {
		t.Fatal("ToggleMute did not mute")
	}
	out.mu.Lock()
	last := out.volumes[len(out.volumes)-1]
	out.mu.Unlock()
	if last != 0 {
		t.Errorf("effective volume while muted = %v, want 0", last)
	}

	if got := e.SetVolume(0.76); got != 0.8 {
		t.Errorf("SetVolume(0.76) = %v, want 0.8", got)
	}
	if snap := e.Snapshot(); snap.Muted {
		t.Error("non-zero SetVolume did not clear the muted flag")
	}

	// Unmuting restores the stored volume.
	e.ToggleMute()
	e.ToggleMute()
	out.mu.Lock()
	last = out.volumes[len(out.volumes)-1]
	out.mu.Unlock()
	if last != 0.8 {
		t.Errorf("volume after unmute = %v, want 0.8", last)
	}
}

func TestRemoteEventForUnboundChannelIgnored(t *testing.T) {
	ch := &fakeChannel{}
	e, _, _ := newTestEngine(ch)
	e.BindChannel("private_a_b")
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	e.ApplyRemoteEvent("private_a_c", models.ControlEvent{UserID: "user-c", Action: models.ActionPlay})
	if snap := e.Snapshot(); snap.State != StatePaused {
		t.Errorf("event for unbound channel applied: state=%q", snap.State)
	}
}

func TestPublishFailureKeepsLocalTransition(t *testing.T) {
	ch := &fakeChannel{fail: true}
	e, _, _ := newTestEngine(ch)
	e.BindChannel("private_a_b")
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	err := e.PlayPause()
	if !errors.Is(err, control.ErrChannelUnavailable) {
		t.Fatalf("PlayPause with failing channel = %v, want ErrChannelUnavailable", err)
	}
	if snap := e.Snapshot(); snap.State != StatePlaying {
		t.Errorf("publish failure rolled back the transition: state=%q", snap.State)
	}
}

func TestPersistWriteThrough(t *testing.T) {
	e, _, st := newTestEngine(nil)
	ctx := context.Background()

	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}
	e.SetVolume(0.4)
	_ = e.SeekTo(42)

	checks := map[string]string{
		store.KeyIsPlaying:   "false",
		store.KeyVolume:      "0.40",
		store.KeyCurrentTime: "42.000",
	}
	for key, want := range checks {
		got, err := st.Get(ctx, key)
		if err != nil {
			t.Fatalf("slot %s not persisted: %v", key, err)
		}
		if got != want {
			t.Errorf("slot %s = %q, want %q", key, got, want)
		}
	}
}

func TestRestoreComesBackPaused(t *testing.T) {
	out := newFakeOutput()
	st := store.NewMemory()
	ctx := context.Background()

	seed := map[string]string{
		store.KeyCurrentTrack: `{"id":"t1","title":"Track t1","artist":"Artist","url":"https://cdn.example.com/t1.mp3","duration":300,"source":"jamendo"}`,
		store.KeyIsPlaying:    "true",
		store.KeyCurrentTime:  "120.000",
		store.KeyVolume:       "0.60",
		store.KeyIsMuted:      "false",
		store.KeyCurrentIndex: "-1",
	}
	for k, v := range seed {
		if err := st.Set(ctx, k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	e := NewEngine(out, st, nil, "user-a", "User A")
	e.Restore(ctx)

	snap := e.Snapshot()
	if snap.State != StatePaused {
		t.Errorf("restored state = %q, want paused (no auto-resume)", snap.State)
	}
	if snap.Track == nil || snap.Track.ID != "t1" {
		t.Fatalf("restored track = %+v, want t1", snap.Track)
	}
	if snap.Position != 120 {
		t.Errorf("restored position = %v, want 120", snap.Position)
	}
	if snap.Volume != 0.6 {
		t.Errorf("restored volume = %v, want 0.6", snap.Volume)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.plays != 0 {
		t.Error("Restore started audio output without a user gesture")
	}
}

func TestEndOfTrackHoldsPosition(t *testing.T) {
	e, out, _ := newTestEngine(nil)
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}
	if err := e.PlayPause(); err != nil {
		t.Fatalf("PlayPause: %v", err)
	}

	out.ch <- audio.Notification{Event: audio.Ended, Position: 300}

	waitFor(t, func() bool {
		snap := e.Snapshot()
		return snap.State == StatePaused && snap.Position == 300
	}, "engine to settle paused at duration")
}

func TestLoadErrorFallsBackToPriorTrack(t *testing.T) {
	e, out, _ := newTestEngine(nil)
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}
	if err := e.LoadTrack(track("t2")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	out.ch <- audio.Notification{Event: audio.LoadError, Err: errors.New("404")}

	waitFor(t, func() bool {
		snap := e.Snapshot()
		return snap.Track != nil && snap.Track.ID == "t1" && snap.State == StatePaused
	}, "engine to fall back to the prior track")

	// The output must hold the prior source again, not the failed one; a
	// resume right after the fallback would otherwise play the broken URL.
	out.mu.Lock()
	lastLoad := out.loads[len(out.loads)-1]
	out.mu.Unlock()
	if want := track("t1").URL; lastLoad != want {
		t.Errorf("output source after fallback = %q, want %q", lastLoad, want)
	}
	if snap := e.Snapshot(); snap.Duration != 300 {
		t.Errorf("duration after fallback = %v, want the prior track's 300", snap.Duration)
	}
}

func TestLoadErrorWithNoPriorTrackSettlesEmpty(t *testing.T) {
	e, out, _ := newTestEngine(nil)
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	out.ch <- audio.Notification{Event: audio.LoadError, Err: errors.New("404")}

	waitFor(t, func() bool {
		return e.Snapshot().State == StateEmpty
	}, "engine to settle empty")
}

func TestDuplicateRemoteEventAppliedOnce(t *testing.T) {
	ch := &fakeChannel{}
	e, out, _ := newTestEngine(ch)
	e.BindChannel("private_a_b")
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	// The same stream record can reach the engine through both the adapter
	// subscription and the chat bridge.
	ev := models.ControlEvent{ID: "1000-0", UserID: "user-b", Action: models.ActionSeek, Position: 30}
	e.ApplyRemoteEvent("private_a_b", ev)
	e.ApplyRemoteEvent("private_a_b", ev)

	out.mu.Lock()
	seeks := len(out.seeks)
	out.mu.Unlock()
	if seeks != 1 {
		t.Errorf("output seeked %d times for one record, want 1", seeks)
	}

	// A different record id is not a duplicate.
	ev.ID = "1001-0"
	ev.Position = 60
	e.ApplyRemoteEvent("private_a_b", ev)
	if snap := e.Snapshot(); snap.Position != 60 {
		t.Errorf("position = %v, want 60", snap.Position)
	}
}

func TestCloseReturnsDuringRemoteDelivery(t *testing.T) {
	ms := stream.NewMemory()
	room := control.RoomKey("user-a", "user-b")

	out := newFakeOutput()
	e := NewEngine(out, store.NewMemory(), control.NewAdapter(ms, "user-a"), "user-a", "User A")
	e.autoplay = false
	e.BindChannel(room)
	if err := e.LoadTrack(track("t1")); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	// A peer hammers the channel so Close races against in-flight delivery.
	peer := control.NewAdapter(ms, "user-b")
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx := context.Background()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = peer.Publish(ctx, room, models.ControlEvent{
				UserID: "user-b", Action: models.ActionSeek, Position: float64(i % 100),
			})
		}
	}()

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while remote events were arriving")
	}
	close(stop)
	wg.Wait()
}

func TestRestoreClampsStalePosition(t *testing.T) {
	out := newFakeOutput()
	st := store.NewMemory()
	ctx := context.Background()

	seed := map[string]string{
		store.KeyCurrentTrack: `{"id":"t1","title":"Track t1","artist":"Artist","url":"https://cdn.example.com/t1.mp3","duration":300,"source":"jamendo"}`,
		store.KeyCurrentTime:  "9999.000",
	}
	for k, v := range seed {
		if err := st.Set(ctx, k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	e := NewEngine(out, st, nil, "user-a", "User A")
	e.Restore(ctx)

	if snap := e.Snapshot(); snap.Position != 300 {
		t.Errorf("restored position = %v, want clamped to 300", snap.Position)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if n := len(out.seeks); n == 0 || out.seeks[n-1] != 300 {
		t.Errorf("output seeks = %v, want the clamped 300 applied", out.seeks)
	}
}

// TestSynchronizedPair runs the full path over a shared in-memory stream:
// two engines, two adapters, one private channel.
func TestSynchronizedPair(t *testing.T) {
	ms := stream.NewMemory()
	room := control.RoomKey("user-b", "user-a")

	adapterA := control.NewAdapter(ms, "user-a")
	adapterB := control.NewAdapter(ms, "user-b")

	outA := newFakeOutput()
	engineA := NewEngine(outA, store.NewMemory(), adapterA, "user-a", "User A")
	engineA.autoplay = false

	outB := newFakeOutput()
	engineB := NewEngine(outB, store.NewMemory(), adapterB, "user-b", "User B")
	engineB.autoplay = false

	engineA.BindChannel(room)
	engineB.BindChannel(room)

	// Both peers have the track selected; A drives the transport.
	if err := engineA.LoadTrack(track("t1")); err != nil {
		t.Fatalf("A LoadTrack: %v", err)
	}
	if err := engineB.LoadTrack(track("t1")); err != nil {
		t.Fatalf("B LoadTrack: %v", err)
	}

	if err := engineA.PlayPause(); err != nil {
		t.Fatalf("A PlayPause: %v", err)
	}
	waitFor(t, func() bool {
		return engineB.Snapshot().State == StatePlaying
	}, "B to mirror play")

	if err := engineA.SeekTo(90); err != nil {
		t.Fatalf("A SeekTo: %v", err)
	}
	waitFor(t, func() bool {
		return engineB.Snapshot().Position == 90
	}, "B to mirror seek")

	// B's mirroring must not have published anything: the only records on
	// the channel are A's play and seek.
	var count int
	done := ms.Observe(room, func(stream.Record) { count++ })
	done()
	if count != 2 {
		t.Errorf("channel has %d records, want 2 (no echo from B)", count)
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
