package audio

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

const tickInterval = time.Second

// FFPlay drives playback through an ffplay subprocess, the same way the
// rest of the pipeline shells out to ffmpeg for decoding. Pause/resume map
// to SIGSTOP/SIGCONT; seeking respawns the process with -ss. Volume changes
// apply on the next spawn because ffplay only takes -volume at startup.
type FFPlay struct {
	mu       sync.Mutex
	bin      string
	cmd      *exec.Cmd
	gen      int
	url      string
	position float64
	duration float64
	volume   float64
	playing  bool
	closed   bool
	startAt  time.Time

	done          chan struct{}
	notifications chan Notification
	logger        *log.Entry
}

func NewFFPlay(bin string) *FFPlay {
	if bin == "" {
		bin = "ffplay"
	}
	f := &FFPlay{
		bin:           bin,
		volume:        1.0,
		done:          make(chan struct{}),
		notifications: make(chan Notification, 100),
		logger:        log.WithFields(log.Fields{"module": "audio"}),
	}
	go f.tickLoop()
	return f
}

func (f *FFPlay) Notifications() <-chan Notification {
	return f.notifications
}

func (f *FFPlay) notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyLocked(n)
}

// notifyLocked delivers without blocking. Caller holds f.mu, which also
// orders sends against the channel close in Close.
func (f *FFPlay) notifyLocked(n Notification) {
	if f.closed {
		return
	}
	select {
	case f.notifications <- n:
	default:
		f.logger.Warn("notification channel full, dropping event")
	}
}

// Load stops any current process and probes the new source. The probe and
// any spawn failure are reported asynchronously as LoadError.
func (f *FFPlay) Load(url string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.killLocked()
	f.url = url
	f.position = 0
	f.duration = 0
	f.playing = false
	f.mu.Unlock()

	go func() {
		duration, err := probeDuration(url)
		if err != nil {
			sentry.CaptureException(err)
			f.logger.Errorf("probe %s: %v", url, err)
			f.notify(Notification{Event: LoadError, Err: err})
			return
		}
		f.mu.Lock()
		f.duration = duration
		f.mu.Unlock()
		f.notify(Notification{Event: DurationKnown, Duration: duration})
	}()
}

func (f *FFPlay) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.url == "" || f.playing {
		return
	}
	if f.cmd != nil && f.cmd.Process != nil {
		// Paused process, just continue it.
		if err := f.cmd.Process.Signal(syscall.SIGCONT); err == nil {
			f.playing = true
			f.startAt = time.Now()
			return
		}
	}
	f.spawnLocked()
}

func (f *FFPlay) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.playing {
		return
	}
	f.position += time.Since(f.startAt).Seconds()
	f.playing = false
	if f.cmd != nil && f.cmd.Process != nil {
		if err := f.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
			f.logger.Warnf("sigstop: %v", err)
		}
	}
}

func (f *FFPlay) SetCurrentTime(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = seconds
	if f.playing {
		f.killLocked()
		f.spawnLocked()
	}
}

func (f *FFPlay) SetVolume(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volume == level {
		return
	}
	f.volume = level
	// ffplay only takes -volume at startup, so an audible change mid-track
	// needs a respawn at the current position.
	if f.playing {
		f.position += time.Since(f.startAt).Seconds()
		f.killLocked()
		f.spawnLocked()
	}
}

func (f *FFPlay) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.killLocked()
	f.url = ""
	f.playing = false
	close(f.done)
	close(f.notifications)
}

// spawnLocked starts ffplay at the stored position. Caller holds f.mu.
func (f *FFPlay) spawnLocked() {
	cmd := exec.Command(f.bin,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-volume", strconv.Itoa(int(f.volume*100)),
		"-ss", fmt.Sprintf("%.2f", f.position),
		f.url)

	if err := cmd.Start(); err != nil {
		sentry.CaptureException(err)
		f.logger.Errorf("ffplay start: %v", err)
		f.notifyLocked(Notification{Event: LoadError, Err: err})
		return
	}

	f.cmd = cmd
	f.gen++
	gen := f.gen
	f.playing = true
	f.startAt = time.Now()

	go func() {
		err := cmd.Wait()
		f.mu.Lock()
		// A stale generation means we killed this process ourselves.
		if f.gen != gen {
			f.mu.Unlock()
			return
		}
		f.cmd = nil
		f.playing = false
		f.position = f.duration
		duration := f.duration
		f.mu.Unlock()
		if err != nil {
			f.logger.Warnf("ffplay exit: %v", err)
		}
		f.notify(Notification{Event: Ended, Position: duration})
	}()
}

// killLocked terminates the current process, if any. Caller holds f.mu.
func (f *FFPlay) killLocked() {
	if f.cmd != nil && f.cmd.Process != nil {
		f.gen++
		_ = f.cmd.Process.Signal(syscall.SIGCONT)
		_ = f.cmd.Process.Kill()
		f.cmd = nil
	}
}

func (f *FFPlay) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
		}
		f.mu.Lock()
		if f.playing {
			pos := f.position + time.Since(f.startAt).Seconds()
			if f.duration > 0 && pos > f.duration {
				pos = f.duration
			}
			f.notifyLocked(Notification{Event: TimeUpdated, Position: pos})
		}
		f.mu.Unlock()
	}
}

// probeDuration asks ffprobe for the media duration in seconds.
func probeDuration(url string) (float64, error) {
	out, err := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		url).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", probe.Format.Duration, err)
	}
	return duration, nil
}
