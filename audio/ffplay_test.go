package audio

import "testing"

func TestFFPlayCloseReleasesListener(t *testing.T) {
	f := NewFFPlay("")
	f.Close()

	if _, ok := <-f.Notifications(); ok {
		t.Fatal("notifications channel still open after Close")
	}

	// Closing again is a no-op, and a straggling notification from a probe
	// goroutine must be swallowed, not panic on a closed channel.
	f.Close()
	f.notify(Notification{Event: TimeUpdated, Position: 1})
	f.Load("https://cdn.example.com/late.mp3")
}

func TestFFPlayVolumeStoredWhileIdle(t *testing.T) {
	f := NewFFPlay("")
	defer f.Close()

	f.SetVolume(0.4)
	f.mu.Lock()
	got := f.volume
	spawned := f.cmd != nil
	f.mu.Unlock()

	if got != 0.4 {
		t.Errorf("volume = %v, want 0.4", got)
	}
	if spawned {
		t.Error("volume change without playback spawned a process")
	}
}
