package handlers

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hints surfaces occasional feature tips in command responses, rate-limited
// per room so they never get spammy.
type Hints struct {
	cooldowns   map[string]time.Time // roomID -> last hint time
	cooldownMu  sync.RWMutex
	cooldownDur time.Duration
	hintChance  float32
	hints       []string
}

func NewHints() *Hints {
	return &Hints{
		cooldowns:   make(map[string]time.Time),
		cooldownDur: 5 * time.Minute,
		hintChance:  0.15,
		hints: []string{
			"Pro tip: POST /rooms/private starts a synced listening session with a friend",
			"Pro tip: GET /mood/{mood} picks playlists matching how you look right now",
			"Pro tip: volume snaps to preset notches, so nearby values land on the same level",
			"Pro tip: GET /catalog/search?source=jamendo limits search to one catalog",
			"Pro tip: POST /library/tracks saves any direct audio URL to your library",
			"Pro tip: playback state survives restarts; it just comes back paused",
		},
	}
}

// ShouldShowHint rolls the dice for a room, honoring the cooldown.
func (h *Hints) ShouldShowHint(roomID string) (string, bool) {
	if rand.Float32() > h.hintChance {
		return "", false
	}

	h.cooldownMu.RLock()
	last, seen := h.cooldowns[roomID]
	h.cooldownMu.RUnlock()
	if seen && time.Since(last) < h.cooldownDur {
		return "", false
	}

	h.cooldownMu.Lock()
	h.cooldowns[roomID] = time.Now()
	h.cooldownMu.Unlock()

	hint := h.hints[rand.Intn(len(h.hints))]
	log.Tracef("showing hint in %s: %s", roomID, hint)
	return hint, true
}

// ClearCooldown resets a room's cooldown, mainly for tests.
func (h *Hints) ClearCooldown(roomID string) {
	h.cooldownMu.Lock()
	delete(h.cooldowns, roomID)
	h.cooldownMu.Unlock()
}
