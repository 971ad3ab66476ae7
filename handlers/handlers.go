// Package handlers exposes the player daemon's command surface over HTTP:
// transport operations, catalog search, mood recommendations, the track
// library, and chat rooms.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"moodsync/bus"
	"moodsync/catalog"
	"moodsync/chat"
	"moodsync/control"
	"moodsync/database"
	"moodsync/models"
	"moodsync/mood"
	"moodsync/player"
)

type Manager struct {
	Engine  *player.Engine
	Chat    *chat.Service
	Catalog *catalog.Registry
	Mood    *mood.Service
	DB      *database.Database
	Youtube *catalog.YouTube
	Bus     *bus.Bus
	Hints   *Hints

	logger *log.Entry
}

func NewManager(engine *player.Engine, chatSvc *chat.Service, registry *catalog.Registry, moodSvc *mood.Service, db *database.Database, yt *catalog.YouTube, b *bus.Bus) *Manager {
	return &Manager{
		Engine:  engine,
		Chat:    chatSvc,
		Catalog: registry,
		Mood:    moodSvc,
		DB:      db,
		Youtube: yt,
		Bus:     b,
		Hints:   NewHints(),
		logger:  log.WithFields(log.Fields{"module": "handlers"}),
	}
}

// Register mounts every route on the router.
func (m *Manager) Register(router *gin.Engine) {
	router.GET("/player/state", m.state)
	router.POST("/player/load", m.load)
	router.POST("/player/playlist", m.loadPlaylist)
	router.POST("/player/playpause", m.playPause)
	router.POST("/player/seek", m.seek)
	router.POST("/player/next", m.next)
	router.POST("/player/previous", m.previous)
	router.POST("/player/volume", m.volume)
	router.POST("/player/mute", m.mute)

	router.GET("/catalog/search", m.search)
	router.GET("/mood/:mood", m.recommend)

	router.GET("/library/tracks", m.listTracks)
	router.POST("/library/tracks", m.addTrack)
	router.GET("/library/search", m.searchLibrary)
	router.GET("/playlists", m.listPlaylists)
	router.POST("/playlists", m.savePlaylist)
	router.GET("/playlists/:id/tracks", m.playlistTracks)

	router.POST("/rooms/private", m.joinPrivate)
	router.DELETE("/rooms/:id", m.leaveRoom)
	router.POST("/rooms/:id/messages", m.sendMessage)
	router.GET("/rooms/:id/messages", m.roomHistory)
	router.GET("/rooms/:id/ws", m.roomSocket)
}

func (m *Manager) state(c *gin.Context) {
	c.JSON(http.StatusOK, m.Engine.Snapshot())
}

func (m *Manager) load(c *gin.Context) {
	var track models.Track
	if err := c.ShouldBindJSON(&track); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track payload"})
		return
	}

	// Watch URLs need the yt-dlp hop before ffplay can touch them.
	if track.Source == models.SourceYoutube && m.Youtube != nil {
		resolved, err := m.Youtube.ResolveStream(track)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve stream"})
			return
		}
		track = resolved
	}

	if err := m.Engine.LoadTrack(track); err != nil {
		m.transportError(c, err)
		return
	}
	m.Bus.Publish(bus.EventPlayTrack, track)
	c.JSON(http.StatusOK, m.Engine.Snapshot())
}

type playlistRequest struct {
	Tracks []models.Track `json:"tracks"`
	Index  int            `json:"index"`
}

func (m *Manager) loadPlaylist(c *gin.Context) {
	var req playlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist payload"})
		return
	}
	if err := m.Engine.LoadPlaylist(req.Tracks, req.Index); err != nil {
		m.transportError(c, err)
		return
	}
	m.Bus.Publish(bus.EventPlayPlaylist, req.Tracks[req.Index])
	c.JSON(http.StatusOK, m.Engine.Snapshot())
}

func (m *Manager) playPause(c *gin.Context) {
	if err := m.Engine.PlayPause(); err != nil {
		m.transportError(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Engine.Snapshot())
}

type seekRequest struct {
	Position float64 `json:"position"`
}

func (m *Manager) seek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seek payload"})
		return
	}
	if err := m.Engine.SeekTo(req.Position); err != nil {
		m.transportError(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Engine.Snapshot())
}

func (m *Manager) next(c *gin.Context) {
	m.Engine.Next()
	c.JSON(http.StatusOK, m.Engine.Snapshot())
}

func (m *Manager) previous(c *gin.Context) {
	m.Engine.Previous()
	c.JSON(http.StatusOK, m.Engine.Snapshot())
}

type volumeRequest struct {
	Level float64 `json:"level"`
}

func (m *Manager) volume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid volume payload"})
		return
	}
	applied := m.Engine.SetVolume(req.Level)
	c.JSON(http.StatusOK, gin.H{"volume": applied})
}

func (m *Manager) mute(c *gin.Context) {
	muted := m.Engine.ToggleMute()
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (m *Manager) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit := intQuery(c, "limit", 10)

	var tracks []models.Track
	var err error
	if source := c.Query("source"); source != "" {
		tracks, err = m.Catalog.SearchSource(c.Request.Context(), models.TrackSource(source), query, limit)
	} else {
		tracks, err = m.Catalog.Search(c.Request.Context(), query, limit)
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func (m *Manager) recommend(c *gin.Context) {
	label := c.Param("mood")
	max := intQuery(c, "max", 5)
	c.JSON(http.StatusOK, m.Mood.Recommend(c.Request.Context(), label, max))
}

func (m *Manager) listTracks(c *gin.Context) {
	tracks, err := m.DB.ListTracks(models.TrackSource(c.Query("source")), intQuery(c, "limit", 50))
	if err != nil {
		m.logger.Errorf("list tracks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "library unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

// addTrack covers adding a track by direct URL; the audio blob itself stays
// wherever the URL points.
func (m *Manager) addTrack(c *gin.Context) {
	var track models.Track
	if err := c.ShouldBindJSON(&track); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track payload"})
		return
	}
	if track.URL == "" || track.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url and title are required"})
		return
	}
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.Source == "" {
		track.Source = models.SourceLibrary
	}
	if err := m.DB.UpsertTrack(track); err != nil {
		m.logger.Errorf("add track: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save track"})
		return
	}
	c.JSON(http.StatusCreated, track)
}

func (m *Manager) searchLibrary(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	tracks, err := m.DB.SearchTracks(query, intQuery(c, "limit", 20))
	if err != nil {
		m.logger.Errorf("search library: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "library unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func (m *Manager) listPlaylists(c *gin.Context) {
	playlists, err := m.DB.ListPlaylists()
	if err != nil {
		m.logger.Errorf("list playlists: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "library unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

func (m *Manager) savePlaylist(c *gin.Context) {
	var p models.Playlist
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist payload"})
		return
	}
	if p.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := m.DB.SavePlaylist(p); err != nil {
		m.logger.Errorf("save playlist: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save playlist"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (m *Manager) playlistTracks(c *gin.Context) {
	tracks, err := m.DB.PlaylistTracks(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

type joinPrivateRequest struct {
	PeerID string `json:"peer_id"`
}

// joinPrivate enters the synchronized session with a peer: derive the pair
// room, join its chat, and bind the engine to it.
func (m *Manager) joinPrivate(c *gin.Context) {
	var req joinPrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PeerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer_id is required"})
		return
	}

	roomID := m.Chat.JoinPrivate(req.PeerID)
	m.Engine.BindChannel(roomID)
	c.JSON(http.StatusOK, gin.H{"room_id": roomID})
}

func (m *Manager) leaveRoom(c *gin.Context) {
	roomID := c.Param("id")
	m.Chat.Leave(roomID)
	if control.IsPrivateRoom(roomID) && m.Engine.Snapshot().Channel == roomID {
		m.Engine.UnbindChannel()
	}
	c.JSON(http.StatusOK, gin.H{"left": roomID})
}

type messageRequest struct {
	Text string `json:"text"`
}

func (m *Manager) sendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	msg, err := m.Chat.Send(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "send failed"})
		return
	}
	if hint, ok := m.Hints.ShouldShowHint(c.Param("id")); ok {
		c.JSON(http.StatusCreated, gin.H{"message": msg, "hint": hint})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (m *Manager) roomHistory(c *gin.Context) {
	messages, err := m.Chat.HistoryFor(c.Param("id"), intQuery(c, "limit", 50))
	if err != nil {
		m.logger.Errorf("room history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (m *Manager) roomSocket(c *gin.Context) {
	m.Chat.Hub().ServeWS(c.Writer, c.Request, c.Param("id"))
}

// transportError maps engine sentinels onto HTTP statuses: state-machine
// rejections are conflicts, bad input is a bad request.
func (m *Manager) transportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, player.ErrNoTrack):
		c.JSON(http.StatusConflict, gin.H{"error": "no track loaded"})
	case errors.Is(err, player.ErrNoSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": "track has no source url"})
	case errors.Is(err, player.ErrInvalidIndex):
		c.JSON(http.StatusBadRequest, gin.H{"error": "start index out of range"})
	case errors.Is(err, control.ErrChannelUnavailable):
		// The local transition stuck; report the sync failure without
		// pretending the operation failed outright.
		c.JSON(http.StatusOK, gin.H{"state": m.Engine.Snapshot(), "sync_error": "channel unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}
