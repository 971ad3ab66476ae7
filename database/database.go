package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"moodsync/models"
)

type Database struct {
	db *sql.DB
}

// New opens the sqlite database at DB_PATH (default ./data/moodsync.db),
// enables WAL, and runs migrations.
func New() (*Database, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/moodsync.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infof("Database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL DEFAULT '',
			album TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			image TEXT NOT NULL DEFAULT '',
			duration REAL NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT 'library',
			tags TEXT NOT NULL DEFAULT '[]',
			added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_source ON tracks(source)`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS playlist_tracks (
			playlist_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			track_id TEXT NOT NULL,
			PRIMARY KEY (playlist_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'message',
			text TEXT NOT NULL DEFAULT '',
			control TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room_id, created_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// UpsertTrack inserts or replaces a track row.
func (d *Database) UpsertTrack(track models.Track) error {
	tags, err := json.Marshal(track.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode track tags: %w", err)
	}
	_, err = d.db.Exec(
		`INSERT OR REPLACE INTO tracks (id, title, artist, album, url, image, duration, source, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.Title, track.Artist, track.Album, track.URL,
		track.Image, track.Duration, string(track.Source), string(tags),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track %s: %w", track.ID, err)
	}
	return nil
}

// GetTrack returns the track by id, or sql.ErrNoRows wrapped.
func (d *Database) GetTrack(id string) (models.Track, error) {
	row := d.db.QueryRow(
		`SELECT id, title, artist, album, url, image, duration, source, tags FROM tracks WHERE id = ?`, id)
	return scanTrack(row)
}

// ListTracks returns library tracks, newest first. source filters when
// non-empty.
func (d *Database) ListTracks(source models.TrackSource, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, title, artist, album, url, image, duration, source, tags FROM tracks`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY added_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

// SearchTracks matches title or artist, case-insensitive.
func (d *Database) SearchTracks(q string, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(q) + "%"
	rows, err := d.db.Query(
		`SELECT id, title, artist, album, url, image, duration, source, tags
		 FROM tracks
		 WHERE lower(title) LIKE ? OR lower(artist) LIKE ?
		 ORDER BY added_at DESC
		 LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

// SavePlaylist replaces the playlist row and its track list wholesale.
func (d *Database) SavePlaylist(p models.Playlist) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode playlist tags: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO playlists (id, title, description, owner_id, tags) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.OwnerID, string(tags),
	); err != nil {
		return fmt.Errorf("failed to upsert playlist %s: %w", p.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear playlist tracks: %w", err)
	}
	for i, trackID := range p.TrackIDs {
		if _, err := tx.Exec(
			`INSERT INTO playlist_tracks (playlist_id, position, track_id) VALUES (?, ?, ?)`,
			p.ID, i, trackID,
		); err != nil {
			return fmt.Errorf("failed to insert playlist track: %w", err)
		}
	}

	return tx.Commit()
}

// GetPlaylist returns the playlist and its ordered track ids.
func (d *Database) GetPlaylist(id string) (models.Playlist, error) {
	var p models.Playlist
	var tags string
	err := d.db.QueryRow(
		`SELECT id, title, description, owner_id, tags FROM playlists WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Description, &p.OwnerID, &tags)
	if err != nil {
		return p, fmt.Errorf("failed to get playlist %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		log.Warnf("malformed tags on playlist %s: %v", id, err)
	}

	rows, err := d.db.Query(
		`SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position`, id)
	if err != nil {
		return p, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var trackID string
		if err := rows.Scan(&trackID); err != nil {
			return p, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		p.TrackIDs = append(p.TrackIDs, trackID)
	}
	return p, rows.Err()
}

// ListPlaylists returns every playlist without track lists.
func (d *Database) ListPlaylists() ([]models.Playlist, error) {
	rows, err := d.db.Query(
		`SELECT id, title, description, owner_id, tags FROM playlists ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var out []models.Playlist
	for rows.Next() {
		var p models.Playlist
		var tags string
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.OwnerID, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			log.Warnf("malformed tags on playlist %s: %v", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PlaylistsByTags returns playlists whose tag set intersects tags. Tags are
// stored as a JSON array, so a quoted-substring match is exact per tag.
func (d *Database) PlaylistsByTags(tags []string, limit int) ([]models.Playlist, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	conds := make([]string, 0, len(tags))
	args := make([]any, 0, len(tags)+1)
	for _, tag := range tags {
		conds = append(conds, "tags LIKE ?")
		args = append(args, `%"`+strings.ToLower(tag)+`"%`)
	}
	args = append(args, limit)

	rows, err := d.db.Query(
		`SELECT id, title, description, owner_id, tags FROM playlists WHERE `+
			strings.Join(conds, " OR ")+` ORDER BY created_at DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists by tags: %w", err)
	}
	defer rows.Close()

	var out []models.Playlist
	for rows.Next() {
		var p models.Playlist
		var rawTags string
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.OwnerID, &rawTags); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		if err := json.Unmarshal([]byte(rawTags), &p.Tags); err != nil {
			log.Warnf("malformed tags on playlist %s: %v", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PlaylistTracks resolves the playlist's track ids into full tracks,
// preserving order. Missing tracks are skipped with a warning.
func (d *Database) PlaylistTracks(id string) ([]models.Track, error) {
	p, err := d.GetPlaylist(id)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(p.TrackIDs))
	for _, trackID := range p.TrackIDs {
		track, err := d.GetTrack(trackID)
		if err != nil {
			log.Warnf("playlist %s references missing track %s", id, trackID)
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// SaveMessage persists one chat or control message.
func (d *Database) SaveMessage(msg models.ChatMessage) error {
	var control sql.NullString
	if msg.Control != nil {
		raw, err := json.Marshal(msg.Control)
		if err != nil {
			return fmt.Errorf("failed to encode control payload: %w", err)
		}
		control = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := d.db.Exec(
		`INSERT OR IGNORE INTO chat_messages (id, room_id, user_id, display_name, type, text, control, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.UserID, msg.DisplayName, string(msg.Type),
		msg.Text, control, msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest messages for a room in chronological
// order, ready for history rendering.
func (d *Database) RecentMessages(roomID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.Query(
		`SELECT id, room_id, user_id, display_name, type, text, control, created_at
		 FROM chat_messages
		 WHERE room_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var msgType, createdAt string
		var control sql.NullString
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.DisplayName,
			&msgType, &msg.Text, &control, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Type = models.MessageType(msgType)
		if control.Valid {
			var ev models.ControlEvent
			if err := json.Unmarshal([]byte(control.String), &ev); err == nil {
				msg.Control = &ev
			} else {
				log.Warnf("malformed control payload on message %s: %v", msg.ID, err)
			}
		}
		msg.CreatedAt = parseTimestamp(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query, oldest-first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// parseTimestamp handles the formats sqlite hands back depending on how the
// value was written.
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	log.Warnf("failed to parse timestamp '%s' with all known formats", s)
	return time.Now()
}

func scanTrack(row *sql.Row) (models.Track, error) {
	var t models.Track
	var source, tags string
	err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.URL,
		&t.Image, &t.Duration, &source, &tags)
	if err != nil {
		return t, fmt.Errorf("failed to scan track: %w", err)
	}
	t.Source = models.TrackSource(source)
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		log.Warnf("malformed tags on track %s: %v", t.ID, err)
	}
	return t, nil
}

func collectTracks(rows *sql.Rows) ([]models.Track, error) {
	var out []models.Track
	for rows.Next() {
		var t models.Track
		var source, tags string
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.URL,
			&t.Image, &t.Duration, &source, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		t.Source = models.TrackSource(source)
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			log.Warnf("malformed tags on track %s: %v", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
