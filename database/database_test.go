package database

import (
	"path/filepath"
	"testing"
	"time"

	"moodsync/models"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "test.db"))
	db, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrackRoundTrip(t *testing.T) {
	db := newTestDB(t)

	want := models.Track{
		ID:       "jamendo-42",
		Title:    "Night Drive",
		Artist:   "Neon Coast",
		Album:    "Afterglow",
		URL:      "https://example.com/42.mp3",
		Image:    "https://example.com/42.jpg",
		Duration: 215,
		Source:   models.SourceJamendo,
		Tags:     []string{"chill", "electronic"},
	}
	if err := db.UpsertTrack(want); err != nil {
		t.Fatalf("UpsertTrack failed: %v", err)
	}

	got, err := db.GetTrack("jamendo-42")
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if got.Title != want.Title || got.Artist != want.Artist || got.URL != want.URL {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.Source != models.SourceJamendo {
		t.Errorf("source = %q, want jamendo", got.Source)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "chill" {
		t.Errorf("tags = %v, want [chill electronic]", got.Tags)
	}

	// Upsert with the same id replaces, not duplicates.
	want.Title = "Night Drive (Remaster)"
	if err := db.UpsertTrack(want); err != nil {
		t.Fatalf("second UpsertTrack failed: %v", err)
	}
	all, err := db.ListTracks("", 10)
	if err != nil {
		t.Fatalf("ListTracks failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 track after upsert, got %d", len(all))
	}
	if all[0].Title != "Night Drive (Remaster)" {
		t.Errorf("title after upsert = %q", all[0].Title)
	}
}

func TestSearchTracksCaseInsensitive(t *testing.T) {
	db := newTestDB(t)

	tracks := []models.Track{
		{ID: "t1", Title: "Morning Rain", Artist: "Cloudfall", URL: "u1", Source: models.SourceLibrary},
		{ID: "t2", Title: "Thunderstruck", Artist: "AC Current", URL: "u2", Source: models.SourceLibrary},
		{ID: "t3", Title: "Quiet Hours", Artist: "Rainmaker", URL: "u3", Source: models.SourceLibrary},
	}
	for _, tr := range tracks {
		if err := db.UpsertTrack(tr); err != nil {
			t.Fatalf("UpsertTrack %s failed: %v", tr.ID, err)
		}
	}

	got, err := db.SearchTracks("RAIN", 10)
	if err != nil {
		t.Fatalf("SearchTracks failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches for RAIN, got %d", len(got))
	}
	for _, tr := range got {
		if tr.ID == "t2" {
			t.Error("t2 should not match RAIN")
		}
	}
}

func TestPlaylistRoundTripPreservesOrder(t *testing.T) {
	db := newTestDB(t)

	for _, id := range []string{"a", "b", "c"} {
		track := models.Track{ID: id, Title: "track " + id, URL: "url-" + id, Source: models.SourceLibrary}
		if err := db.UpsertTrack(track); err != nil {
			t.Fatalf("UpsertTrack failed: %v", err)
		}
	}

	p := models.Playlist{
		ID:       "pl1",
		Title:    "Evening",
		OwnerID:  "alice",
		Tags:     []string{"chill", "night"},
		TrackIDs: []string{"c", "a", "b"},
	}
	if err := db.SavePlaylist(p); err != nil {
		t.Fatalf("SavePlaylist failed: %v", err)
	}

	got, err := db.GetPlaylist("pl1")
	if err != nil {
		t.Fatalf("GetPlaylist failed: %v", err)
	}
	if len(got.TrackIDs) != 3 || got.TrackIDs[0] != "c" || got.TrackIDs[1] != "a" || got.TrackIDs[2] != "b" {
		t.Errorf("track order = %v, want [c a b]", got.TrackIDs)
	}

	// Saving again with a shorter list replaces the old membership.
	p.TrackIDs = []string{"b"}
	if err := db.SavePlaylist(p); err != nil {
		t.Fatalf("second SavePlaylist failed: %v", err)
	}
	got, err = db.GetPlaylist("pl1")
	if err != nil {
		t.Fatalf("GetPlaylist after resave failed: %v", err)
	}
	if len(got.TrackIDs) != 1 || got.TrackIDs[0] != "b" {
		t.Errorf("track ids after resave = %v, want [b]", got.TrackIDs)
	}
}

func TestPlaylistTracksSkipsMissing(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertTrack(models.Track{ID: "kept", Title: "Kept", URL: "u", Source: models.SourceLibrary}); err != nil {
		t.Fatalf("UpsertTrack failed: %v", err)
	}
	p := models.Playlist{ID: "pl", Title: "Partial", TrackIDs: []string{"gone", "kept"}}
	if err := db.SavePlaylist(p); err != nil {
		t.Fatalf("SavePlaylist failed: %v", err)
	}

	tracks, err := db.PlaylistTracks("pl")
	if err != nil {
		t.Fatalf("PlaylistTracks failed: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "kept" {
		t.Errorf("tracks = %v, want only kept", tracks)
	}
}

func TestPlaylistsByTags(t *testing.T) {
	db := newTestDB(t)

	playlists := []models.Playlist{
		{ID: "p1", Title: "Rage", Tags: []string{"intense", "rock"}},
		{ID: "p2", Title: "Calm", Tags: []string{"chill", "acoustic"}},
		{ID: "p3", Title: "Mixed", Tags: []string{"rock", "pop"}},
	}
	for _, p := range playlists {
		if err := db.SavePlaylist(p); err != nil {
			t.Fatalf("SavePlaylist %s failed: %v", p.ID, err)
		}
	}

	got, err := db.PlaylistsByTags([]string{"rock"}, 10)
	if err != nil {
		t.Fatalf("PlaylistsByTags failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rock playlists, got %d", len(got))
	}
	for _, p := range got {
		if p.ID == "p2" {
			t.Error("p2 should not match rock")
		}
	}

	// No tags means no work, not a full scan.
	got, err = db.PlaylistsByTags(nil, 10)
	if err != nil {
		t.Fatalf("PlaylistsByTags(nil) failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for empty tag set, got %v", got)
	}
}

func TestMessagesComeBackChronological(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		msg := models.ChatMessage{
			ID:          text,
			RoomID:      "global",
			UserID:      "alice",
			DisplayName: "Alice",
			Type:        models.MessageText,
			Text:        text,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.SaveMessage(msg); err != nil {
			t.Fatalf("SaveMessage %s failed: %v", text, err)
		}
	}

	got, err := db.RecentMessages("global", 2)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Text != "second" || got[1].Text != "third" {
		t.Errorf("order = [%s %s], want [second third]", got[0].Text, got[1].Text)
	}
}

func TestControlMessageRoundTrip(t *testing.T) {
	db := newTestDB(t)

	msg := models.ChatMessage{
		ID:     "c1",
		RoomID: "private_alice_bob",
		UserID: "bob",
		Type:   models.MessageControl,
		Control: &models.ControlEvent{
			UserID:   "bob",
			Action:   models.ActionSeek,
			Position: 42.5,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveMessage(msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	got, err := db.RecentMessages("private_alice_bob", 10)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].Control == nil {
		t.Fatal("control payload lost")
	}
	if got[0].Control.Action != models.ActionSeek || got[0].Control.Position != 42.5 {
		t.Errorf("control = %+v, want seek at 42.5", got[0].Control)
	}

	// Duplicate ids are ignored, matching stream redelivery semantics.
	if err := db.SaveMessage(msg); err != nil {
		t.Fatalf("duplicate SaveMessage failed: %v", err)
	}
	got, err = db.RecentMessages("private_alice_bob", 10)
	if err != nil {
		t.Fatalf("RecentMessages after dup failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("duplicate id should be ignored, got %d messages", len(got))
	}
}
