package config

import "testing"

func TestGetSearchLimit(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{"empty", "", 10},
		{"invalid", "foo", 10},
		{"zero", "0", 10},
		{"negative", "-10", 10},
		{"min", "1", 1},
		{"mid", "25", 25},
		{"max", "50", 50},
		{"over", "51", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SPOTIFY_SEARCH_LIMIT", tt.env)
			if got := getSearchLimit("SPOTIFY_SEARCH_LIMIT", 10); got != tt.want {
				t.Errorf("getSearchLimit() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestGetRedisDB(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{"empty", "", 0},
		{"invalid", "abc", 0},
		{"negative", "-1", 0},
		{"zero", "0", 0},
		{"valid", "3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_DB", tt.env)
			if got := getRedisDB(); got != tt.want {
				t.Errorf("getRedisDB() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestGetFFPlayPath(t *testing.T) {
	t.Setenv("FFPLAY_PATH", "")
	if got := getFFPlayPath(); got != "ffplay" {
		t.Errorf("getFFPlayPath() = %q; want ffplay", got)
	}
	t.Setenv("FFPLAY_PATH", "/usr/local/bin/ffplay")
	if got := getFFPlayPath(); got != "/usr/local/bin/ffplay" {
		t.Errorf("getFFPlayPath() = %q; want /usr/local/bin/ffplay", got)
	}
}

func TestNewConfigSessionDefaults(t *testing.T) {
	t.Setenv("USER_ID", "")
	t.Setenv("DISPLAY_NAME", "")
	NewConfig()
	if Config.Session.UserID != "local" {
		t.Errorf("default UserID = %q; want local", Config.Session.UserID)
	}
	if Config.Session.DisplayName != "Listener" {
		t.Errorf("default DisplayName = %q; want Listener", Config.Session.DisplayName)
	}

	t.Setenv("USER_ID", "u42")
	t.Setenv("DISPLAY_NAME", "Ana")
	NewConfig()
	if Config.Session.UserID != "u42" || Config.Session.DisplayName != "Ana" {
		t.Errorf("session = %+v; want u42/Ana", Config.Session)
	}
}
