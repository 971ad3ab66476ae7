package config

import (
	"os"
	"strconv"
)

type ConfigStruct struct {
	Session SessionConfig
	Options Options
	Redis   RedisConfig
	Jamendo JamendoConfig
	Spotify SpotifyConfig
	Youtube YoutubeConfig
	Gemini  GeminiConfig
}

// SessionConfig identifies the local listener on shared channels.
type SessionConfig struct {
	UserID      string
	DisplayName string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JamendoConfig struct {
	ClientID string
	Enabled  bool
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	Enabled      bool
	SearchLimit  int
}

type YoutubeConfig struct {
	APIKey      string
	Enabled     bool
	SearchLimit int
}

type GeminiConfig struct {
	Enabled bool
	APIKey  string
}

type Options struct {
	Port          string
	LogLevel      string
	ResumeOnStart bool
	FFPlayPath    string
}

func (r *RedisConfig) IsConfigured() bool {
	return r.Addr != ""
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Session: SessionConfig{
			UserID:      os.Getenv("USER_ID"),
			DisplayName: os.Getenv("DISPLAY_NAME"),
		},
		Options: Options{
			Port:          os.Getenv("PORT"),
			LogLevel:      os.Getenv("LOG_LEVEL"),
			ResumeOnStart: os.Getenv("RESUME_ON_START") == "true",
			FFPlayPath:    getFFPlayPath(),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getRedisDB(),
		},
		Jamendo: JamendoConfig{
			ClientID: os.Getenv("JAMENDO_CLIENT_ID"),
			Enabled:  os.Getenv("JAMENDO_CLIENT_ID") != "",
		},
		Spotify: SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
			Enabled:      os.Getenv("SPOTIFY_ENABLED") == "true",
			SearchLimit:  getSearchLimit("SPOTIFY_SEARCH_LIMIT", 10),
		},
		Youtube: YoutubeConfig{
			APIKey:      os.Getenv("YOUTUBE_API_KEY"),
			Enabled:     os.Getenv("YOUTUBE_API_KEY") != "",
			SearchLimit: getSearchLimit("YOUTUBE_SEARCH_LIMIT", 15),
		},
		Gemini: GeminiConfig{
			Enabled: os.Getenv("GEMINI_ENABLED") == "true",
			APIKey:  os.Getenv("GEMINI_API_KEY"),
		},
	}

	if config.Session.UserID == "" {
		config.Session.UserID = "local"
	}
	if config.Session.DisplayName == "" {
		config.Session.DisplayName = "Listener"
	}

	Config = config
}

func getRedisDB() int {
	dbStr := os.Getenv("REDIS_DB")
	if dbStr == "" {
		return 0
	}
	db, err := strconv.Atoi(dbStr)
	if err != nil || db < 0 {
		return 0
	}
	return db
}

func getSearchLimit(envVar string, fallback int) int {
	limitStr := os.Getenv(envVar)
	if limitStr == "" {
		return fallback
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > 50 {
		return 50 // API page cap
	}
	return limit
}

func getFFPlayPath() string {
	if path := os.Getenv("FFPLAY_PATH"); path != "" {
		return path
	}
	return "ffplay"
}
