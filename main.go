package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	sentrygo "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"moodsync/audio"
	"moodsync/bus"
	"moodsync/catalog"
	"moodsync/chat"
	appConfig "moodsync/config"
	"moodsync/control"
	"moodsync/database"
	"moodsync/gemini"
	"moodsync/handlers"
	"moodsync/models"
	"moodsync/mood"
	"moodsync/pages"
	"moodsync/player"
	"moodsync/sentry"
	"moodsync/store"
	"moodsync/stream"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("Error loading .env file: %v", err)
	}
	appConfig.NewConfig()

	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"module", "user"},
	})
	if level, err := log.ParseLevel(appConfig.Config.Options.LogLevel); err == nil {
		log.SetLevel(level)
	}

	sentry.Init()
	defer sentrygo.Flush(2 * time.Second)

	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := appConfig.Config

	// Redis backs the shared stream and the persistence slots in
	// production; a redis-less run stays fully in-process.
	var (
		msgStream stream.Stream
		kv        store.Store
	)
	if cfg.Redis.IsConfigured() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			sentry.ReportError(err)
			return err
		}
		msgStream = stream.NewRedis(rdb)
		kv = store.NewRedis(rdb, cfg.Session.UserID)
		log.Infof("connected to redis at %s", cfg.Redis.Addr)
	} else {
		msgStream = stream.NewMemory()
		kv = store.NewMemory()
		log.Warn("REDIS_ADDR not set, running in-process only")
	}

	db, err := database.New()
	if err != nil {
		sentry.ReportError(err)
		return err
	}
	defer db.Close()

	out := audio.NewFFPlay(cfg.Options.FFPlayPath)
	adapter := control.NewAdapter(msgStream, cfg.Session.UserID)
	engine := player.NewEngine(out, kv, adapter, cfg.Session.UserID, cfg.Session.DisplayName)
	defer engine.Close()

	engine.Restore(ctx)
	if cfg.Options.ResumeOnStart {
		if snap := engine.Snapshot(); snap.Track != nil {
			if err := engine.PlayPause(); err != nil {
				log.Warnf("resume on start failed: %v", err)
			}
		}
	}

	eventBus := bus.New()
	chatSvc := chat.NewService(msgStream, db, eventBus, cfg.Session.UserID, cfg.Session.DisplayName)
	defer chatSvc.Close()
	chatSvc.Join(control.GlobalRoom)

	// Control messages chat observes in any joined room reach the engine
	// through here. The engine dedups on record id, so the copy delivered by
	// its own adapter subscription is applied only once.
	controlEvents, cancelControlEvents := eventBus.Subscribe(bus.EventRemoteControl)
	defer cancelControlEvents()
	go func() {
		for evt := range controlEvents {
			if n, ok := evt.Payload.(chat.ControlNotification); ok {
				engine.ApplyRemoteEvent(n.RoomID, n.Event)
			}
		}
	}()

	// Track selections announce themselves in the global room with a line of
	// generated copy. Gemini disabled means no announcement, not a stub one.
	trackEvents, cancelTrackEvents := eventBus.Subscribe(bus.EventPlayTrack)
	defer cancelTrackEvents()
	playlistEvents, cancelPlaylistEvents := eventBus.Subscribe(bus.EventPlayPlaylist)
	defer cancelPlaylistEvents()
	go func() {
		announce := func(track models.Track) {
			blurb := gemini.TrackBlurb(ctx, track.Title, track.Artist)
			if blurb == "" {
				return
			}
			if _, err := chatSvc.Send(ctx, control.GlobalRoom, blurb); err != nil {
				log.Warnf("announce track: %v", err)
			}
		}
		for {
			select {
			case evt, ok := <-trackEvents:
				if !ok {
					return
				}
				if track, ok := evt.Payload.(models.Track); ok {
					announce(track)
				}
			case evt, ok := <-playlistEvents:
				if !ok {
					return
				}
				if track, ok := evt.Payload.(models.Track); ok {
					announce(track)
				}
			}
		}
	}()

	var (
		sources []catalog.Source
		jamendo *catalog.Jamendo
		yt      *catalog.YouTube
	)
	if cfg.Jamendo.Enabled {
		jamendo = catalog.NewJamendo(cfg.Jamendo.ClientID)
		sources = append(sources, jamendo)
	}
	sources = append(sources, catalog.NewPagalWorld())
	if cfg.Spotify.Enabled {
		sp, err := catalog.NewSpotify(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
		if err != nil {
			log.Warnf("spotify disabled: %v", err)
		} else {
			sources = append(sources, sp)
		}
	}
	if cfg.Youtube.Enabled {
		yt = catalog.NewYouTube(cfg.Youtube.APIKey, cfg.Youtube.SearchLimit)
		sources = append(sources, yt)
	}
	registry := catalog.NewRegistry(sources...)

	var searcher mood.TagSearcher
	if jamendo != nil {
		searcher = jamendo
	}
	moodSvc := mood.NewService(db, searcher)

	manager := handlers.NewManager(engine, chatSvc, registry, moodSvc, db, yt, eventBus)

	router := gin.Default()
	router.Use(sentry.GinMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, pages.Index)
	})
	manager.Register(router)

	port := cfg.Options.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}()

	log.Infof("Starting server on :%s", port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
