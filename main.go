package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"layover-match/internal/auth"
	"layover-match/internal/config"
	"layover-match/internal/database"
	"layover-match/internal/events"
	"layover-match/internal/handlers"
	"layover-match/internal/logger"
	"layover-match/internal/push"
	"layover-match/internal/redis"
	"layover-match/internal/services"
	"layover-match/internal/session"
	"layover-match/internal/store"
	"layover-match/internal/store/memstore"
	"layover-match/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 256

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Info("No .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	// Initialize the durable store
	var (
		backend store.Store
		health  func(context.Context) error
	)
	if cfg.MemoryStore() {
		log.Warn("Using in-memory store, data is lost on restart")
		backend = memstore.New(memstore.WithPublisher(bus))
	} else {
		db, err := database.Initialize(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		if cfg.SeedAirports {
			if err := database.SeedAirports(db); err != nil {
				log.WithError(err).Fatal("Failed to seed airports")
			}
		}
		backend = database.NewStore(db,
			database.WithPublisher(bus),
			database.WithNotifyChannel(cfg.NotifyChannel),
			database.WithLogger(logger.Component(log, "store")),
		)
		health = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}

		listener := database.NewListener(cfg.DatabaseURL, cfg.NotifyChannel, bus, logger.Component(log, "listener"))
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Notification listener stopped")
			}
		}()
	}

	// Initialize Redis
	redisClient, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	authService := auth.NewService(backend, redisClient, cfg.JWTSecret, cfg.JWTExpiry, logger.Component(log, "auth"))
	hub := websocket.NewHub(logger.Component(log, "websocket"))
	sessions := session.NewManager(backend, logger.Component(log, "session"),
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.OnEvict(hub.Disconnect),
	)
	go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)

	subscribe := func(run func(context.Context, <-chan events.Event)) {
		ch, cancel := bus.Subscribe(subscriberBuffer)
		go func() {
			defer cancel()
			run(ctx, ch)
		}()
	}
	subscribe(sessions.Run)
	subscribe(hub.Run)

	if cfg.PushEnabled() {
		sender, err := push.NewFCMSender(ctx, cfg.FirebaseProjectID, cfg.FirebasePrivateKeyPath)
		if err != nil {
			log.WithError(err).Warn("Push notifications disabled")
		} else {
			subscribe(push.NewNotifier(backend, sender, logger.Component(log, "push")).Run)
		}
	}

	var photos services.PhotoStorage
	storage, err := services.NewStorageService(cfg, logger.Component(log, "storage"))
	if err != nil {
		log.WithError(err).Warn("Photo storage disabled")
	} else {
		if err := storage.CreateBucket(ctx); err != nil {
			log.WithError(err).Warn("Failed to ensure photo bucket")
		}
		photos = storage
	}

	gin.SetMode(cfg.GinMode)
	router := handlers.NewRouter(handlers.Deps{
		Auth:        authService,
		Sessions:    sessions,
		Airports:    backend,
		Photos:      photos,
		Hub:         hub,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   handlers.RateLimit{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		Health:      health,
		Log:         logger.Component(log, "http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(srv, log)
}

func shutdown(srv *http.Server, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
