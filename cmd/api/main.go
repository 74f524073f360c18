package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/swiftcab/dispatch/internal/api/handlers"
	"github.com/swiftcab/dispatch/internal/api/routes"
	"github.com/swiftcab/dispatch/internal/config"
	"github.com/swiftcab/dispatch/internal/domain/user"
	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/internal/service/ingest"
	"github.com/swiftcab/dispatch/internal/service/lifecycle"
	"github.com/swiftcab/dispatch/internal/service/matching"
	"github.com/swiftcab/dispatch/internal/store/tripstore"
	"github.com/swiftcab/dispatch/internal/store/userstore"
	"github.com/swiftcab/dispatch/pkg/cache"
	"github.com/swiftcab/dispatch/pkg/database"
	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/monitoring"
	"github.com/swiftcab/dispatch/pkg/pubsub"
	"github.com/swiftcab/dispatch/pkg/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("Starting dispatch service",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
		logger.String("geo_backend", cfg.Geo.Backend),
		logger.String("storage_backend", cfg.Storage.Backend),
	)

	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		log.Fatal("Failed to initialize New Relic", logger.Err(err))
	}
	if nrApp.IsEnabled() {
		log.Info("New Relic monitoring enabled", logger.String("app_name", cfg.NewRelic.AppName))
	}

	var index geo.Index
	if cfg.Geo.Backend == "redis" {
		redisClient, err := cache.NewRedisClient(cache.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
			ReadTimeout: cfg.Redis.ReadTimeout,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", logger.Err(err))
		}
		defer cache.Close(redisClient)
		index = geo.NewRedisIndex(redisClient, cfg.Geo.StaleAfter)
		log.Info("Connected to Redis geo index")
	} else {
		index = geo.NewMemoryIndex(cfg.Geo.StaleAfter)
		log.Info("Using in-memory geo index")
	}

	var trips tripstore.Store
	var users user.Repository
	if cfg.Storage.Backend == "postgres" {
		db, err := database.NewPostgresDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MaxIdle:  cfg.Database.MaxIdle,
		})
		if err != nil {
			log.Fatal("Failed to connect to database", logger.Err(err))
		}
		defer db.Close()
		trips = tripstore.NewPostgresStore(db)
		users = userstore.NewPostgresStore(db)
		log.Info("Connected to PostgreSQL")
	} else {
		trips = tripstore.NewMemoryStore()
		users = userstore.NewMemoryStore()
		log.Info("Using in-memory stores")
	}

	hub := pubsub.NewHub(cfg.Hub.QueueSize, log)
	gateway := websocket.NewGateway(hub, log)

	lifecycleSvc := lifecycle.NewService(trips, users, hub, log)
	matchingSvc := matching.NewService(index, log, matching.Config{
		SearchRadiusKM: cfg.Matching.SearchRadiusKM,
		Timeout:        cfg.Matching.Timeout,
		PollInterval:   cfg.Matching.PollInterval,
	})
	ingestSvc := ingest.NewService(users, index, hub, log, cfg.Ingest.MinInterval)

	h := handlers.NewHandlers(lifecycleSvc, matchingSvc, ingestSvc, users, index, gateway, log)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	var nrApplication *newrelic.Application
	if nrApp.IsEnabled() {
		nrApplication = nrApp.Application
	}
	routes.SetupRoutes(router, h, nrApplication)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", logger.Err(err))
	}
	nrApp.Shutdown(5 * time.Second)

	log.Info("Server stopped")
}
