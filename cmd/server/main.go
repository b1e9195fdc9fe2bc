package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/classroom-sync/internal/config"
	"github.com/yukikurage/classroom-sync/internal/constants"
	"github.com/yukikurage/classroom-sync/internal/database"
	"github.com/yukikurage/classroom-sync/internal/handlers"
	"github.com/yukikurage/classroom-sync/internal/logger"
	"github.com/yukikurage/classroom-sync/internal/middleware"
	"github.com/yukikurage/classroom-sync/internal/repository"
	"github.com/yukikurage/classroom-sync/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the collection store
	repo, watcher, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open collection store")
	}

	syncService := services.NewSyncService(repo, cfg.Sync, logger.Component(log, "sync"))
	pendingService := services.NewPendingService(repo, nil, logger.Component(log, "pending"))

	if watcher != nil {
		go watchStore(ctx, watcher, syncService, logger.Component(log, "watcher"))
	}
	if cfg.Sync.Enabled {
		syncService.Enable(ctx)
	}

	// Set Gin mode
	gin.SetMode(cfg.GinMode)
	gin.DefaultWriter = log.WriterLevel(logrus.InfoLevel)
	gin.DefaultErrorWriter = log.WriterLevel(logrus.ErrorLevel)

	// Initialize Gin router
	r := gin.Default()

	// Setup session middleware with Redis
	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	store, err := redisStore.NewStore(
		10,        // Redis pool size
		"tcp",     // network type
		redisAddr, // Redis address from config
		"",        // username (empty for default user)
		"",        // password (empty = no password)
		[]byte(cfg.SessionSecret), // authentication key
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Redis store")
	}
	isProduction := cfg.GinMode == "release"
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionName, store))

	// Initialize handlers
	pendingHandler := handlers.NewPendingHandler(pendingService)
	syncHandler := handlers.NewSyncHandler(ctx, syncService, logger.Component(log, "http"))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Classroom sync engine is running",
			"sync":    syncService.State(),
		})
	})

	// API routes
	api := r.Group("/api")
	api.Use(middleware.RequireAuth())
	{
		api.GET("/pending", pendingHandler.GetPending)

		sync := api.Group("/sync")
		{
			sync.GET("/status", syncHandler.GetStatus)
			sync.GET("/consistency", syncHandler.GetConsistency)
			sync.POST("/run", syncHandler.RunSync)
			sync.POST("/enable", syncHandler.Enable)
			sync.POST("/disable", syncHandler.Disable)
			sync.PUT("/config", syncHandler.UpdateConfig)
			sync.DELETE("/stats", syncHandler.ClearStats)
			sync.POST("/events", syncHandler.PostEvent)
			sync.GET("/events", syncHandler.StreamEvents)
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	// Start server
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	syncService.Disable()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown did not complete")
	}
}

// openStore builds the repository selected by STORE_DRIVER. Only the file
// store can report writes made by other processes.
func openStore(cfg *config.Config, log *logrus.Logger) (repository.CollectionRepository, repository.ChangeWatcher, error) {
	if cfg.StoreDriver == config.StoreDriverFile {
		repo, err := repository.NewFileCollectionRepository(cfg.DataDir, logger.Component(log, "store"))
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	}

	dbLog := logger.Component(log, "database")
	if err := database.Connect(cfg, dbLog); err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(dbLog); err != nil {
		return nil, nil, err
	}
	return repository.NewCollectionRepository(database.GetDB()), nil, nil
}

// watchStore turns external writes to the tasks collection into debounced
// sync triggers until ctx is done.
func watchStore(ctx context.Context, watcher repository.ChangeWatcher, syncService *services.SyncService, log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Store watcher panicked")
		}
	}()

	err := watcher.Watch(ctx, func(c repository.Collection) {
		scheduled, err := syncService.NotifyStorageChange(c)
		if err != nil && !errors.Is(err, services.ErrSyncDisabled) {
			log.WithError(err).Warn("Failed to schedule sync")
			return
		}
		if scheduled {
			log.WithField("collection", c).Debug("Store changed, sync scheduled")
		}
	})
	if err != nil {
		log.WithError(err).Error("Store watcher stopped")
	}
}
