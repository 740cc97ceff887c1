package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"stavweb/admin"
	"stavweb/audit"
	"stavweb/cache"
	"stavweb/common"
	"stavweb/config"
	"stavweb/database"
	"stavweb/pages"
)

// serve runs the HTTP API until ctx is cancelled.
func serve(ctx context.Context) error {
	// Load .env if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	db, err := common.ConnectDb(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer closeDb(db)

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	auditDB := common.ConnectAuditDb(cfg.AuditDB)
	if auditDB != nil {
		defer closeDb(auditDB)
	}
	auditModule := audit.NewAuditModule(auditDB)
	auditModule.StartRetention(cfg.AuditRetention)
	defer auditModule.Stop()

	store, stopSweep := newCacheStore(cfg)
	defer func() {
		stopSweep()
		if err := store.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()

	router, err := newRouter(cfg, db, auditModule, store)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr(), "auth", cfg.AuthEnabled(), "audit", auditModule != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func newRouter(cfg *config.Config, db *gorm.DB, auditModule *audit.AuditModule, store cache.Store) (*gin.Engine, error) {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	// c.ClientIP feeds the login limiter and the audit trail
	if err := router.SetTrustedProxies(cfg.Proxies()); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.Use(gin.Logger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("panic while handling request", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Došlo k neočekávané chybě"})
	}))

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		// sessions are only used by editor login, which is off without a hash
		sessionSecret = uuid.NewString() + uuid.NewString()
	}
	sessionStore := cookie.NewStore([]byte(sessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions("stavweb-session", sessionStore))

	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			slog.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	adminModule := admin.NewAdminModule(cfg.EditorPasswordHash, cfg.LoginAttemptsPerMinute)
	adminModule.RegisterRoutes(api)

	pagesModule := pages.NewPagesModule(db, auditModule)
	if cfg.CacheTTL > 0 {
		pagesModule.UseCache(store, cfg.CacheTTL)
	}
	pagesModule.RegisterRoutes(api, adminModule.RequireEditor)

	return router, nil
}

// newCacheStore prefers Redis when configured and falls back to process memory.
// The returned func stops background maintenance of the store.
func newCacheStore(cfg *config.Config) (cache.Store, func()) {
	if cfg.UseRedisCache() {
		store, err := cache.NewRedisStore(cfg.RedisURL, cfg.CachePrefix, cfg.CacheTTL)
		if err == nil {
			slog.Info("response cache initialized", "backend", "redis")
			return store, func() {}
		}
		slog.Warn("redis unavailable, using memory cache", "error", err)
	}

	store := cache.NewMemoryStore(cfg.CacheTTL)
	sweeper := cron.New()
	_, _ = sweeper.AddFunc("@every 5m", func() {
		if removed := store.Sweep(); removed > 0 {
			slog.Debug("swept response cache", "removed", removed)
		}
	})
	sweeper.Start()

	slog.Info("response cache initialized", "backend", "memory")
	return store, func() { <-sweeper.Stop().Done() }
}

func closeDb(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("error closing database connection", "error", err)
	}
}
