package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AbdalrahmanMG/book-shop/internal/app"
	"github.com/AbdalrahmanMG/book-shop/internal/config"
	"github.com/AbdalrahmanMG/book-shop/internal/server"
	"github.com/AbdalrahmanMG/book-shop/internal/util"
	"github.com/AbdalrahmanMG/book-shop/pkg/storage"
	"github.com/AbdalrahmanMG/book-shop/pkg/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("BOOKSHOP_CONFIG"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := util.InitLogger(cfg.LogLevel)

	bookStore, err := buildStore(cfg)
	if err != nil {
		log.Error("init store", "err", err)
		os.Exit(1)
	}
	sessions := buildSessions(cfg)
	images, err := buildImages(cfg)
	if err != nil {
		log.Error("init image store", "err", err)
		os.Exit(1)
	}

	core, err := app.New(app.Config{
		Store:    bookStore,
		Sessions: sessions,
		Images:   images,
		Logger:   log,
	})
	if err != nil {
		log.Error("init app", "err", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		App:                     core,
		AuthCookieName:          cfg.AuthCookieName,
		CookieSecure:            cfg.CookieSecure,
		SessionMaxAge:           cfg.SessionMaxAgeSecond,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		DefaultPageSize:         cfg.DefaultPageSize,
		CORSOrigin:              cfg.CORSOrigin,
		TrustProxy:              cfg.TrustProxy,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		log.Error("init server", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("book-shop server listening", "port", cfg.Port, "storage", cfg.StorageDriver, "uploads", cfg.UploadDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("shutdown", "err", err)
	}
	log.Info("server stopped")
}

func buildStore(cfg config.FileConfig) (store.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return store.NewGormStore(cfg.DatabaseURL)
	default:
		return store.NewJSONStore(cfg.DataDir)
	}
}

func buildSessions(cfg config.FileConfig) store.SessionStore {
	ttl := time.Duration(cfg.SessionMaxAgeSecond) * time.Second
	if cfg.RedisAddr != "" {
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, ttl)
	}
	return store.NewMemorySessionStore(ttl)
}

func buildImages(cfg config.FileConfig) (storage.ImageStore, error) {
	if cfg.UploadDriver == config.UploadMinio {
		return storage.NewMinioImageStore(
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL,
		)
	}
	return storage.NewDiskImageStore(cfg.UploadsDir, cfg.UploadsURL)
}
