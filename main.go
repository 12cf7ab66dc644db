package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"photogallery/access"
	"photogallery/auth"
	"photogallery/config"
	"photogallery/db"
	"photogallery/derivative"
	"photogallery/gallery"
	"photogallery/handlers"
	"photogallery/mail"
	"photogallery/models"
	"photogallery/processing"
	"photogallery/ratelimit"
	"photogallery/storage"
	"photogallery/transform"
	"photogallery/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/autotls"
	"github.com/gin-gonic/gin"
)

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.DebugMode {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if err = run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()
	database, err := db.Open(cfg)
	if err != nil {
		return err
	}
	if err = models.Init(database); err != nil {
		return err
	}
	store, err := storage.NewStorage(storage.BucketFromConfig(cfg))
	if err != nil {
		return err
	}

	var transformer transform.Transformer = transform.Identity{}
	if cfg.TransformEnabled {
		native := transform.NewNative(cfg.OutputFormat, cfg.OutputQuality)
		native.MaxEdge = cfg.IngestMaxEdge
		transformer = native
	}
	grants := &models.Grants{DB: database}
	cache := derivative.NewCache(store, cfg.CachePrefix, logger)
	users := auth.NewUsers(database, mail.New(cfg, logger), cfg.BaseURL, cfg.LoginLinkTTL, logger)
	if err = users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword); err != nil {
		return err
	}

	server := &handlers.Server{
		Store:       store,
		Policy:      access.NewPolicy(database, grants),
		Cache:       cache,
		Transformer: transformer,
		Gallery:     gallery.NewService(database, store, cache, grants, logger),
		Ingester: processing.NewIngester(database, store, transformer, processing.Options{
			MaxSize:     cfg.MaxUploadSize,
			MaxEdge:     cfg.IngestMaxEdge,
			PreviewEdge: cfg.PreviewEdge,
			Format:      cfg.OutputFormat,
			Quality:     cfg.OutputQuality,
		}, logger),
		Users:           users,
		Logger:          logger.With("component", "http"),
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		OutputFormat:    cfg.OutputFormat,
		OutputQuality:   cfg.OutputQuality,
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisFixedWindow(cfg.RedisAddr, cfg.RedisPassword, "gallery:ratelimit", cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
		if err != nil {
			return err
		}
		defer limiter.Close()
		server.Limiter = limiter
	}

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.DebugMode {
		router.Use(gin.Logger())
	}
	_ = router.SetTrustedProxies(nil)
	router.MaxMultipartMemory = 8 << 20
	router.Use(utils.RequestID(), utils.NoIndex())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.BaseURL},
		AllowMethods:     []string{"GET", "PUT", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(auth.Sessions(auth.NewSessionStore(database, cfg)))
	if !cfg.DebugMode {
		// images are already compressed
		router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{"^/images/", "^/private/cdn-cgi/image/"})))
	} else {
		router.Use(utils.ErrorLogMiddleware(logger))
	}
	router.Use(utils.CacheRouter{CacheTime: utils.CacheNoCache}.Handler()) // handlers may override
	server.Register(router)

	logger.Info("starting server", "bind", cfg.BindAddress, "storage", cfg.StorageType, "database", cfg.DatabaseDriver)
	if cfg.TLSDomains != "" {
		return autotls.Run(router, strings.Split(cfg.TLSDomains, ",")...)
	}
	return router.Run(cfg.BindAddress)
}
