package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_gateway/internal/config"
	"chat_gateway/internal/gateway"
	"chat_gateway/internal/httpapi"
	"chat_gateway/internal/logging"
	"chat_gateway/internal/providers"
	"chat_gateway/internal/storage"
	"chat_gateway/internal/tools"
	"chat_gateway/internal/utils"
	"chat_gateway/internal/vault"
)

const cacheCleanupInterval = time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("LOCAL") == "" {
		logging.SetLogLevel(logging.ParseLevel(cfg.Logging.Level))
	}

	v, err := vault.New(cfg.Vault.Secret)
	if err != nil {
		logging.Fatalf("Failed to initialize vault: %v", err)
	}

	// Provider clients share one transport; the proxy applies to all of them
	factory := &providers.Factory{
		Timeout:            cfg.Provider.RequestTimeout,
		AnthropicMaxTokens: cfg.Provider.AnthropicMaxTokens,
	}
	if cfg.Provider.HTTPSProxy != "" {
		transport, err := providers.NewProxyTransport(cfg.Provider.HTTPSProxy)
		if err != nil {
			logging.Fatalf("Failed to configure proxy: %v", err)
		}
		factory.Transport = transport
		logging.Infof("Upstream requests go through proxy %s", providers.RedactedProxyURL(cfg.Provider.HTTPSProxy))
	}

	gw := gateway.New(v, factory, tools.Default(), gateway.Config{
		MaxSteps:     cfg.Chat.MaxToolSteps,
		EnableTools:  cfg.Chat.EnableTools,
		StrictModels: cfg.Provider.StrictModelValidate,
		GeminiAPIKey: cfg.Provider.GeminiAPIKey,
	})

	deps := &httpapi.Dependencies{
		Gateway: gw,
		Sink:    logging.NewNoopSink(),
		Logger:  utils.NewLogger("httpapi"),
	}

	// Initialize database
	if cfg.Database.Enabled() {
		db, err := storage.NewDB(storage.DBConfig{
			Driver:          cfg.Database.Driver,
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			CacheSize:       cfg.Database.CacheSize,
			CacheTTL:        cfg.Database.CacheTTL,
		})
		if err != nil {
			logging.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			logging.Fatalf("Failed to migrate database: %v", err)
		}

		deps.DB = db
		deps.Transcripts = db.NewTranscriptRepository()
		logging.Infof("Transcripts are persisted to %s", cfg.Database.Driver)
	}

	// Initialize Redis client
	if cfg.Redis.Enabled() {
		redisCfg := storage.DefaultRedisConfig()
		redisCfg.Address = cfg.Redis.Address
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisClient, err := storage.NewRedisClient(redisCfg)
		if err != nil {
			logging.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer redisClient.Close()

		bufCfg := logging.DefaultRedisBufferConfig()
		bufCfg.QueueKey = cfg.Logging.ChatLogKey
		bufCfg.MaxSize = cfg.Logging.ChatLogMaxLen

		deps.Redis = redisClient
		deps.Sink = logging.NewRedisBuffer(redisClient.Client(), bufCfg)
		logging.Infof("Chat records are buffered in Redis list %s", bufCfg.QueueKey)
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if deps.DB != nil {
		go cleanupCache(bgCtx, deps.DB)
	}

	// Create HTTP server. There is no write timeout since responses stream
	// for as long as generation runs.
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logging.Infof("Chat gateway listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Infof("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}

	logging.Infof("Server exited")
}

func cleanupCache(ctx context.Context, db *storage.DB) {
	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := db.CleanupExpiredCacheEntries(); n > 0 {
				logging.Debugf("Removed %d expired conversation cache entries", n)
			}
		}
	}
}
