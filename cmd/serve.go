package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/analytics"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/api"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/config"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/document"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/document/ocr"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/generation"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/provider"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/ratelimit"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/usage"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/cache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP API. The usage log is optional: when its database is
unreachable the service still generates code, but records nothing and the
usage endpoints answer 503. An unreachable Redis falls back to in-process
rate limit counters.`,
	Example: `  JWT_SECRET=dev CODEGEN_USAGE_STORE=sqlite codegen serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	fmt.Println("==============================================")
	fmt.Println("  Codegen - LLM Code Generation API")
	fmt.Println("==============================================")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve the API")
	}
	fmt.Printf("Starting server on port %s...\n", cfg.Port)

	// Usage log.
	var (
		recordTo usage.Store
		reports  *analytics.Engine
	)
	store, closeStore, err := openUsageStore(cfg)
	if err != nil {
		log.Printf("WARNING: Usage store unavailable (%v). Usage will not be recorded.", err)
	} else {
		defer closeStore()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := store.Migrate(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		recordTo = store
		reports = analytics.NewEngine(store)
		log.Printf("Usage store (%s) connected and migrations applied.", cfg.UsageStore)
	}

	// Rate limit counters.
	counters, closeCounters := openRateLimitStore(cfg)
	defer closeCounters()

	free, premium, authPolicy := ratelimit.Policies(cfg.Limits)
	tiers := ratelimit.NewTierLimiter(
		ratelimit.NewLimiter(counters, ratelimit.PrefixGeneration, cfg.RateLimitFailOpen),
		free, premium,
	)
	authLimiter := ratelimit.NewLimiter(counters, ratelimit.PrefixAuth, cfg.RateLimitFailOpen)

	// Initialize components.
	generator := generation.NewService(
		provider.NewDefaultRegistry(cfg),
		tiers,
		usage.NewRecorder(recordTo, cfg.UsageWriteTimeout),
		document.NewProcessor(ocr.New()),
		cfg.ProviderTimeout,
	)
	handlers := api.NewHandlers(generator, reports, cfg.MaxUploadSize)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(handlers, api.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthLimiter:    authLimiter,
		AuthPolicy:     authPolicy,
	})

	// Start HTTP server with graceful shutdown. The write timeout leaves room
	// for the slowest provider call.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Codegen API is ready on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Println("Server exited.")
	return nil
}

// openRateLimitStore returns the configured counter store. Redis falls back to
// in-process counters when unreachable, which are then per replica.
func openRateLimitStore(cfg *config.Config) (ratelimit.Store, func()) {
	if cfg.RateLimitStore == config.RateLimitStoreMemory {
		log.Println("Rate limit counters are in-process.")
		return ratelimit.NewMemoryStore(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.Dial(ctx, cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		log.Printf("WARNING: Redis unavailable (%v). Rate limit counters fall back to in-process.", err)
		return ratelimit.NewMemoryStore(), func() {}
	}
	return ratelimit.NewRedisStore(c), func() {
		if err := c.Close(); err != nil {
			log.Printf("[cache] closing redis: %v", err)
		}
	}
}
