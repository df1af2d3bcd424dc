package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pairshare/pairshare/internal/audit"
	"github.com/pairshare/pairshare/internal/blobstore"
	"github.com/pairshare/pairshare/internal/config"
	"github.com/pairshare/pairshare/internal/health"
	"github.com/pairshare/pairshare/internal/relay"
	"github.com/pairshare/pairshare/internal/sessions"
	"github.com/pairshare/pairshare/internal/transport"
)

// AppState holds all application services
type AppState struct {
	Logger *zap.Logger
	Config *config.Config
	Store  *sessions.InMemoryStore
	Blobs  blobstore.BlobStore
	Engine *relay.Engine
	Reaper *relay.Reaper
	Hub    *transport.Hub
	Redis  *redis.Client
	DB     *bun.DB
	Health *health.Manager
}

func main() {
	// Load configuration
	config.Load()

	// Initialize logger with config
	logger := initLogger()
	defer logger.Sync()

	// Initialize application state
	as, err := newAppState(logger)
	if err != nil {
		logger.Fatal("Failed to initialize application state", zap.Error(err))
	}

	as.Reaper.Start(context.Background())

	// Create HTTP server
	router := setupRouter(as)
	addr := config.Http().Addr()

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Setup graceful shutdown
	done := setupSignalHandler(as, server, logger)

	logger.Info("Starting pairshare server", zap.String("address", addr))

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	<-done
	logger.Info("Server shutdown complete")
}

// newAppState creates and initializes the application state
func newAppState(logger *zap.Logger) (*AppState, error) {
	as := &AppState{
		Logger: logger,
		Config: config.Get(),
	}

	blobs, err := newBlobStore(as, logger)
	if err != nil {
		return nil, err
	}
	as.Blobs = blobs

	eventLog, err := newEventLogger(as, logger)
	if err != nil {
		return nil, err
	}

	relayConfig := config.Relay()
	location, err := relayConfig.Location()
	if err != nil {
		logger.Warn("Falling back to UTC for display dates", zap.Error(err))
	}

	transportConfig := config.Transport()
	as.Hub = transport.NewHub(transport.Config{
		PingInterval:   transportConfig.PingInterval,
		PongWait:       transportConfig.PongWait,
		MaxFrameBytes:  transportConfig.MaxFrameBytes,
		SendQueue:      transportConfig.SendQueue,
		AllowAnyOrigin: config.Http().CORSAllowAll,
	}, logger.Named("transport"))

	as.Store = sessions.NewInMemoryStore(nil, nil)
	as.Engine, err = relay.NewEngine(as.Store, blobs, as.Hub, eventLog, relay.Config{
		IdleTimeout:      relayConfig.IdleTimeout,
		ReapInterval:     relayConfig.ReapInterval,
		MaxMessageLength: relayConfig.MaxMessageLength,
		AuditRetention:   config.Audit().Retention,
		Location:         location,
	}, logger.Named("relay"))
	if err != nil {
		return nil, fmt.Errorf("failed to create relay engine: %w", err)
	}

	as.Reaper = relay.NewReaper(as.Engine, nil, logger.Named("reaper"))

	as.Health = health.NewManager(logger.Named("health"))
	as.Health.AddChecker(health.NewBlobStoreChecker(blobs))
	if as.Redis != nil {
		as.Health.AddChecker(health.NewRedisChecker(as.Redis))
	}
	if as.DB != nil {
		as.Health.AddChecker(health.NewDatabaseChecker(as.DB))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := as.Health.StartupHealthCheck(ctx); err != nil {
		return nil, err
	}

	return as, nil
}

func newBlobStore(as *AppState, logger *zap.Logger) (blobstore.BlobStore, error) {
	blobsConfig := config.Blobs()

	switch blobsConfig.Backend {
	case "", "disk":
		logger.Info("Using disk blob store", zap.String("dir", blobsConfig.Dir))
		return blobstore.NewDiskStore(blobsConfig.Dir, blobsConfig.MaxUploadBytes, nil, logger.Named("blobs"))

	case "redis":
		redisConfig := config.Redis()
		opts, err := redis.ParseURL(redisConfig.DSN())
		if err != nil {
			return nil, fmt.Errorf("invalid redis configuration: %w", err)
		}
		as.Redis = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := as.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", redisConfig.Addr(), err)
		}

		logger.Info("Using redis blob store", zap.String("address", redisConfig.Addr()))
		return blobstore.NewRedisStore(blobstore.RedisConfig{
			Client:    as.Redis,
			KeyPrefix: redisConfig.KeyPrefix,
			MaxBytes:  blobsConfig.MaxUploadBytes,
		}, logger.Named("blobs"))

	default:
		return nil, fmt.Errorf("unknown blob backend %q", blobsConfig.Backend)
	}
}

func newEventLogger(as *AppState, logger *zap.Logger) (audit.EventLogger, error) {
	pgConfig := config.Postgres()
	if !pgConfig.Enabled {
		return audit.NewEventLogger(audit.NewMemoryStore(config.Audit().Buffer), nil), nil
	}

	logger.Info("Database configuration",
		zap.String("host", pgConfig.Host),
		zap.Int("port", pgConfig.Port),
		zap.String("database", pgConfig.Database),
		zap.String("user", pgConfig.User))

	as.DB = audit.OpenDatabase(pgConfig.DSN(), pgConfig.MaxOpenConnections)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := as.DB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := audit.CreateTables(ctx, as.DB); err != nil {
		return nil, fmt.Errorf("failed to create audit tables: %w", err)
	}

	return audit.NewEventLogger(audit.NewPostgresStore(as.DB), nil), nil
}

func initLogger() *zap.Logger {
	logConfig := config.Logger()

	var config zap.Config
	if logConfig.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	// Set log level
	switch logConfig.Level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	return logger
}

func setupRouter(as *AppState) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// the bundled client is same-origin; CORS is only needed for a separate dev server
	if config.Http().CORSAllowAll {
		router.Use(cors.Default())
	}

	router.Use(RequestLoggingMiddleware(as))
	router.Use(gin.Recovery())

	router.GET("/health", healthCheck(as))

	// Live channel
	router.GET("/ws", as.Hub.Handler(as.Engine))

	// Uploads and downloads
	blobstore.NewBlobHandlers(as.Blobs, config.Blobs().MaxUploadBytes, as.Logger.Named("blobs")).RegisterRoutes(router)

	// Session administration
	api := router.Group("/api/v1")
	relay.NewSessionHandlers(as.Engine, as.Logger.Named("admin")).RegisterRoutes(api)

	if dir := config.Http().StaticDir; dir != "" {
		as.Logger.Info("Serving web client", zap.String("dir", dir))
		router.NoRoute(staticClient(dir))
	}

	return router
}

func healthCheck(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, healthy := as.Health.RuntimeHealthCheck(c.Request.Context())

		services := gin.H{}
		for name, err := range results {
			if err != nil {
				services[name] = err.Error()
				continue
			}
			services[name] = "healthy"
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":      status,
			"timestamp":   time.Now().Format(time.RFC3339),
			"sessions":    as.Engine.SessionCount(),
			"connections": as.Hub.Len(),
			"services":    services,
		})
	}
}

// staticClient serves the built web client, falling back to index.html so
// client-side routes resolve.
func staticClient(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		path := filepath.Join(dir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			c.File(path)
			return
		}
		c.File(index)
	}
}

// RequestLoggingMiddleware logs each HTTP request once it completes
func RequestLoggingMiddleware(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// websocket connections are logged by the hub
		if path == "/ws" || strings.HasPrefix(path, "/health") {
			return
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(startTime)),
			zap.String("remote_addr", c.ClientIP()),
		}
		if c.Writer.Status() >= 500 {
			as.Logger.Error("Request failed", fields...)
			return
		}
		as.Logger.Debug("Request handled", fields...)
	}
}

func setupSignalHandler(as *AppState, server *http.Server, logger *zap.Logger) chan struct{} {
	done := make(chan struct{}, 1)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalCh

		logger.Info("Shutting down server...")

		// Create context with timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		as.Reaper.Stop()

		// Shutdown server
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during server shutdown", zap.Error(err))
		}

		// hijacked websocket connections are not closed by Shutdown
		if err := as.Hub.Shutdown(ctx); err != nil {
			logger.Error("Error closing live connections", zap.Error(err))
		}

		if as.Redis != nil {
			if err := as.Redis.Close(); err != nil {
				logger.Error("Error closing redis client", zap.Error(err))
			}
		}
		if as.DB != nil {
			if err := as.DB.Close(); err != nil {
				logger.Error("Error closing database", zap.Error(err))
			}
		}

		done <- struct{}{}
	}()

	return done
}
