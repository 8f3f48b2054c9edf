package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logwarden/alert"
	"logwarden/api"
	"logwarden/config"
	"logwarden/notify"
	"logwarden/service"
	"logwarden/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// App wires every component together and owns the process lifecycle.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite      *storage.SQLite
	LogStore    *storage.LogStorage
	EventStore  *storage.EventStorage
	RuleStore   *storage.RuleStorage
	ChanStore   *storage.ChannelStorage
	Hub         *api.Hub
	Engine      *alert.Engine
	Pipeline    *alert.Pipeline
	LogService  *service.LogService
	RuleService *service.RuleService
	APIServer   *api.API

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp builds the application from configuration. Components come up in
// dependency order: storage, suppression, notification, alerting, services,
// API.
func NewApp(configPath string) (*App, error) {
	app := &App{}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	logger, sugar, err := InitLogger(os.Getenv("LOGWARDEN_LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("logwarden starting...")

	cfg, err := InitConfig(configPath, sugar)
	if err != nil {
		app.cancel()
		return nil, err
	}
	app.Config = cfg

	sqlite, err := storage.NewSQLite(cfg.Storage.SQLitePath, sugar)
	if err != nil {
		app.cancel()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.SQLite = sqlite
	app.LogStore = storage.NewLogStorage(sqlite, sugar)
	app.EventStore = storage.NewEventStorage(sqlite, sugar)
	app.RuleStore = storage.NewRuleStorage(sqlite, sugar)
	app.ChanStore = storage.NewChannelStorage(sqlite, sugar)

	suppressor, err := initSuppressor(app.ctx, cfg, sugar)
	if err != nil {
		sqlite.Close()
		app.cancel()
		return nil, err
	}

	notifier := notify.NewNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, sugar)

	app.Hub = api.NewHub(app.ctx, sugar)

	app.Engine = alert.NewEngine(app.RuleStore, app.EventStore, notifier, app.Hub, suppressor, sugar)
	app.Pipeline = alert.NewPipeline(app.ctx, app.Engine, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, sugar)

	app.LogService = service.NewLogService(app.LogStore, app.EventStore, app.Pipeline, app.Hub, sugar)
	app.RuleService = service.NewRuleService(app.RuleStore, app.ChanStore, app.Engine, sugar)

	app.APIServer = api.NewAPI(app.LogService, app.RuleService, app.Hub, app.Pipeline, cfg, sugar)

	return app, nil
}

// initSuppressor picks the suppression backend from config.
func initSuppressor(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (alert.Suppressor, error) {
	switch cfg.Suppression.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := alert.NewRedisSuppressor(client, cfg.Suppression.Window(), sugar)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		sugar.Infow("Using Redis suppression backend", "addr", cfg.Redis.Addr)
		return s, nil
	default:
		sugar.Infow("Using in-memory suppression backend",
			"window", cfg.Suppression.Window(), "max_entries", cfg.Suppression.MaxEntries)
		return alert.NewMemorySuppressor(cfg.Suppression.Window(), cfg.Suppression.MaxEntries), nil
	}
}

// Start launches the hub, the pipeline and the HTTP server, then blocks until
// a shutdown signal arrives or the server fails.
func (a *App) Start() error {
	go a.Hub.Start()
	a.Pipeline.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.APIServer.Start(a.Config.Server.Addr()); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.Sugar.Infow("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		a.Sugar.Errorw("HTTP server failed", "error", err)
		a.Shutdown()
		return err
	}

	a.Shutdown()
	return nil
}

// Shutdown tears components down in reverse order. The pipeline drains before
// the lifecycle context is cancelled so queued entries still evaluate against
// a live context.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.APIServer.Stop(ctx); err != nil {
		a.Sugar.Warnw("HTTP shutdown error", "error", err)
	}

	a.Pipeline.Stop()
	a.Hub.Stop()
	a.cancel()

	if err := a.SQLite.Close(); err != nil {
		a.Sugar.Warnw("Storage close error", "error", err)
	}

	a.Sugar.Info("Shutdown complete")
	a.Logger.Sync()
}
