// Package main is the entry point for the gaswatch service.
//
// It loads configuration, builds the sensor store, classifier, alert
// dispatcher and optional classification history, then runs the monitor
// loop and the HTTP API side by side until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"gaswatch/internal/api/handlers"
	"gaswatch/internal/comparator"
	"gaswatch/internal/config"
	"gaswatch/internal/core"
	"gaswatch/internal/db"
	"gaswatch/internal/external"
	"gaswatch/internal/inference"
	"gaswatch/internal/metrics"
	"gaswatch/internal/notifications/actuator"
	notify "gaswatch/internal/notifications/core"
	"gaswatch/internal/notifications/telegram"
	"gaswatch/internal/scheduler"
	"gaswatch/internal/store"
	"gaswatch/internal/types"
)

const userAgent = "gaswatch/1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// pingStore is a ReadingStore that can report its reachability.
type pingStore interface {
	types.ReadingStore
	Ping(ctx context.Context) error
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// *_SECRET_FILE references are read as file paths, relative to the working directory.
	cfg, err := config.LoadConfig(config.NewFileProvider(""))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("gaswatch starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	httpClient := &http.Client{Timeout: cfg.HTTPClient.Timeout}

	sensorStore := newStore(cfg, httpClient, logger)

	handle := inference.NewHandle(modelLoader(cfg.Model.Path), logger)
	if err := handle.Load(ctx); err != nil {
		// The service stays up and serves the safe fallback until a later
		// classification manages to load the model.
		logger.Warn("model not loaded at startup", "model_path", cfg.Model.Path, "error", err)
	}
	engine := inference.NewEngine(inference.EngineConfig{
		Handle:    handle,
		ModelPath: cfg.Model.Path,
		Metrics:   m,
		Logger:    logger,
	})
	cmp := comparator.New(engine, logger)

	act, closeActuator, err := newActuator(cfg, httpClient, logger)
	if err != nil {
		return fmt.Errorf("creating actuator: %w", err)
	}

	policy, err := notify.ParsePolicy(cfg.Monitor.DispatchPolicy)
	if err != nil {
		closeActuator()
		return fmt.Errorf("parsing dispatch policy: %w", err)
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Notifier: newNotifier(cfg, httpClient, logger),
		Actuator: act,
		Policy:   policy,
		Metrics:  m,
		Logger:   logger,
	})

	var (
		pool   *pgxpool.Pool
		events *db.ClassificationRepository
	)
	if cfg.Database.URL.IsSet() {
		pool, err = db.NewPool(ctx, cfg.Database.URL.Unmask())
		if err != nil {
			closeActuator()
			return fmt.Errorf("connecting to history database: %w", err)
		}
		events = db.NewClassificationRepository(pool)
		if err := events.EnsureSchema(ctx); err != nil {
			pool.Close()
			closeActuator()
			return fmt.Errorf("preparing history schema: %w", err)
		}
		logger.Info("classification history enabled")
	}

	var monitor *scheduler.Monitor
	if cfg.Monitor.Enabled {
		mcfg := scheduler.MonitorConfig{
			Store:      sensorStore,
			Engine:     engine,
			Dispatcher: dispatcher,
			Metrics:    m,
			Interval:   cfg.Monitor.Interval,
			Logger:     logger,
		}
		if events != nil {
			mcfg.Recorder = events
		}
		monitor = scheduler.NewMonitor(mcfg)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		closeActuator()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = m
	srv.MetricsHandler = m.Handler()
	srv.HealthProbes = append(srv.HealthProbes,
		core.NewProbe("store", sensorStore.Ping),
		core.NewProbe("model", func(context.Context) error {
			if !engine.Status().Loaded {
				return inference.ErrModelUnavailable
			}
			return nil
		}),
	)
	if pool != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.NewProbe("history", pool.Ping))
	}

	sensorHandler := handlers.NewSensorHandler(sensorStore, engine, cmp, nil, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, sensorHandler.RegisterRoutes)

	var (
		reporter handlers.CycleReporter
		lister   handlers.EventLister
	)
	if monitor != nil {
		reporter = monitor
	}
	if events != nil {
		lister = events
	}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		handlers.NewMonitorHandler(reporter, lister, logger).RegisterRoutes)

	srv.OnShutdown = append(srv.OnShutdown, func(context.Context) error {
		closeActuator()
		return nil
	})
	if pool != nil {
		srv.OnShutdown = append(srv.OnShutdown, func(context.Context) error {
			pool.Close()
			return nil
		})
	}

	srv.MountRoutes()

	g, gctx := errgroup.WithContext(ctx)
	if monitor != nil {
		g.Go(func() error { return monitor.Run(gctx) })
	} else {
		logger.Info("monitor loop disabled")
	}
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gaswatch stopped cleanly")
	return nil
}

// newStore selects the sensor store backend.
func newStore(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) pingStore {
	if cfg.Store.Backend == "memory" {
		logger.Warn("using in-memory sensor store; readings are not shared with the device")
		return store.NewMemory(nil)
	}
	client := external.NewBaseClient(httpClient, "firebase", external.DefaultRetryPolicy(), userAgent,
		external.WithLogger(logger))
	return external.NewFirebaseStore(external.FirebaseConfig{
		DatabaseURL: cfg.Store.DatabaseURL,
		Path:        cfg.Store.Path,
		AuthSecret:  cfg.Store.AuthSecret.Unmask(),
		Client:      client,
		Logger:      logger,
	})
}

// modelLoader reads the forest artifact at path.
func modelLoader(path string) inference.LoaderFunc {
	return func() (inference.Classifier, error) {
		f, err := inference.LoadForest(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// newNotifier returns the Telegram channel, or nil when no bot token is set.
func newNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) notify.Notifier {
	if !cfg.Telegram.BotToken.IsSet() {
		logger.Warn("telegram notifications disabled: TELEGRAM_BOT_TOKEN not set")
		return nil
	}
	client := external.NewBaseClient(httpClient, "telegram", external.NoRetry(), userAgent,
		external.WithLogger(logger))
	return telegram.NewChannel(telegram.Config{
		BotToken: cfg.Telegram.BotToken.Unmask(),
		ChatID:   cfg.Telegram.ChatID,
		APIBase:  cfg.Telegram.APIBase,
		Client:   client,
	})
}

// newActuator builds the configured actuator transport. The returned close
// func is always safe to call.
func newActuator(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (notify.Actuator, func(), error) {
	noop := func() {}
	switch cfg.Actuator.Transport {
	case "mqtt":
		a, err := actuator.DialMQTT(actuator.MQTTConfig{
			Broker:   cfg.Actuator.MQTTBroker,
			ClientID: cfg.Actuator.MQTTClientID,
			Username: cfg.Actuator.MQTTUsername,
			Password: cfg.Actuator.MQTTPassword.Unmask(),
			Topic:    cfg.Actuator.MQTTTopic,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return a, a.Close, nil
	case "http":
		client := external.NewBaseClient(httpClient, "actuator", external.NoRetry(), userAgent,
			external.WithLogger(logger))
		return actuator.NewHTTPActuator(cfg.Actuator.URL, client), noop, nil
	default:
		logger.Warn("actuator disabled", "transport", cfg.Actuator.Transport)
		return nil, noop, nil
	}
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
