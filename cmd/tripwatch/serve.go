package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"tripwatch/internal/api"
	"tripwatch/internal/auth"
	"tripwatch/internal/camera"
	"tripwatch/internal/config"
	"tripwatch/internal/database"
	"tripwatch/internal/kafka"
	"tripwatch/internal/metrics"
	"tripwatch/internal/orchestrator"
	"tripwatch/internal/sink"
	"tripwatch/internal/snapshot"
	"tripwatch/internal/stream"
	"tripwatch/internal/telegram"
	"tripwatch/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection loop and the HTTP control API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	cams, errs := cfg.CameraConfigs()
	for _, err := range errs {
		logger.Warn("skipping camera entry", "error", err)
	}
	if len(cams) == 0 {
		logger.Warn("no cameras configured")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, err := database.New(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	snapshots, err := newSnapshotStore(ctx, cfg, db)
	if err != nil {
		return err
	}

	streams := stream.NewManager(logger)
	hub := ws.NewHub(logger)

	sinks := []sink.Named{
		{Name: "database", Sink: db},
		{Name: "websocket", Sink: hub},
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		sinks = append(sinks, sink.Named{Name: "kafka", Sink: producer})
	}

	var bot *telegram.Bot
	if cfg.Telegram.Enabled {
		tcfg := telegram.Config{
			BotToken:        cfg.Telegram.BotToken,
			ChatID:          cfg.Telegram.ChatID,
			CooldownSeconds: cfg.Telegram.CooldownSeconds,
		}
		if err := telegram.ValidateConfig(tcfg); err != nil {
			return err
		}
		bot = telegram.NewBot(tcfg, streams, logger)
		sinks = append(sinks, sink.Named{Name: "telegram", Sink: bot})
	}

	alerts := sink.NewAlerts(sinks, m, logger)
	alerts.Run()
	defer alerts.Close()

	orch, err := orchestrator.New(cams, orchestrator.Options{
		AlertLogSize: cfg.Engine.AlertLogSize,
		Agent: camera.Options{
			Width:    cfg.Engine.FrameWidth,
			Height:   cfg.Engine.FrameHeight,
			Cooldown: cfg.Engine.Cooldown,
			Sources: camera.NewSourceFactory(camera.FFmpegOptions{
				Width:  cfg.Engine.FrameWidth,
				Height: cfg.Engine.FrameHeight,
				Logger: logger,
			}),
			Frames:    sink.Frames{streams, hub},
			Snapshots: snapshots,
			Metrics:   m,
			Logger:    logger,
		},
		Alerts:  alerts,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	authenticator, err := auth.NewAuthenticator(auth.Options{
		Enabled:     cfg.Auth.Enabled,
		Username:    cfg.Auth.Username,
		Password:    cfg.Auth.Password,
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(api.NewHandlers(api.Deps{
		Control:  orch,
		Store:    db,
		Frames:   streams,
		Live:     hub,
		Auth:     authenticator,
		Gatherer: reg,
		Logger:   logger,
	}))

	orch.StartAll(ctx)

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop.
	errc := make(chan error, 4)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := orch.Run(ctx, cfg.Engine.TickInterval); err != nil && !errors.Is(err, context.Canceled) {
			errc <- err
		}
	}()

	if bot != nil {
		commands := telegram.NewCommandHandler(bot, orch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := commands.StartPolling(ctx); err != nil {
				errc <- err
			}
		}()
		if err := bot.SendMessage(ctx, "tripwatch started"); err != nil {
			logger.Warn("telegram greeting failed", "error", err)
		}
	}

	handleHTTPServer(ctx, cfg.HTTP.Addr, router, &wg, errc, logger)

	logger.Info("exiting", "reason", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	wg.Wait()
	logger.Info("exited")
	return nil
}

func newSnapshotStore(ctx context.Context, cfg *config.Config, db *database.Database) (camera.SnapshotSink, error) {
	if cfg.Minio.Enabled {
		return snapshot.NewMinioStore(ctx, snapshot.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Secure:    cfg.Minio.Secure,
		}, db)
	}
	return snapshot.NewFileStore(cfg.Storage.SnapshotDir, db)
}

// handleHTTPServer starts the HTTP server and shuts it down gracefully when
// ctx is cancelled.
func handleHTTPServer(ctx context.Context, addr string, handler http.Handler, wg *sync.WaitGroup, errc chan error, logger *slog.Logger) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 60 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			logger.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down HTTP server", "addr", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown", "error", err)
		}
	}()
}
