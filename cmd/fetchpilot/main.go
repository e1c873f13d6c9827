package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/fetchpilot/internal/agent"
	"github.com/italolelis/fetchpilot/internal/browserhub"
	"github.com/italolelis/fetchpilot/internal/cleanup"
	"github.com/italolelis/fetchpilot/internal/config"
	"github.com/italolelis/fetchpilot/internal/drive"
	"github.com/italolelis/fetchpilot/internal/http/rest"
	"github.com/italolelis/fetchpilot/internal/logctx"
	"github.com/italolelis/fetchpilot/internal/notifier"
	"github.com/italolelis/fetchpilot/internal/storage/sqlite"
	"github.com/italolelis/fetchpilot/internal/task"
	"github.com/italolelis/fetchpilot/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	serve := flag.Bool("serve", false, "run the action API server instead of a one-shot run")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewContextHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx = logctx.WithLogger(ctx, logger)

	if *serve {
		slog.Info("fetchpilot starting...", "log_level", cfg.LogLevel, "bind", cfg.Web.BindAddress)

		if err := runServer(ctx, cfg); err != nil && err != context.Canceled {
			slog.Error("fatal error", "err", err)
			os.Exit(1)
		}

		return
	}

	if err := runOnce(ctx, cfg); err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

// runOnce executes a single download run against the configured defaults and
// prints the result as JSON on stdout.
func runOnce(ctx context.Context, cfg *config.Config) error {
	runner := buildRunner(cfg, nil)

	result := runner.Run(ctx, task.Params{})

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if !result.Success {
		return errors.New("run did not succeed")
	}

	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	runRepo := sqlite.NewInstrumentedRunRepository(database, tel)

	// =========================================================================
	// Start Runner and API Service
	var runner rest.RunExecutor = &instrumentedRunner{inner: buildRunner(cfg, tel), tel: tel}

	if cfg.DiscordWebhookURL != "" {
		runner = &notifyingRunner{
			inner:    runner,
			notifier: &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL},
		}
	}

	handler := rest.NewActionHandler(cfg.Actions.Username, cfg.Actions.Password, runner, runRepo, runRepo)

	r := chi.NewRouter()
	r.Use(telemetry.CorrelationID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	server := &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	g.Go(func() error {
		runCleanup(ctx, runRepo, tel, cfg)

		return nil
	})

	return g.Wait()
}

// buildRunner wires the platform client, the agent models and the browser
// driver into a task runner.
func buildRunner(cfg *config.Config, tel *telemetry.Telemetry) *task.Runner {
	client := browserhub.NewClient(cfg.BrowserHubBaseURL, cfg.BrowserHubToken)

	var hub task.Hub = client
	if tel != nil {
		hub = browserhub.NewInstrumentedClient(client, tel)
	}
	agentDriver := agent.NewDriver(cfg.AnthropicAPIKey, cfg.AgentModel, int64(cfg.AgentMaxTokens))
	locator := agent.NewLocator(cfg.OpenAIAPIKey, cfg.LocatorModel)

	newDriver := func() task.Driver {
		return drive.NewDriver(agentDriver, locator, drive.Options{
			Stealth:           cfg.Stealth,
			ViewportWidth:     cfg.ViewportWidth,
			ViewportHeight:    cfg.ViewportHeight,
			RemoteDownloadDir: cfg.RemoteDownloadDir,
		})
	}

	var metrics task.Metrics
	if tel != nil {
		metrics = tel
	}

	return task.NewRunner(hub, newDriver, task.RunnerOptions{
		DownloadDir:       cfg.DownloadDir,
		RemoteDownloadDir: cfg.RemoteDownloadDir,
		DownloadTimeout:   cfg.DownloadTimeout,
		DefaultTargetURL:  cfg.TargetURL,
		DefaultInstruct:   cfg.Instruction,
		DefaultMaxSteps:   cfg.MaxSteps,
		Stealth:           cfg.Stealth,
		ViewportWidth:     cfg.ViewportWidth,
		ViewportHeight:    cfg.ViewportHeight,
	}, metrics)
}

// instrumentedRunner spans each run and keeps the active-run gauge honest.
type instrumentedRunner struct {
	inner rest.RunExecutor
	tel   *telemetry.Telemetry
}

func (i *instrumentedRunner) Run(ctx context.Context, params task.Params) task.Result {
	var result task.Result

	// A failed run is surfaced as a span error; the Result itself is what
	// the caller gets either way.
	_ = i.tel.InstrumentRun(ctx, func(ctx context.Context) error {
		result = i.inner.Run(ctx, params)

		if !result.Success {
			return errors.New("run failed")
		}

		return nil
	})

	return result
}

// notifyingRunner pushes run outcomes to the configured webhook.
type notifyingRunner struct {
	inner    rest.RunExecutor
	notifier notifier.Notifier
}

func (n *notifyingRunner) Run(ctx context.Context, params task.Params) task.Result {
	logger := logctx.LoggerFromContext(ctx)

	result := n.inner.Run(ctx, params)

	message := "✅ Download run succeeded: " + result.ResultMessage
	if !result.Success {
		message = "❌ Download run failed"
	}

	if err := n.notifier.Notify(ctx, message); err != nil {
		logger.ErrorContext(ctx, "failed to send notification", "err", err)
	}

	return result
}

func runCleanup(ctx context.Context, runRepo *sqlite.InstrumentedRunRepository, tel *telemetry.Telemetry, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	cleanupTicker := time.NewTicker(cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-cleanupTicker.C:
			runs, err := runRepo.GetRuns(1000)
			if err != nil {
				logger.Error("failed to get runs for cleanup", "err", err)
				tel.RecordSystemError("cleanup", "query_failed")

				continue
			}

			if err := cleanup.DeleteExpiredFiles(ctx, runs, cfg.DownloadDir, cfg.KeepDownloadedFor); err != nil {
				logger.Error("failed to delete expired files", "err", err)
				tel.RecordSystemError("cleanup", "delete_failed")
			}
		}
	}
}
