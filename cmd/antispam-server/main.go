// cmd/antispam-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cleantalk-antispam/internal/antispam"
	"cleantalk-antispam/internal/common/camunda"
	"cleantalk-antispam/internal/common/config"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/common/notify"
	"cleantalk-antispam/internal/common/observability"
	"cleantalk-antispam/internal/httpapi"
	"cleantalk-antispam/internal/session"

	checkmessage "cleantalk-antispam/internal/workers/antispam/check-message"
	checkuser "cleantalk-antispam/internal/workers/antispam/check-user"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting anti-spam server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("metrics init failed", zap.Error(err))
	}
	defer obs.Shutdown()

	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.App.Version, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
		defer tracing.Shutdown()
	}

	ctx := context.Background()

	// --- Session store ---
	var store session.Store
	err = retryWithBackoff(func() error {
		var err error
		store, err = session.NewStore(cfg.Session)
		if err != nil {
			return err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return err
		}
		return nil
	}, 10, 2*time.Second, zapLog, "Session store connection")
	if err != nil {
		zapLog.Fatal("session store failed after retries", zap.Error(err))
	}
	defer store.Close()
	zapLog.Info("Session store ready", zap.String("driver", cfg.Session.Driver))

	// --- Admin approval targets ---
	targets, err := notify.NewTargets(ctx, cfg)
	if err != nil {
		zapLog.Fatal("notification targets failed", zap.Error(err))
	}
	logTargets := make([]antispam.LogTarget, 0, len(targets))
	for _, t := range targets {
		logTargets = append(logTargets, t)
	}

	component, err := antispam.New(antispam.ConfigFromApp(cfg), antispam.Dependencies{
		Logger:   log,
		Targets:  logTargets,
		Recorder: obs,
	})
	if err != nil {
		zapLog.Fatal("anti-spam component init failed", zap.Error(err))
	}
	zapLog.Info("Anti-spam component initialized",
		zap.String("apiUrl", component.Config().APIURL),
		zap.String("responseLang", component.ResponseLang()),
		zap.Int("logTargets", len(logTargets)),
	)

	// --- Zeebe workers ---
	workers := camunda.NewWorkerSet(log)
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientFromAppConfig(cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}

		if err := startWorkers(cfg, zeebe, component, store, obs, log, workers); err != nil {
			zapLog.Fatal("worker registration failed", zap.Error(err))
		}
		zapLog.Info("Zeebe workers started", zap.Int("count", workers.Len()))
	}

	// --- HTTP server ---
	trusted, err := httpapi.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		zapLog.Fatal("invalid server.trusted_proxies", zap.Error(err))
	}
	probes := map[string]httpapi.Pinger{}
	if zeebe != nil {
		probes["zeebe"] = zeebe
	}
	api := httpapi.NewServer(httpapi.Options{
		Checker:        component,
		Sessions:       store,
		Logger:         log,
		CookieName:     cfg.Session.CookieName,
		CookieTTL:      time.Duration(cfg.Session.TTLSeconds) * time.Second,
		Probes:         probes,
		Recorder:       obs,
		TrustedProxies: trusted,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}

	workers.Close()
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Anti-spam server stopped gracefully")
}

func startWorkers(cfg *config.Config, zeebe *camunda.Client, component *antispam.Component, store session.Store, obs *observability.Observability, log logger.Logger, workers *camunda.WorkerSet) error {
	userHandler, err := checkuser.NewHandler(checkuser.HandlerOptions{
		AppConfig: cfg,
		Camunda:   zeebe,
		Logger:    log,
		Checker:   component,
		Sessions:  store,
		Observer:  obs,
	})
	if err != nil {
		return err
	}
	if err := userHandler.Register(); err != nil {
		return err
	}
	if w := userHandler.JobWorker(); w != nil {
		workers.Add(checkuser.TaskType, w)
	}

	messageHandler, err := checkmessage.NewHandler(checkmessage.HandlerOptions{
		AppConfig: cfg,
		Camunda:   zeebe,
		Logger:    log,
		Checker:   component,
		Sessions:  store,
		Observer:  obs,
	})
	if err != nil {
		return err
	}
	if err := messageHandler.Register(); err != nil {
		return err
	}
	if w := messageHandler.JobWorker(); w != nil {
		workers.Add(checkmessage.TaskType, w)
	}
	return nil
}
