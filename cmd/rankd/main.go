// Command rankd replays a match file through a rating algorithm, logs the
// resulting standings and optionally serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/okian/rankd/internal/app"
	"github.com/okian/rankd/internal/config"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		// The logger may not be configured yet.
		_, _ = os.Stderr.WriteString("rankd: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

// run wires the process and blocks until ctx is done when a metrics listener
// is configured.
func run(ctx context.Context, out io.Writer) error {
	if err := logger.Init(logger.WithWriter(out)); err != nil {
		return err
	}

	// Load configuration (defaults -> optional file -> .env -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithWriter(out), logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}
	log := logger.Named("rankd")

	svc := app.New(
		app.WithAlgorithm(cfg.Algorithm),
		app.WithParams(cfg.AlgorithmParams()),
		app.WithLogger(logger.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithLockStripes(cfg.LockStripes),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(shutdownCtx); err != nil {
			log.Error(ctx, "service shutdown failed", logger.Error(err))
		}
	}()

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = newMetricsServer(cfg.MetricsAddr)
		go func() {
			log.Info(ctx, "starting metrics server", logger.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "metrics server failed", logger.Error(err))
			}
		}()
		go startServiceMetricsUpdater(ctx, svc)
	}

	if cfg.MatchesFile != "" {
		if err := replay(ctx, log, svc, cfg.MatchesFile); err != nil {
			return err
		}
	}
	if cfg.EndPeriod {
		if _, err := svc.EndPeriod(ctx); err != nil {
			return err
		}
	}
	if err := logStandings(ctx, log, svc, cfg.TopN); err != nil {
		return err
	}

	if srv == nil {
		return nil
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down metrics server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
	}
	return nil
}

// newMetricsServer serves the Prometheus registry on /metrics.
func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// replay applies every match of the file in file order, so each result is
// rated against the states left by the matches before it.
func replay(ctx context.Context, log logger.Logger, svc *app.Service, path string) error {
	matches, err := config.LoadMatches(ctx, path)
	if err != nil {
		return err
	}

	var applied, duplicates, rejected int
	for _, m := range matches {
		err := svc.Apply(ctx, m)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, app.ErrDuplicateMatch):
			duplicates++
		case errors.Is(err, app.ErrInvalidMatch):
			rejected++
			log.Warn(ctx, "skipping invalid match", logger.String("matchID", m.MatchID), logger.Error(err))
		default:
			return err
		}
	}

	log.Info(ctx, "replayed match file",
		logger.String("file", path),
		logger.Int("applied", applied),
		logger.Int("duplicates", duplicates),
		logger.Int("rejected", rejected),
	)
	return nil
}

// logStandings logs the top n standings.
func logStandings(ctx context.Context, log logger.Logger, svc *app.Service, n int) error {
	if n == 0 {
		return nil
	}
	top, err := svc.TopN(ctx, n)
	if err != nil {
		return err
	}
	log.Info(ctx, "standings",
		logger.String("algorithm", svc.Algorithm().DisplayName()),
		logger.Int("participants", svc.Stats().Participants),
	)
	for _, st := range top {
		log.Info(ctx, "standing",
			logger.Int("rank", st.Rank),
			logger.String("participant", st.ParticipantID),
			logger.Float64("rating", st.Rating),
			logger.Float64("deviation", st.Deviation),
			logger.Float64("volatility", st.Volatility),
		)
	}
	return nil
}

// startServiceMetricsUpdater periodically publishes service gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.Stats()
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateParticipants(stats.Participants)
}
