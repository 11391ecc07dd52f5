package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/monitoring"
	"github.com/sells-group/provider-validator/internal/verify"
)

var (
	servePort        int
	serveLEIERefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the validation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initValidator(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		stats := monitoring.NewCollector(env.Store)
		handler := buildRouter(&apiServer{
			pipeline: env.Pipeline,
			store:    env.Store,
			breakers: env.Collector,
			stats:    stats,
			metrics:  promhttp.HandlerFor(env.Metrics, promhttp.HandlerOpts{}),
			origins:  cfg.Server.AllowedOrigins,
			timeout:  2 * time.Minute,
		})

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(stats, monitoring.NewAlerter(cfg.Monitoring), env.Instruments, cfg.Monitoring)
			go checker.Run(ctx)
		}
		if cfg.LEIE.File == "" && serveLEIERefresh > 0 {
			go refreshExclusions(ctx, env.Exclusions, serveLEIERefresh)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
			if timeout <= 0 {
				timeout = 15 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// refreshExclusions re-downloads the exclusion list every interval until
// ctx is done. Unchanged lists are skipped by the conditional fetch.
func refreshExclusions(ctx context.Context, ex *verify.ExclusionList, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loaded, err := ex.Refresh(ctx)
			if err != nil {
				zap.L().Warn("exclusion list refresh failed", zap.Error(err))
				continue
			}
			if loaded {
				zap.L().Info("exclusion list refreshed", zap.Int("entries", ex.Len()))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveLEIERefresh, "leie-refresh", 24*time.Hour, "exclusion list refresh interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
