package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/internal/server"
	"github.com/menta2k/vision-correct/pkg/analyzer"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and calibration change feed",
	Long: `Serve the analysis, correction, device and calibration endpoints, the
/api/events websocket feed of calibration changes and Prometheus metrics at
/metrics.

Examples:
  vision-correct serve
  vision-correct serve --addr :9090
  VISION_HTTP_ADDR=:9090 vision-correct serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.HTTPAddr
	}

	mt := metrics.New()
	manager := openCalibration().WithMetrics(mt)
	defer manager.Close()

	srv := server.New(cfg, analyzer.NewWithConfig(cfg.AnalyzerConfig()).WithMetrics(mt), manager, mt)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Server.StorePath).Msg("Serving")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
