package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const readHeaderTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the scheduler and the read API until interrupted",
		Long: `Starts the HTTP API and the run scheduler side by side. The API keeps
serving after a one-shot schedule has fired. SIGINT or SIGTERM stops the
scheduler, waits for an in-flight run, and drains the HTTP server.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Address(), err)
	}
	return serve(ctx, appInstance, ln, cfg.Server.ShutdownTimeout, logger)
}

func serve(ctx context.Context, appInstance App, ln net.Listener, shutdownTimeout time.Duration, logger *zap.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Handler:           appInstance.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	schedDone := make(chan error, 1)
	go func() {
		logger.Info("scheduler started")
		schedDone <- appInstance.RunSchedule(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-srvErr:
		if ok {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-schedDone; err != nil {
		logger.Error("scheduler stopped with error", zap.Error(err))
		serveErr = errors.Join(serveErr, err)
	}
	logger.Info("shutdown complete")
	return serveErr
}
