package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"complaint-portal/internal/handlers"
)

var servePort string

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides PORT)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the complaint portal HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if servePort != "" {
		a.cfg.Port = servePort
	}
	logger := a.logger

	logger.Info("Starting complaint portal")

	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := handlers.New(a.cfg, a.service, a.store, a.calculator, a.exporter, logger)
	router := handlers.NewRouter(handler, a.metrics)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// The first load runs in the background; /readyz reports 503 until it lands
	go func() {
		if _, err := a.service.Reload(ctx); err != nil {
			logger.WithError(err).Error("Initial load failed")
		}
		a.service.RunAutoRefresh(ctx)
	}()

	srv := &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", a.cfg.Port).Info("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return err
	}

	logger.Info("Server exited")
	return nil
}
