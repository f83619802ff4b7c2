// Package cli holds the portal's command line: the HTTP server plus one-shot
// stats and export commands that run against a fresh load of the sheet.
package cli

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"complaint-portal/internal/client"
	"complaint-portal/internal/config"
	"complaint-portal/internal/export"
	"complaint-portal/internal/geocode"
	"complaint-portal/internal/metrics"
	"complaint-portal/internal/notify"
	"complaint-portal/internal/portal"
	"complaint-portal/internal/storage"
	"complaint-portal/internal/telemetry"
	"complaint-portal/internal/transformer"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "complaint-portal",
	Short: "University facilities complaint portal",
	Long: `complaint-portal serves the public complaint form and the admin dashboard
on top of the complaints spreadsheet.

Examples:
  # Run the HTTP server
  complaint-portal serve

  # Print dashboard figures for the current sheet
  complaint-portal stats

  # Export pending electrical complaints to a spreadsheet
  complaint-portal export --format xlsx --status Pending --category Electrical -o pending.xlsx`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// app is the wired component graph shared by every command.
type app struct {
	cfg        *config.Config
	logger     *logrus.Logger
	store      *storage.MemoryStore
	service    *portal.Service
	calculator *metrics.Calculator
	exporter   *export.Exporter
	metrics    *telemetry.Metrics
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

func newApp(cfg *config.Config) *app {
	logger := newLogger(cfg.LogLevel)

	normalizer := transformer.New(transformer.WithLocation(cfg.Location()))
	store := storage.NewMemoryStore(normalizer)
	m := telemetry.NewMetrics()

	deps := portal.Deps{
		Remote:     client.NewHTTPClient(cfg, logger),
		Store:      store,
		Normalizer: normalizer,
		Geocoder:   geocode.NewNominatim(cfg, logger),
		Metrics:    m,
		Logger:     logger,
	}
	// Leave the interface nil when mail is off so the service skips it
	if mailer := notify.NewMailer(cfg, logger); mailer.Enabled() {
		deps.Mailer = mailer
	} else {
		logger.Warn("EmailJS is not configured, confirmation emails are disabled")
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		service:    portal.NewService(cfg, deps),
		calculator: metrics.NewCalculator(),
		exporter:   export.NewExporter(cfg, logger),
		metrics:    m,
	}
}

// loadApp reads the configuration and builds the component graph.
func loadApp() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newApp(cfg), nil
}

// loadOnce builds the app and performs a single reload for one-shot commands.
func loadOnce(ctx context.Context) (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if _, err := a.service.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
