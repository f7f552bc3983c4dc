package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/app"
	"github.com/JakeFAU/realtime-chart-scraper/internal/config"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the set of services the commands use. Tests inject a mock through
// newApp.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	RunOnce(ctx context.Context) (scraper.RunReport, error)
	RunSchedule(ctx context.Context) error
	Handler() http.Handler
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "chartscraper",
		Short: "Scrapes a ranked movie chart and serves the results.",
		Long: `chartscraper fetches a movie chart page, extracts every title, and
persists the snapshot as a JSON document, a CSV file, a queryable table,
and an in-memory base64 cache served by a small HTTP API.`,
		SilenceUsage: true,

		// Runs before the subcommand's RunE: load config and build services.
		// Each subcommand closes the app when its RunE returns, on success
		// or failure.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); SCRAPER_* environment variables override it")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services are not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "chartscraper:", err)
		os.Exit(1)
	}
}
