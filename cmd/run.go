package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Executes one scrape immediately and prints the run report",
		Long: `Fetches the configured chart once, writes every sink, and prints the
run report as JSON on stdout. The command fails only when the run status
is failed; a partial run prints its sink errors and exits zero.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()

	report, runErr := appInstance.RunOnce(cmd.Context())
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}

	if runErr != nil {
		if report.Status == scraper.RunStatusFailed || report.Status == "" {
			return fmt.Errorf("run failed: %w", runErr)
		}
		appInstance.Logger().Warn("run finished with sink failures", zap.Error(runErr))
	}
	return nil
}
