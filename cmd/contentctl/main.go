// contentctl führt Wartungsaufgaben der Content-Pipeline direkt gegen den Speicher aus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"content-hand/app"
	"content-hand/config"
)

var (
	// deadlineDays überschreibt SLA_DEADLINE_DAYS, wenn >= 0
	deadlineDays int
	// dailyQuota überschreibt DAILY_QUOTA, wenn >= 0
	dailyQuota int
	// publishNow löst nach Freigabe oder Planung sofort die Veröffentlichung aus
	publishNow bool
	// contentType wählt die Mindestwortzahl des Structural Validators
	contentType string
	// gate prüft zusätzlich gegen das Publish Gate
	gate bool
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "contentctl",
	Short: "Operator CLI for the content pipeline",
	Long: `contentctl runs the SLA escalation and the scheduler against the configured
storage and validates or transforms local article files.

Configuration is read from the environment and .env, like the server.`,
	SilenceUsage: true,
}

func init() {
	escalateCmd.Flags().IntVar(&deadlineDays, "deadline-days", -1, "override the review deadline in days")
	escalateCmd.Flags().BoolVar(&publishNow, "publish", false, "publish auto-approved items immediately")
	scheduleCmd.Flags().IntVar(&dailyQuota, "quota", -1, "override the daily quota")
	scheduleCmd.Flags().BoolVar(&publishNow, "publish", false, "publish scheduled items immediately")
	validateCmd.Flags().StringVar(&contentType, "type", "new_article", "content type (new_article or refresh)")
	validateCmd.Flags().BoolVar(&gate, "gate", false, "also run the publish gate")

	rootCmd.AddCommand(escalateCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(backupCmd)
}

// setup lädt Konfiguration und verdrahtet die Anwendung.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput liest eine Datei oder stdin bei "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		return string(raw), err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(raw), nil
}

func syncLogger(a *app.App) {
	if err := a.Logger.Sync(); err != nil {
		a.Logger.Debug("Logger sync failed", zap.Error(err))
	}
}
