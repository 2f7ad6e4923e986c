package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"content-hand/app"
	"content-hand/config"
	"content-hand/services"
	"content-hand/storage"
)

var escalateCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Run the SLA escalation once",
	Long: `Auto-approve items that are pending review beyond the deadline and pass the
publish gate. Blocked items get a note. One consolidated notification is sent.

Examples:
  contentctl escalate
  contentctl escalate --deadline-days 3 --publish`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		defer syncLogger(a)

		var opts services.EscalationOptions
		if deadlineDays >= 0 {
			opts.DeadlineDays = &deadlineDays
		}
		if cmd.Flags().Changed("publish") {
			opts.PublishImmediately = &publishNow
		}
		summary, err := a.Escalation.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Assign today's publish slots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		defer syncLogger(a)

		var opts services.ScheduleOptions
		if dailyQuota >= 0 {
			opts.DailyQuota = &dailyQuota
		}
		if cmd.Flags().Changed("publish") {
			opts.PublishImmediately = &publishNow
		}
		summary, err := a.Scheduler.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Run the structural validator on an HTML file",
	Long: `Validate a local article body. Title and meta description are taken from the
first h1 and the first paragraph. Exits non-zero when a blocking error is found.

Examples:
  contentctl validate article.html
  cat article.html | contentctl validate --gate -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		in := services.ValidationInput{
			Title:           services.FirstHeadingText(body),
			Body:            body,
			MetaDescription: services.FirstSentence(services.FirstParagraphText(body), 160),
			ContentType:     contentType,
		}
		out := map[string]services.ValidationResult{
			"structural": services.NewStructuralValidator().Validate(in),
		}
		if gate {
			out["publish_gate"] = services.NewPublishGate().Check(in)
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		for name, res := range out {
			if !res.Passed {
				return fmt.Errorf("%s validation failed with %d errors", name, len(res.Errors))
			}
		}
		return nil
	},
}

var linksCmd = &cobra.Command{
	Use:   "links <file>",
	Short: "Rewrite raw links of an HTML file into shortcodes",
	Long: `Classify every link as internal, affiliate or external using FIRST_PARTY_DOMAINS
and AFFILIATE_DOMAINS and print the transformed body with counts and issues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		body, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		lt := services.NewLinkTransformer(cfg.FirstPartyDomainList(), cfg.AffiliateDomainList())
		return printJSON(cmd.OutOrStdout(), lt.Transform(body))
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump the content database to S3 and rotate old dumps",
	Long: `Create a gzip-compressed pg_dump of the content database, upload it to
BACKUP_S3_BUCKET (or S3_BUCKET) under BACKUP_PREFIX and keep the newest KEEP_BACKUPS dumps.

pg_dump must be on PATH.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := app.NewLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return fmt.Errorf("S3 client creation failed: %w", err)
		}
		backups := storage.NewBackupStore(client, cfg, logger)

		data, err := storage.DumpDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		key := backups.Key(time.Now())
		if err := backups.Upload(ctx, key, data); err != nil {
			return err
		}
		logger.Info("Backup uploaded", zap.String("key", key), zap.Int("bytes", len(data)))

		deleted, err := backups.Rotate(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"key": key, "bytes": len(data), "deleted": deleted})
	},
}
