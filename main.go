package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"content-hand/app"
	"content-hand/config"
	"content-hand/services"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logging, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	a, err := app.New(context.Background(), cfg, logging)
	if err != nil {
		logging.Fatal("Application setup failed", zap.Error(err))
	}
	defer a.Close()

	router := newRouter(a)

	// Setup Cron
	cronScheduler := cron.New()
	addCronJob(cronScheduler, cfg.EscalationCron, "sla-escalation", logging, func(ctx context.Context) {
		summary, err := a.Escalation.Run(ctx, services.EscalationOptions{})
		if err != nil {
			logging.Error("SLA escalation job failed", zap.Error(err))
			return
		}
		logging.Info("SLA escalation job completed",
			zap.Int("approved", summary.ApprovedCount),
			zap.Int("blocked", summary.BlockedCount))
	})
	addCronJob(cronScheduler, cfg.ScheduleCron, "scheduler", logging, func(ctx context.Context) {
		summary, err := a.Scheduler.Run(ctx, services.ScheduleOptions{})
		if err != nil {
			logging.Error("Scheduler job failed", zap.Error(err))
			return
		}
		logging.Info("Scheduler job completed", zap.Int("scheduled", summary.ScheduledCount))
	})
	addCronJob(cronScheduler, cfg.PublishDueCron, "publish-due", logging, func(ctx context.Context) {
		summary, err := a.Publish.PublishDue(ctx)
		if err != nil {
			logging.Error("Publish job failed", zap.Error(err))
			return
		}
		if summary.PublishedCount > 0 || len(summary.Failures) > 0 {
			logging.Info("Publish job completed",
				zap.Int("published", summary.PublishedCount),
				zap.Int("failures", len(summary.Failures)))
		}
	})
	cronScheduler.Start()
	defer cronScheduler.Stop()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// addCronJob registriert einen Job. Ein ungültiger Ausdruck beendet den Start.
func addCronJob(c *cron.Cron, spec, name string, logging *zap.Logger, job func(ctx context.Context)) {
	if spec == "" {
		logging.Info("Cron job disabled", zap.String("job", name))
		return
	}
	_, err := c.AddFunc(spec, func() {
		logging.Info("Running scheduled job...", zap.String("job", name))
		job(context.Background())
	})
	if err != nil {
		logging.Fatal("Invalid cron expression", zap.String("job", name), zap.String("spec", spec), zap.Error(err))
	}
}
