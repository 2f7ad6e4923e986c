// Package app verdrahtet Konfiguration, Speicher, Provider und Services. Der
// HTTP-Server und contentctl teilen sich diese Verdrahtung.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"content-hand/config"
	"content-hand/models"
	"content-hand/providers"
	"content-hand/providers/anthropic"
	"content-hand/providers/openai"
	"content-hand/providers/telegram"
	"content-hand/providers/webhook"
	"content-hand/services"
	"content-hand/storage"
)

// QuoteStore kann Zitate liefern und anlegen.
type QuoteStore interface {
	services.QuoteStore
	Create(ctx context.Context, q *models.Quote) error
}

// App hält die verdrahteten Komponenten.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Defaults models.PipelineSettings

	Store   services.ContentStore
	Configs services.ConfigStore
	Quotes  QuoteStore
	Models  *providers.Router

	Links      *services.LinkTransformer
	Validator  *services.StructuralValidator
	Gate       *services.PublishGate
	Engine     *services.PipelineEngine
	Content    *services.ContentService
	Publish    *services.PublishService
	Escalation *services.EscalationService
	Scheduler  *services.SchedulerService
}

// NewLogger baut einen Production-Logger mit dem Level aus LOG_LEVEL.
func NewLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// New verdrahtet alle Komponenten aus der Konfiguration.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	defaults, err := config.LoadPipelineSettings(cfg.PipelineConfigPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	start, err := config.ParseClock(cfg.PublishWindowStart)
	if err != nil {
		return nil, err
	}
	end, err := config.ParseClock(cfg.PublishWindowEnd)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, Defaults: defaults}
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	seedDefaultQuotes(ctx, a.Quotes, log)

	// Modell-Provider
	a.Models = providers.NewRouter()
	var oa *openai.Client
	if cfg.OpenAIAPIKey != "" {
		oa = openai.NewClient(cfg, log)
		a.Models.Register(oa)
	}
	if cfg.AnthropicAPIKey != "" {
		a.Models.Register(anthropic.NewClient(cfg, log))
	}
	if len(a.Models.Names()) == 0 {
		log.Warn("No model provider configured, pipeline runs will abort")
	} else {
		log.Info("Active model providers loaded", zap.Strings("providers", a.Models.Names()))
	}

	a.Links = services.NewLinkTransformer(cfg.FirstPartyDomainList(), cfg.AffiliateDomainList())
	a.Validator = services.NewStructuralValidator()
	a.Gate = services.NewPublishGate()

	deps := services.StageDeps{
		Models: a.Models,
		Quotes: a.Quotes,
		Links:  a.Links,
		Logger: log,
	}
	if oa != nil && cfg.S3Enabled() {
		s3Client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("S3 client creation failed: %w", err)
		}
		deps.Images = oa
		deps.ImageStore = storage.NewImageStore(s3Client, cfg)
	}
	a.Engine = services.NewPipelineEngine(deps)
	a.Content = services.NewContentService(a.Store, a.Configs, a.Engine, defaults, log)

	var target services.Publisher
	if cfg.PublishTargetURL != "" {
		target = webhook.NewPublisher(cfg, log)
	}
	a.Publish = services.NewPublishService(a.Store, target, log)

	var notifier services.Notifier = services.LogNotifier{Logger: log}
	if cfg.TelegramEnabled() {
		notifier = telegram.NewNotifier(cfg)
	}
	a.Escalation = services.NewEscalationService(a.Store, notifier, a.Publish, services.EscalationConfig{
		DeadlineDays:       cfg.SLADeadlineDays,
		PublishImmediately: cfg.SLAPublishImmediately,
		BatchSize:          cfg.SLAEscalationBatchSize,
	}, log)
	a.Scheduler = services.NewSchedulerService(a.Store, a.Publish, services.SchedulerConfig{
		DailyQuota:         cfg.DailyQuota,
		Window:             services.PublishWindow{StartMinute: start, EndMinute: end, Location: loc},
		SkipWeekends:       cfg.SkipWeekends,
		MarkScheduled:      cfg.MarkScheduled,
		PublishImmediately: cfg.PublishImmediately,
	}, log)
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.Config.StorageDriver {
	case "memory":
		a.Store = storage.NewMemoryContentStore()
		a.Configs = storage.NewMemoryConfigStore()
		a.Quotes = storage.NewMemoryQuoteStore()
		a.Logger.Warn("Using in-memory storage, data is lost on restart")
		return nil
	case "postgres", "":
		db, err := gorm.Open(postgres.Open(a.Config.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.Logger.Info("Successfully connected to content database.")
		if err := Migrate(db.WithContext(ctx)); err != nil {
			return err
		}
		a.DB = db
		a.Store = storage.NewContentRepository(db)
		a.Configs = storage.NewConfigRepository(db)
		a.Quotes = storage.NewQuoteRepository(db)
		return nil
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", a.Config.StorageDriver)
	}
}

// Migrate legt die Tabellen an.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ContentItem{}, &models.PipelineConfiguration{}, &models.Quote{}); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// Close schließt die Datenbankverbindung.
func (a *App) Close() {
	if a.DB == nil {
		return
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
