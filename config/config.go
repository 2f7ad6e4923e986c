package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"content_hand"`

	// postgres oder memory
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// Cron-Ausdrücke der wiederkehrenden Jobs
	EscalationCron string `envconfig:"CRON_ESCALATION" default:"0 * * * *"`
	ScheduleCron   string `envconfig:"CRON_SCHEDULE" default:"0 6 * * *"`
	PublishDueCron string `envconfig:"CRON_PUBLISH_DUE" default:"*/10 * * * *"`

	// SLA-Eskalation
	SLADeadlineDays        int  `envconfig:"SLA_DEADLINE_DAYS" default:"5"`
	SLAPublishImmediately  bool `envconfig:"SLA_PUBLISH_IMMEDIATELY" default:"false"`
	SLAEscalationBatchSize int  `envconfig:"SLA_BATCH_SIZE" default:"200"`

	// Scheduler
	DailyQuota         int    `envconfig:"DAILY_QUOTA" default:"3"`
	PublishWindowStart string `envconfig:"PUBLISH_WINDOW_START" default:"09:00"`
	PublishWindowEnd   string `envconfig:"PUBLISH_WINDOW_END" default:"17:00"`
	PublishTimezone    string `envconfig:"PUBLISH_TIMEZONE" default:"UTC"`
	SkipWeekends       bool   `envconfig:"SKIP_WEEKENDS" default:"true"`
	MarkScheduled      bool   `envconfig:"MARK_SCHEDULED" default:"true"`
	PublishImmediately bool   `envconfig:"PUBLISH_IMMEDIATELY" default:"false"`

	// Link-Klassifizierung
	FirstPartyDomains string `envconfig:"FIRST_PARTY_DOMAINS"`
	AffiliateDomains  string `envconfig:"AFFILIATE_DOMAINS" default:"shareasale.com,awin1.com,cj.com,anrdoezrs.net,jdoqocy.com,tkqlhce.com,dpbolvw.net,impact.com,partnerize.com,rakuten.com,linksynergy.com,amzn.to,amazon.com"`

	// Modell-Provider
	OpenAIAPIKey     string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	AnthropicAPIKey  string  `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string  `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com"`
	ModelTimeout     int     `envconfig:"MODEL_TIMEOUT_SECONDS" default:"120"`
	ModelRateLimit   float64 `envconfig:"MODEL_RATE_LIMIT" default:"1"`
	ModelMaxRetries  int     `envconfig:"MODEL_MAX_RETRIES" default:"3"`

	// Default-Pipeline aus YAML; leer bedeutet eingebaute Defaults
	PipelineConfigPath string `envconfig:"PIPELINE_CONFIG_PATH"`

	// Bildablage
	S3Key       string `envconfig:"S3_KEY"`
	S3Secret    string `envconfig:"S3_SECRET"`
	S3URL       string `envconfig:"S3_URL"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3PublicURL string `envconfig:"S3_PUBLIC_URL"`

	// Datenbank-Backups (contentctl backup)
	BackupBucket string `envconfig:"BACKUP_S3_BUCKET"`
	BackupPrefix string `envconfig:"BACKUP_PREFIX" default:"backups"`
	KeepBackups  int    `envconfig:"KEEP_BACKUPS" default:"4"`

	// Benachrichtigungen
	TelegramBaseURL  string `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`

	// Publish-Ziel (CMS-Webhook)
	PublishTargetURL   string `envconfig:"PUBLISH_TARGET_URL"`
	PublishTargetToken string `envconfig:"PUBLISH_TARGET_TOKEN"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// FirstPartyDomainList liefert die eigenen Domains als Liste.
func (c *Config) FirstPartyDomainList() []string {
	return splitList(c.FirstPartyDomains)
}

// AffiliateDomainList liefert die Affiliate-Netzwerk-Domains als Liste.
func (c *Config) AffiliateDomainList() []string {
	return splitList(c.AffiliateDomains)
}

// Location löst die Zeitzone des Publish-Fensters auf.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.PublishTimezone)
}

// S3Enabled meldet, ob die Bildablage konfiguriert ist.
func (c *Config) S3Enabled() bool {
	return c.S3URL != "" && c.S3Bucket != "" && c.S3Key != ""
}

// TelegramEnabled meldet, ob Telegram-Benachrichtigungen konfiguriert sind.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if _, err := ParseClock(c.PublishWindowStart); err != nil {
		return nil, fmt.Errorf("PUBLISH_WINDOW_START: %w", err)
	}
	if _, err := ParseClock(c.PublishWindowEnd); err != nil {
		return nil, fmt.Errorf("PUBLISH_WINDOW_END: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return nil, fmt.Errorf("PUBLISH_TIMEZONE: %w", err)
	}
	return &c, nil
}

// ParseClock liest eine Uhrzeit im Format HH:MM und gibt die Minuten seit Mitternacht zurück.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
