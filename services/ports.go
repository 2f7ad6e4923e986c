package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"content-hand/models"
	"content-hand/providers"
)

// ContentStore ist der Zugriff auf ContentItems. UpdateIfStatus muss als
// Compare-and-Set auf den Status umgesetzt sein.
type ContentStore interface {
	Create(ctx context.Context, item *models.ContentItem) error
	Get(ctx context.Context, id uint) (*models.ContentItem, error)
	Find(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error)
	Update(ctx context.Context, id uint, patch models.ContentPatch) (*models.ContentItem, error)
	UpdateIfStatus(ctx context.Context, id uint, expected []models.ContentStatus, patch models.ContentPatch) (*models.ContentItem, error)
	CountScheduledBetween(ctx context.Context, from, to time.Time) (int, error)
}

// ConfigStore lädt und speichert PipelineConfigurations.
type ConfigStore interface {
	GetByOwner(ctx context.Context, ownerID string) (*models.PipelineConfiguration, error)
	Save(ctx context.Context, cfg *models.PipelineConfiguration) error
	// RecordRun fortschreibt nur die Laufstatistik; Name und Settings bleiben unberührt.
	RecordRun(ctx context.Context, ownerID string, costUSD float64, timeMS int64, success bool) error
}

// ScheduleLocker serialisiert Scheduler-Läufe über Prozessgrenzen hinweg.
// Stores ohne diese Fähigkeit verlassen sich auf die Sperre im Prozess.
type ScheduleLocker interface {
	LockSchedule(ctx context.Context) (unlock func(), err error)
}

// QuoteStore liefert kuratierte Zitate.
type QuoteStore interface {
	ListActive(ctx context.Context) ([]models.Quote, error)
}

// ImageStore legt Bilder ab und liefert deren URL.
type ImageStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ModelInvoker ruft einen benannten Modell-Provider auf.
type ModelInvoker interface {
	Invoke(ctx context.Context, provider string, req providers.InvokeRequest) (providers.InvokeResponse, error)
	Has(provider string) bool
}

// Notifier verschickt Benachrichtigungen an Reviewer.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Publisher übergibt ein Item an das Publish-Ziel.
type Publisher interface {
	Publish(ctx context.Context, item *models.ContentItem) error
}

// LogNotifier schreibt Benachrichtigungen ins Log, wenn kein Kanal konfiguriert ist.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, message string) error {
	n.Logger.Info("Reviewer notification", zap.String("message", message))
	return nil
}
