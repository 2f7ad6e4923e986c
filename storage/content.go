package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"content-hand/models"
)

var (
	// ErrNotFound wird geliefert, wenn kein Datensatz existiert.
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict wird geliefert, wenn ein bedingtes Update den erwarteten Status nicht mehr vorfindet.
	ErrStatusConflict = errors.New("status precondition failed")
)

// ContentRepository speichert ContentItems in PostgreSQL.
type ContentRepository struct {
	DB *gorm.DB
}

// NewContentRepository erstellt ein neues Repository.
func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

// Create legt ein neues Item an.
func (r *ContentRepository) Create(ctx context.Context, item *models.ContentItem) error {
	if err := r.DB.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("create content item: %w", err)
	}
	return nil
}

// Get lädt ein Item per ID.
func (r *ContentRepository) Get(ctx context.Context, id uint) (*models.ContentItem, error) {
	var item models.ContentItem
	if err := r.DB.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get content item %d: %w", id, err)
	}
	return &item, nil
}

// Find lädt Items nach Filter.
func (r *ContentRepository) Find(ctx context.Context, f models.ContentFilter) ([]models.ContentItem, error) {
	query := r.DB.WithContext(ctx).Model(&models.ContentItem{})

	if f.OwnerID != "" {
		query = query.Where("owner_id = ?", f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", f.Statuses)
	}
	if f.PendingBefore != nil {
		query = query.Where("pending_since IS NOT NULL AND pending_since <= ?", *f.PendingBefore)
	}
	if c := f.PendingAfter; c != nil {
		query = query.Where("pending_since IS NOT NULL AND (pending_since > ? OR (pending_since = ? AND id > ?))", c.Since, c.Since, c.ID)
	}
	if f.Unscheduled {
		query = query.Where("scheduled_at IS NULL")
	}
	if f.ScheduledFrom != nil {
		query = query.Where("scheduled_at >= ?", *f.ScheduledFrom)
	}
	if f.ScheduledUntil != nil {
		query = query.Where("scheduled_at < ?", *f.ScheduledUntil)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	switch f.OrderBy {
	case models.OrderPendingOldest:
		query = query.Order("pending_since asc").Order("id asc")
	case models.OrderPriority:
		query = query.Order("priority desc").Order("created_at asc").Order("id asc")
	case models.OrderScheduledAt:
		query = query.Order("scheduled_at asc").Order("id asc")
	default:
		query = query.Order("created_at desc")
	}

	var items []models.ContentItem
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("find content items: %w", err)
	}
	return items, nil
}

// scheduleLockKey ist der Schlüssel der Advisory-Lock für Scheduler-Läufe.
const scheduleLockKey int64 = 0x636f6e74

// LockSchedule hält eine Postgres-Advisory-Lock auf einer eigenen Verbindung,
// bis unlock aufgerufen wird. So plant immer nur ein Prozess zur selben Zeit.
func (r *ContentRepository) LockSchedule(ctx context.Context) (func(), error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("schedule lock: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("schedule lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", scheduleLockKey); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire schedule lock: %w", err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", scheduleLockKey)
		_ = conn.Close()
	}, nil
}

// Update schreibt einen Patch ohne Vorbedingung.
func (r *ContentRepository) Update(ctx context.Context, id uint, patch models.ContentPatch) (*models.ContentItem, error) {
	res := r.DB.WithContext(ctx).Model(&models.ContentItem{}).Where("id = ?", id).Updates(patchColumns(patch))
	if res.Error != nil {
		return nil, fmt.Errorf("update content item %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

// UpdateIfStatus schreibt den Patch nur, wenn das Item noch in einem der erwarteten
// Status ist. Die Bedingung steht in derselben UPDATE-Anweisung, damit konkurrierende
// Übergänge genau einen Gewinner haben.
func (r *ContentRepository) UpdateIfStatus(ctx context.Context, id uint, expected []models.ContentStatus, patch models.ContentPatch) (*models.ContentItem, error) {
	res := r.DB.WithContext(ctx).Model(&models.ContentItem{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(patchColumns(patch))
	if res.Error != nil {
		return nil, fmt.Errorf("conditional update content item %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStatusConflict
	}
	return r.Get(ctx, id)
}

// CountScheduledBetween zählt Items mit Veröffentlichungszeit in [from, to).
func (r *ContentRepository) CountScheduledBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.ContentItem{}).
		Where("scheduled_at >= ? AND scheduled_at < ?", from, to).
		Where("status IN ?", scheduledStatuses).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count scheduled items: %w", err)
	}
	return int(count), nil
}

// Status, die einen Slot im Tageskontingent belegen.
var scheduledStatuses = []models.ContentStatus{models.StatusApproved, models.StatusScheduled, models.StatusPublished}

// patchColumns übersetzt einen Patch in eine Update-Map.
func patchColumns(p models.ContentPatch) map[string]any {
	cols := map[string]any{}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Body != nil {
		cols["body"] = *p.Body
	}
	if p.MetaDescription != nil {
		cols["meta_description"] = *p.MetaDescription
	}
	if p.FeaturedImageURL != nil {
		cols["featured_image_url"] = *p.FeaturedImageURL
	}
	if p.WordCount != nil {
		cols["word_count"] = *p.WordCount
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.PendingSince != nil {
		cols["pending_since"] = *p.PendingSince
	}
	if p.Priority != nil {
		cols["priority"] = *p.Priority
	}
	if p.ScheduledAt != nil {
		cols["scheduled_at"] = *p.ScheduledAt
	}
	if p.PublishedAt != nil {
		cols["published_at"] = *p.PublishedAt
	}
	if p.ApprovedAt != nil {
		cols["approved_at"] = *p.ApprovedAt
	}
	if p.ApprovedBy != nil {
		cols["approved_by"] = *p.ApprovedBy
	}
	if p.ValidationErrors != nil {
		cols["validation_errors"] = datatypes.JSONSlice[string](p.ValidationErrors)
	}
	if p.ValidationWarnings != nil {
		cols["validation_warnings"] = datatypes.JSONSlice[string](p.ValidationWarnings)
	}
	if p.AutoApproved != nil {
		cols["auto_approved"] = *p.AutoApproved
	}
	if p.AutoApprovedAt != nil {
		cols["auto_approved_at"] = *p.AutoApprovedAt
	}
	if p.AutoApprovalReason != nil {
		cols["auto_approval_reason"] = *p.AutoApprovalReason
	}
	if p.AppendNote != "" {
		cols["validation_notes"] = gorm.Expr("CONCAT_WS(E'\\n', NULLIF(validation_notes, ''), ?::text)", p.AppendNote)
	}
	return cols
}
