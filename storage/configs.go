package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"content-hand/models"
)

// ConfigRepository speichert PipelineConfigurations je Owner.
type ConfigRepository struct {
	DB *gorm.DB
}

// NewConfigRepository erstellt ein neues Repository.
func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{DB: db}
}

// GetByOwner lädt die Konfiguration eines Owners.
func (r *ConfigRepository) GetByOwner(ctx context.Context, ownerID string) (*models.PipelineConfiguration, error) {
	var cfg models.PipelineConfiguration
	if err := r.DB.WithContext(ctx).Where("owner_id = ?", ownerID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline config for %s: %w", ownerID, err)
	}
	return &cfg, nil
}

// Save legt die Konfiguration an oder überschreibt Name und Settings der
// bestehenden. Die Laufstatistik ändert nur RecordRun.
func (r *ConfigRepository) Save(ctx context.Context, cfg *models.PipelineConfiguration) error {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "settings", "updated_at"}),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("save pipeline config for %s: %w", cfg.OwnerID, err)
	}
	return nil
}

// RecordRun schreibt die rollierenden Durchschnitte in einem einzigen UPDATE fort.
// Alle Ausdrücke lesen die Werte vor dem Update.
func (r *ConfigRepository) RecordRun(ctx context.Context, ownerID string, costUSD float64, timeMS int64, success bool) error {
	ok := 0.0
	if success {
		ok = 1.0
	}
	res := r.DB.WithContext(ctx).Model(&models.PipelineConfiguration{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]any{
			"avg_cost_usd": gorm.Expr("(avg_cost_usd * run_count + ?) / (run_count + 1)", costUSD),
			"avg_time_ms":  gorm.Expr("(avg_time_ms * run_count + ?) / (run_count + 1)", float64(timeMS)),
			"success_rate": gorm.Expr("(success_rate * run_count + ?) / (run_count + 1)", ok),
			"run_count":    gorm.Expr("run_count + 1"),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("record run for %s: %w", ownerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// QuoteRepository liefert kuratierte Zitate.
type QuoteRepository struct {
	DB *gorm.DB
}

// NewQuoteRepository erstellt ein neues Repository.
func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{DB: db}
}

// ListActive lädt alle aktiven Zitate.
func (r *QuoteRepository) ListActive(ctx context.Context) ([]models.Quote, error) {
	var quotes []models.Quote
	if err := r.DB.WithContext(ctx).Where("active = ?", true).Order("id asc").Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}

// Create legt ein Zitat an.
func (r *QuoteRepository) Create(ctx context.Context, q *models.Quote) error {
	if err := r.DB.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("create quote: %w", err)
	}
	return nil
}
