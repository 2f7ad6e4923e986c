package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"content-hand/metrics"
	"content-hand/models"
	"content-hand/storage"
)

var (
	// ErrGateFailed blockiert eine manuelle Freigabe.
	ErrGateFailed = errors.New("publish gate failed")
	// ErrEmptyDraft heißt: der Lauf lieferte keinen Body, es wird nichts gespeichert.
	ErrEmptyDraft = errors.New("pipeline produced an empty draft")
	// ErrInvalidTransition ist ein Statuswechsel, den der Lebenszyklus nicht erlaubt.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// GenerateOutcome ist das Ergebnis von ContentService.Generate.
type GenerateOutcome struct {
	Item       *models.ContentItem `json:"item,omitempty"`
	Validation *ValidationResult   `json:"validation,omitempty"`
	Metadata   ExecutionMetadata   `json:"metadata"`
}

// ContentEdit ist eine redaktionelle Änderung. Nil-Felder bleiben unverändert.
type ContentEdit struct {
	Title            *string `json:"title"`
	Body             *string `json:"body"`
	MetaDescription  *string `json:"meta_description"`
	FeaturedImageURL *string `json:"featured_image_url"`
	Priority         *int    `json:"priority"`
}

// ContentService bündelt die Aktionen auf ContentItems: Generierung, Einreichen,
// Freigabe, Bearbeitung und Löschen.
type ContentService struct {
	store     ContentStore
	configs   ConfigStore
	engine    *PipelineEngine
	validator *StructuralValidator
	gate      *PublishGate
	defaults  models.PipelineSettings
	logger    *zap.Logger
	now       func() time.Time
}

// NewContentService erstellt den Service. defaults gelten für Owner ohne eigene Konfiguration.
func NewContentService(store ContentStore, configs ConfigStore, engine *PipelineEngine, defaults models.PipelineSettings, logger *zap.Logger) *ContentService {
	return &ContentService{
		store:     store,
		configs:   configs,
		engine:    engine,
		validator: NewStructuralValidator(),
		gate:      NewPublishGate(),
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

// Settings liefert die Konfiguration eines Owners oder die Defaults.
func (s *ContentService) Settings(ctx context.Context, ownerID string) (models.PipelineSettings, *models.PipelineConfiguration, error) {
	if ownerID == "" || s.configs == nil {
		return s.defaults, nil, nil
	}
	cfg, err := s.configs.GetByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.defaults, nil, nil
	}
	if err != nil {
		return models.PipelineSettings{}, nil, err
	}
	return cfg.Settings.Data(), cfg, nil
}

// SaveSettings legt die Konfiguration eines Owners an oder ersetzt sie.
func (s *ContentService) SaveSettings(ctx context.Context, ownerID, name string, settings models.PipelineSettings) (*models.PipelineConfiguration, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		cfg = &models.PipelineConfiguration{OwnerID: ownerID}
	} else if err != nil {
		return nil, err
	}
	cfg.Name = name
	cfg.Settings = datatypes.NewJSONType(settings)
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Generate führt die Pipeline aus, speichert den Entwurf und reiht ihn zur
// Prüfung ein, wenn der Structural Validator keine Fehler meldet.
func (s *ContentService) Generate(ctx context.Context, ownerID string, topic models.TopicInput) (*GenerateOutcome, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	settings, cfg, err := s.Settings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load pipeline configuration: %w", err)
	}

	result, runErr := s.engine.Execute(ctx, topic, settings)
	out := &GenerateOutcome{Metadata: result.Metadata}
	draft := result.Content
	empty := strings.TrimSpace(draft.Body) == ""

	if cfg != nil {
		if err := s.configs.RecordRun(ctx, ownerID, result.Metadata.TotalCostUSD, result.Metadata.TotalTimeMS, runErr == nil && !empty); err != nil {
			s.logger.Warn("Failed to update pipeline averages", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}
	if runErr != nil {
		return out, runErr
	}
	if empty {
		return out, ErrEmptyDraft
	}

	item := &models.ContentItem{
		OwnerID:           ownerID,
		ContentType:       draft.ContentType,
		Title:             draft.Title,
		Body:              draft.Body,
		MetaDescription:   draft.MetaDescription,
		FeaturedImageURL:  draft.FeaturedImageURL,
		WordCount:         CountWords(draft.Body),
		Status:            models.StatusDraft,
		Priority:          topic.Priority,
		TargetKeywords:    draft.Keywords,
		TopicSource:       string(draft.Source),
		Topic:             draft.Topic,
		GenerationCostUSD: result.Metadata.TotalCostUSD,
		GenerationTimeMS:  result.Metadata.TotalTimeMS,
		ModelsUsed:        result.Metadata.ModelsUsed,
	}
	if cfg != nil {
		item.PipelineConfigID = &cfg.ID
	}

	res := s.validator.Validate(InputFromItem(item))
	metrics.ObserveValidation("structural", res.Passed)
	out.Validation = &res
	item.ValidationErrors = res.Errors
	item.ValidationWarnings = res.Warnings
	item.ValidationNotes = strings.Join(append(append([]string{}, draft.Notes...), draft.LinkIssues...), "\n")

	if err := s.store.Create(ctx, item); err != nil {
		return out, err
	}
	out.Item = item

	log := s.logger.With(zap.Uint("content_id", item.ID), zap.String("run_id", result.Metadata.RunID))
	if !res.Passed {
		log.Info("Draft kept for editing", zap.Strings("errors", res.Errors))
		return out, nil
	}
	queued, err := s.queue(ctx, item.ID)
	if err != nil {
		return out, err
	}
	out.Item = queued
	log.Info("Draft queued for review")
	return out, nil
}

func (s *ContentService) queue(ctx context.Context, id uint) (*models.ContentItem, error) {
	now := s.now()
	return s.store.UpdateIfStatus(ctx, id, []models.ContentStatus{models.StatusDraft}, models.ContentPatch{
		Status:       models.Ptr(models.StatusPendingReview),
		PendingSince: &now,
	})
}

// Submit validiert einen Entwurf erneut und reiht ihn bei Erfolg zur Prüfung ein.
func (s *ContentService) Submit(ctx context.Context, id uint) (*models.ContentItem, ValidationResult, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	if item.Status != models.StatusDraft {
		return item, ValidationResult{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, item.Status)
	}

	res := s.validator.Validate(InputFromItem(item))
	metrics.ObserveValidation("structural", res.Passed)
	patch := models.ContentPatch{
		ValidationErrors:   res.Errors,
		ValidationWarnings: res.Warnings,
	}
	if res.Passed {
		now := s.now()
		patch.Status = models.Ptr(models.StatusPendingReview)
		patch.PendingSince = &now
	}
	updated, err := s.store.UpdateIfStatus(ctx, id, []models.ContentStatus{models.StatusDraft}, patch)
	if err != nil {
		return nil, res, err
	}
	return updated, res, nil
}

// Approve prüft das Item gegen das Publish Gate und gibt es frei. Die Freigabe
// gelingt nur aus pending_review; eine parallele SLA-Freigabe gewinnt oder verliert als Ganzes.
func (s *ContentService) Approve(ctx context.Context, id uint, reviewer string) (*models.ContentItem, ValidationResult, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	if item.Status != models.StatusPendingReview {
		return item, ValidationResult{}, fmt.Errorf("%w: approve from %s", ErrInvalidTransition, item.Status)
	}

	res := s.gate.Check(InputFromItem(item))
	metrics.ObserveValidation("publish_gate", res.Passed)
	pending := []models.ContentStatus{models.StatusPendingReview}
	if !res.Passed {
		if _, err := s.store.UpdateIfStatus(ctx, id, pending, models.ContentPatch{
			ValidationErrors:   res.Errors,
			ValidationWarnings: res.Warnings,
		}); err != nil && !errors.Is(err, storage.ErrStatusConflict) {
			s.logger.Warn("Failed to store gate result", zap.Uint("content_id", id), zap.Error(err))
		}
		return item, res, ErrGateFailed
	}

	now := s.now()
	updated, err := s.store.UpdateIfStatus(ctx, id, pending, models.ContentPatch{
		Status:             models.Ptr(models.StatusApproved),
		ApprovedAt:         &now,
		ApprovedBy:         &reviewer,
		ValidationErrors:   res.Errors,
		ValidationWarnings: res.Warnings,
	})
	if err != nil {
		return nil, res, err
	}
	s.logger.Info("Content approved", zap.Uint("content_id", id), zap.String("reviewer", reviewer))
	return updated, res, nil
}

// Edit ändert Felder eines Items in draft oder pending_review.
func (s *ContentService) Edit(ctx context.Context, id uint, edit ContentEdit) (*models.ContentItem, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusDraft && item.Status != models.StatusPendingReview {
		return nil, fmt.Errorf("%w: edit in %s", ErrInvalidTransition, item.Status)
	}
	patch := models.ContentPatch{
		Title:            edit.Title,
		Body:             edit.Body,
		MetaDescription:  edit.MetaDescription,
		FeaturedImageURL: edit.FeaturedImageURL,
		Priority:         edit.Priority,
	}
	if edit.Body != nil {
		patch.WordCount = models.Ptr(CountWords(*edit.Body))
	}
	return s.store.UpdateIfStatus(ctx, id, []models.ContentStatus{item.Status}, patch)
}

// Delete löscht ein Item weich. Veröffentlichte Items bleiben erhalten.
func (s *ContentService) Delete(ctx context.Context, id uint) (*models.ContentItem, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Status.Deletable() {
		return nil, fmt.Errorf("%w: delete from %s", ErrInvalidTransition, item.Status)
	}
	return s.store.UpdateIfStatus(ctx, id, []models.ContentStatus{item.Status}, models.ContentPatch{
		Status: models.Ptr(models.StatusDeleted),
	})
}

func (s *ContentService) Get(ctx context.Context, id uint) (*models.ContentItem, error) {
	return s.store.Get(ctx, id)
}

func (s *ContentService) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error) {
	return s.store.Find(ctx, filter)
}
