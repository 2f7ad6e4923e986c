package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"content-hand/metrics"
	"content-hand/models"
)

var publishable = []models.ContentStatus{models.StatusApproved, models.StatusScheduled}

// PublishService übergibt freigegebene Items an das Publish-Ziel.
type PublishService struct {
	store  ContentStore
	target Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewPublishService erstellt den Service. Ohne target wird nur der Status gesetzt.
func NewPublishService(store ContentStore, target Publisher, logger *zap.Logger) *PublishService {
	return &PublishService{store: store, target: target, logger: logger, now: time.Now}
}

// Publish veröffentlicht ein Item. Schlägt das Ziel fehl, bleibt der Status unverändert.
func (s *PublishService) Publish(ctx context.Context, id uint) (bool, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if item.Status != models.StatusApproved && item.Status != models.StatusScheduled {
		return false, fmt.Errorf("%w: publish from %s", ErrInvalidTransition, item.Status)
	}

	if s.target != nil {
		if err := s.target.Publish(ctx, item); err != nil {
			metrics.PublishAttempts.WithLabelValues("failed").Inc()
			return false, fmt.Errorf("publish target: %w", err)
		}
	}

	now := s.now()
	if _, err := s.store.UpdateIfStatus(ctx, id, publishable, models.ContentPatch{
		Status:      models.Ptr(models.StatusPublished),
		PublishedAt: &now,
	}); err != nil {
		metrics.PublishAttempts.WithLabelValues("conflict").Inc()
		return false, err
	}
	metrics.PublishAttempts.WithLabelValues("published").Inc()
	s.logger.Info("Content published", zap.Uint("content_id", id))
	return true, nil
}

// PublishDueSummary ist das Ergebnis von PublishDue.
type PublishDueSummary struct {
	PublishedCount int           `json:"published_count"`
	Failures       []ItemFailure `json:"failures"`
}

// PublishDue veröffentlicht alle Items, deren scheduled_at erreicht ist.
func (s *PublishService) PublishDue(ctx context.Context) (PublishDueSummary, error) {
	until := s.now().Add(time.Second)
	due, err := s.store.Find(ctx, models.ContentFilter{
		Statuses:       publishable,
		ScheduledUntil: &until,
		OrderBy:        models.OrderScheduledAt,
	})
	if err != nil {
		return PublishDueSummary{}, fmt.Errorf("find due items: %w", err)
	}

	summary := PublishDueSummary{Failures: []ItemFailure{}}
	for _, item := range due {
		if _, err := s.Publish(ctx, item.ID); err != nil {
			s.logger.Warn("Publishing due item failed", zap.Uint("content_id", item.ID), zap.Error(err))
			summary.Failures = append(summary.Failures, ItemFailure{ContentID: item.ID, Error: err.Error()})
			continue
		}
		summary.PublishedCount++
	}
	return summary, nil
}
