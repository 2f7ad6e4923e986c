package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"content-hand/metrics"
	"content-hand/models"
	"content-hand/storage"
)

// ApprovedBySLA steht in approved_by bei automatischer Freigabe.
const ApprovedBySLA = "sla-escalation"

// EscalationConfig sind die Standardwerte des SLA-Laufs.
type EscalationConfig struct {
	DeadlineDays       int
	PublishImmediately bool
	// Seitengröße beim Laden; ein Lauf arbeitet alle Seiten ab.
	BatchSize int
}

// EscalationOptions überschreiben die Standardwerte für einen Lauf.
type EscalationOptions struct {
	DeadlineDays       *int  `json:"deadline_days"`
	PublishImmediately *bool `json:"publish_immediately"`
}

func (o EscalationOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.DeadlineDays, validation.Min(0)),
	)
}

// EscalationItem ist ein verarbeitetes Item im Ergebnis.
type EscalationItem struct {
	ContentID   uint     `json:"content_id"`
	Title       string   `json:"title"`
	Outcome     string   `json:"outcome"`
	ElapsedDays int      `json:"elapsed_days"`
	Errors      []string `json:"errors,omitempty"`
	Published   *bool    `json:"published,omitempty"`
}

// ItemFailure ist ein Fehler, der nur ein einzelnes Item betrifft.
type ItemFailure struct {
	ContentID uint   `json:"content_id"`
	Error     string `json:"error"`
}

// EscalationSummary ist das Ergebnis eines SLA-Laufs.
type EscalationSummary struct {
	ApprovedCount int              `json:"approved_count"`
	BlockedCount  int              `json:"blocked_count"`
	SkippedCount  int              `json:"skipped_count"`
	Items         []EscalationItem `json:"items"`
	Failures      []ItemFailure    `json:"failures"`
	Notified      bool             `json:"notified"`
}

const (
	outcomeApproved = "approved"
	outcomeBlocked  = "blocked"
)

// ItemPublisher veröffentlicht ein gespeichertes Item.
type ItemPublisher interface {
	Publish(ctx context.Context, id uint) (bool, error)
}

// EscalationService gibt Items frei, die zu lange in pending_review liegen,
// sofern sie das Publish Gate bestehen.
type EscalationService struct {
	store     ContentStore
	gate      *PublishGate
	notifier  Notifier
	publisher ItemPublisher
	cfg       EscalationConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewEscalationService erstellt den Service. publisher darf nil sein.
func NewEscalationService(store ContentStore, notifier Notifier, publisher ItemPublisher, cfg EscalationConfig, logger *zap.Logger) *EscalationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &EscalationService{
		store:     store,
		gate:      NewPublishGate(),
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run verarbeitet alle überfälligen Items, älteste zuerst, und verschickt am
// Ende genau eine Sammelbenachrichtigung. Fehler einzelner Items halten den Lauf nicht an.
func (s *EscalationService) Run(ctx context.Context, opts EscalationOptions) (EscalationSummary, error) {
	if err := opts.Validate(); err != nil {
		return EscalationSummary{}, err
	}
	days := s.cfg.DeadlineDays
	if opts.DeadlineDays != nil {
		days = *opts.DeadlineDays
	}
	publish := s.cfg.PublishImmediately
	if opts.PublishImmediately != nil {
		publish = *opts.PublishImmediately
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	summary := EscalationSummary{Items: []EscalationItem{}, Failures: []ItemFailure{}}
	candidates := 0

	// Seiten per Cursor: blockierte Items bleiben pending_review und dürfen
	// nicht erneut auftauchen.
	var cursor *models.PendingCursor
	for {
		page, err := s.store.Find(ctx, models.ContentFilter{
			Statuses:      []models.ContentStatus{models.StatusPendingReview},
			PendingBefore: &cutoff,
			PendingAfter:  cursor,
			OrderBy:       models.OrderPendingOldest,
			Limit:         s.cfg.BatchSize,
		})
		if err != nil {
			if candidates == 0 {
				return EscalationSummary{}, fmt.Errorf("find overdue items: %w", err)
			}
			s.logger.Error("Loading next page of overdue items failed", zap.Int("processed", candidates), zap.Error(err))
			summary.Failures = append(summary.Failures, ItemFailure{Error: "find overdue items: " + err.Error()})
			break
		}
		candidates += len(page)
		for i := range page {
			s.process(ctx, &page[i], days, now, publish, &summary)
		}
		if len(page) < s.cfg.BatchSize {
			break
		}
		last := page[len(page)-1]
		cursor = &models.PendingCursor{Since: *last.PendingSince, ID: last.ID}
	}

	if len(summary.Items) > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx, FormatEscalationMessage(summary, days)); err != nil {
			s.logger.Warn("Escalation notification failed", zap.Error(err))
		} else {
			summary.Notified = true
		}
	}

	s.logger.Info("SLA escalation finished",
		zap.Int("candidates", candidates),
		zap.Int("approved", summary.ApprovedCount),
		zap.Int("blocked", summary.BlockedCount),
		zap.Int("skipped", summary.SkippedCount),
		zap.Int("failures", len(summary.Failures)))
	return summary, nil
}

func (s *EscalationService) process(ctx context.Context, item *models.ContentItem, days int, now time.Time, publish bool, summary *EscalationSummary) {
	log := s.logger.With(zap.Uint("content_id", item.ID))
	entry, err := s.escalate(ctx, item, days, now)
	switch {
	case errors.Is(err, storage.ErrStatusConflict), errors.Is(err, storage.ErrNotFound):
		log.Info("Item left pending review concurrently, skipping")
		summary.SkippedCount++
		metrics.EscalationOutcomes.WithLabelValues("skipped").Inc()
		return
	case err != nil:
		log.Error("Escalation failed", zap.Error(err))
		summary.Failures = append(summary.Failures, ItemFailure{ContentID: item.ID, Error: err.Error()})
		metrics.EscalationOutcomes.WithLabelValues("failed").Inc()
		return
	}

	if entry.Outcome == outcomeApproved {
		summary.ApprovedCount++
		if publish && s.publisher != nil {
			ok, err := s.publisher.Publish(ctx, item.ID)
			entry.Published = &ok
			if err != nil {
				log.Warn("Immediate publish failed", zap.Error(err))
				summary.Failures = append(summary.Failures, ItemFailure{ContentID: item.ID, Error: "publish: " + err.Error()})
			}
		}
	} else {
		summary.BlockedCount++
	}
	metrics.EscalationOutcomes.WithLabelValues(entry.Outcome).Inc()
	summary.Items = append(summary.Items, entry)
}

// escalate prüft ein Item und schreibt das Ergebnis mit Vorbedingung pending_review.
func (s *EscalationService) escalate(ctx context.Context, item *models.ContentItem, deadlineDays int, now time.Time) (EscalationItem, error) {
	elapsed := 0
	if item.PendingSince != nil {
		elapsed = int(now.Sub(*item.PendingSince).Hours() / 24)
	}
	entry := EscalationItem{ContentID: item.ID, Title: item.Title, ElapsedDays: elapsed}

	res := s.gate.Check(InputFromItem(item))
	metrics.ObserveValidation("publish_gate", res.Passed)
	pending := []models.ContentStatus{models.StatusPendingReview}

	if res.Passed {
		reason := fmt.Sprintf("Auto-approved after %d days in review (deadline %d days); publish gate passed", elapsed, deadlineDays)
		_, err := s.store.UpdateIfStatus(ctx, item.ID, pending, models.ContentPatch{
			Status:             models.Ptr(models.StatusApproved),
			AutoApproved:       models.Ptr(true),
			AutoApprovedAt:     &now,
			AutoApprovalReason: &reason,
			ScheduledAt:        &now,
			ApprovedAt:         &now,
			ApprovedBy:         models.Ptr(ApprovedBySLA),
			ValidationErrors:   res.Errors,
			ValidationWarnings: res.Warnings,
		})
		entry.Outcome = outcomeApproved
		return entry, err
	}

	note := fmt.Sprintf("[%s] SLA escalation blocked after %d days in review: %s",
		now.UTC().Format(time.RFC3339), elapsed, strings.Join(res.Errors, "; "))
	_, err := s.store.UpdateIfStatus(ctx, item.ID, pending, models.ContentPatch{
		ValidationErrors:   res.Errors,
		ValidationWarnings: res.Warnings,
		AppendNote:         note,
	})
	entry.Outcome = outcomeBlocked
	entry.Errors = res.Errors
	return entry, err
}

// FormatEscalationMessage baut die Sammelbenachrichtigung eines Laufs.
func FormatEscalationMessage(summary EscalationSummary, deadlineDays int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SLA escalation (deadline %d days): %d auto-approved, %d still blocked\n",
		deadlineDays, summary.ApprovedCount, summary.BlockedCount)

	var approved, blocked []EscalationItem
	for _, it := range summary.Items {
		if it.Outcome == outcomeApproved {
			approved = append(approved, it)
		} else {
			blocked = append(blocked, it)
		}
	}
	if len(approved) > 0 {
		b.WriteString("\nAuto-approved:\n")
		for _, it := range approved {
			fmt.Fprintf(&b, "- #%d %s (%d days)\n", it.ContentID, it.Title, it.ElapsedDays)
		}
	}
	if len(blocked) > 0 {
		b.WriteString("\nBlocked, needs review:\n")
		for _, it := range blocked {
			fmt.Fprintf(&b, "- #%d %s (%d days): %s\n", it.ContentID, it.Title, it.ElapsedDays, strings.Join(it.Errors, "; "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
