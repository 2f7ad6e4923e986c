package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"content-hand/metrics"
	"content-hand/models"
	"content-hand/storage"
)

// PublishWindow ist das tägliche Veröffentlichungsfenster in Minuten ab Mitternacht.
type PublishWindow struct {
	StartMinute int
	EndMinute   int
	Location    *time.Location
}

// Start liefert den Fensterbeginn am Tag von day.
func (w PublishWindow) Start(day time.Time) time.Time {
	loc := w.location()
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(time.Duration(w.StartMinute) * time.Minute)
}

func (w PublishWindow) span() time.Duration {
	return time.Duration(max(w.EndMinute-w.StartMinute, 0)) * time.Minute
}

func (w PublishWindow) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// SchedulerConfig sind die Standardwerte des Schedulers.
type SchedulerConfig struct {
	DailyQuota         int
	Window             PublishWindow
	SkipWeekends       bool
	MarkScheduled      bool
	PublishImmediately bool
}

// ScheduleOptions überschreiben die Standardwerte für einen Lauf.
type ScheduleOptions struct {
	DailyQuota         *int  `json:"daily_quota"`
	PublishImmediately *bool `json:"publish_immediately"`
}

func (o ScheduleOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.DailyQuota, validation.Min(0)),
	)
}

// Assignment ist ein geplanter Veröffentlichungszeitpunkt.
type Assignment struct {
	Item models.ContentItem
	At   time.Time
}

// ScheduledEntry ist ein geplantes Item im Ergebnis.
type ScheduledEntry struct {
	ContentID   uint      `json:"content_id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Priority    int       `json:"priority"`
	Published   *bool     `json:"published,omitempty"`
}

// ScheduleSummary ist das Ergebnis eines Scheduler-Laufs.
type ScheduleSummary struct {
	ScheduledCount   int              `json:"scheduled_count"`
	ScheduledItems   []ScheduledEntry `json:"scheduled_items"`
	DailyRemaining   int              `json:"daily_remaining"`
	NextScheduleDate time.Time        `json:"next_schedule_date"`
	Failures         []ItemFailure    `json:"failures"`
}

// PlanSchedule verteilt höchstens quota-already Kandidaten gleichmäßig über das
// Fenster des Tages. Die Reihenfolge der Kandidaten bleibt erhalten.
func PlanSchedule(candidates []models.ContentItem, quota, already int, day time.Time, w PublishWindow) []Assignment {
	remaining := max(0, quota-already)
	n := min(len(candidates), remaining)
	if n == 0 {
		return nil
	}
	start := w.Start(day)
	out := make([]Assignment, n)
	for i := range n {
		at := start
		if n > 1 {
			at = start.Add(time.Duration(i) * w.span() / time.Duration(n-1))
		}
		out[i] = Assignment{Item: candidates[i], At: at}
	}
	return out
}

// NextScheduleDate ist morgen zum Fensterbeginn, optional ohne Wochenenden.
func NextScheduleDate(now time.Time, w PublishWindow, skipWeekends bool) time.Time {
	next := w.Start(now.In(w.location()).AddDate(0, 0, 1))
	for skipWeekends && (next.Weekday() == time.Saturday || next.Weekday() == time.Sunday) {
		next = w.Start(next.AddDate(0, 0, 1))
	}
	return next
}

// SchedulerService vergibt Veröffentlichungszeitpunkte an freigegebene Items.
type SchedulerService struct {
	// Zählen und Vergeben der Quote darf nur ein Lauf zur selben Zeit.
	mu        sync.Mutex
	store     ContentStore
	publisher ItemPublisher
	cfg       SchedulerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewSchedulerService erstellt den Service. publisher darf nil sein.
func NewSchedulerService(store ContentStore, publisher ItemPublisher, cfg SchedulerConfig, logger *zap.Logger) *SchedulerService {
	return &SchedulerService{store: store, publisher: publisher, cfg: cfg, logger: logger, now: time.Now}
}

// Run plant den heutigen Tag. Bereits geplante Items des Tages zählen gegen die Quote.
func (s *SchedulerService) Run(ctx context.Context, opts ScheduleOptions) (ScheduleSummary, error) {
	if err := opts.Validate(); err != nil {
		return ScheduleSummary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if locker, ok := s.store.(ScheduleLocker); ok {
		unlock, err := locker.LockSchedule(ctx)
		if err != nil {
			return ScheduleSummary{}, fmt.Errorf("acquire schedule lock: %w", err)
		}
		defer unlock()
	}

	quota := s.cfg.DailyQuota
	if opts.DailyQuota != nil {
		quota = *opts.DailyQuota
	}
	publish := s.cfg.PublishImmediately
	if opts.PublishImmediately != nil {
		publish = *opts.PublishImmediately
	}

	loc := s.cfg.Window.location()
	now := s.now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	summary := ScheduleSummary{
		ScheduledItems:   []ScheduledEntry{},
		Failures:         []ItemFailure{},
		NextScheduleDate: NextScheduleDate(now, s.cfg.Window, s.cfg.SkipWeekends),
	}

	already, err := s.store.CountScheduledBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return summary, fmt.Errorf("count scheduled items: %w", err)
	}
	remaining := max(0, quota-already)
	if remaining == 0 {
		s.logger.Info("Daily quota exhausted", zap.Int("quota", quota), zap.Int("already", already))
		return summary, nil
	}

	candidates, err := s.store.Find(ctx, models.ContentFilter{
		Statuses:    []models.ContentStatus{models.StatusApproved},
		Unscheduled: true,
		OrderBy:     models.OrderPriority,
		Limit:       remaining,
	})
	if err != nil {
		return summary, fmt.Errorf("find schedule candidates: %w", err)
	}

	for _, a := range PlanSchedule(candidates, quota, already, now, s.cfg.Window) {
		log := s.logger.With(zap.Uint("content_id", a.Item.ID))
		at := a.At
		patch := models.ContentPatch{ScheduledAt: &at}
		if s.cfg.MarkScheduled {
			patch.Status = models.Ptr(models.StatusScheduled)
		}
		if _, err := s.store.UpdateIfStatus(ctx, a.Item.ID, []models.ContentStatus{models.StatusApproved}, patch); err != nil {
			if errors.Is(err, storage.ErrStatusConflict) || errors.Is(err, storage.ErrNotFound) {
				log.Info("Item changed concurrently, skipping")
				continue
			}
			log.Error("Scheduling failed", zap.Error(err))
			summary.Failures = append(summary.Failures, ItemFailure{ContentID: a.Item.ID, Error: err.Error()})
			continue
		}

		entry := ScheduledEntry{ContentID: a.Item.ID, Title: a.Item.Title, ScheduledAt: at, Priority: a.Item.Priority}
		if publish && s.publisher != nil {
			ok, err := s.publisher.Publish(ctx, a.Item.ID)
			entry.Published = &ok
			if err != nil {
				log.Warn("Immediate publish failed", zap.Error(err))
				summary.Failures = append(summary.Failures, ItemFailure{ContentID: a.Item.ID, Error: "publish: " + err.Error()})
			}
		}
		summary.ScheduledItems = append(summary.ScheduledItems, entry)
		summary.ScheduledCount++
	}

	metrics.ScheduledItems.Add(float64(summary.ScheduledCount))
	summary.DailyRemaining = max(0, quota-already-summary.ScheduledCount)
	s.logger.Info("Scheduler finished",
		zap.Int("scheduled", summary.ScheduledCount),
		zap.Int("daily_remaining", summary.DailyRemaining))
	return summary, nil
}
