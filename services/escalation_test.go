package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"content-hand/models"
	"content-hand/storage"
)

var escalationNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func pendingItem(t *testing.T, store *storage.MemoryContentStore, pendingDays int, publishable bool) *models.ContentItem {
	t.Helper()
	item := publishableItem("acme", models.StatusPendingReview)
	if !publishable {
		item.Body = articleBody(1200, 3, 1, true)
	}
	since := escalationNow.Add(-time.Duration(pendingDays) * 24 * time.Hour)
	item.PendingSince = &since
	require.NoError(t, store.Create(context.Background(), item))
	return item
}

func newTestEscalation(store ContentStore, n Notifier, p ItemPublisher, cfg EscalationConfig) *EscalationService {
	svc := NewEscalationService(store, n, p, cfg, zap.NewNop())
	svc.now = fixedClock(escalationNow)
	return svc
}

func TestEscalation_ApprovesAndBlocks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryContentStore()
	ok := pendingItem(t, store, 6, true)
	blocked := pendingItem(t, store, 8, false)
	fresh := pendingItem(t, store, 2, true)

	notifier := &recordingNotifier{}
	svc := newTestEscalation(store, notifier, nil, EscalationConfig{DeadlineDays: 5})

	summary, err := svc.Run(ctx, EscalationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ApprovedCount)
	assert.Equal(t, 1, summary.BlockedCount)
	assert.Zero(t, summary.SkippedCount)
	assert.Empty(t, summary.Failures)
	require.Len(t, summary.Items, 2)
	assert.Equal(t, blocked.ID, summary.Items[0].ContentID, "oldest first")
	assert.Equal(t, 8, summary.Items[0].ElapsedDays)

	got, err := store.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.True(t, got.AutoApproved)
	assert.Equal(t, ApprovedBySLA, got.ApprovedBy)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(escalationNow))
	require.NotNil(t, got.AutoApprovedAt)
	assert.Contains(t, got.AutoApprovalReason, "after 6 days")

	got, err = store.Get(ctx, blocked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReview, got.Status)
	assert.False(t, got.AutoApproved)
	assert.Contains(t, got.ValidationNotes, "[2026-03-10T12:00:00Z] SLA escalation blocked after 8 days in review")
	assert.Contains(t, got.ValidationNotes, "word count 1200")

	got, err = store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReview, got.Status)
	assert.Empty(t, got.ValidationNotes)

	require.Equal(t, 1, notifier.count(), "exactly one consolidated notification")
	assert.True(t, summary.Notified)
	msg := notifier.messages[0]
	assert.Contains(t, msg, "1 auto-approved, 1 still blocked")
	assert.Contains(t, msg, "Auto-approved:")
	assert.Contains(t, msg, "Blocked, needs review:")
}

func TestEscalation_NothingDueSendsNoNotification(t *testing.T) {
	store := storage.NewMemoryContentStore()
	pendingItem(t, store, 1, true)
	notifier := &recordingNotifier{}

	summary, err := newTestEscalation(store, notifier, nil, EscalationConfig{DeadlineDays: 5}).Run(context.Background(), EscalationOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.ApprovedCount+summary.BlockedCount)
	assert.False(t, summary.Notified)
	assert.Zero(t, notifier.count())
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, string) error {
	return errors.New("telegram error: 502 Bad Gateway")
}

func TestEscalation_NotificationFailureIsLogged(t *testing.T) {
	store := storage.NewMemoryContentStore()
	pendingItem(t, store, 6, true)
	core, logs := observer.New(zapcore.WarnLevel)

	svc := NewEscalationService(store, failingNotifier{}, nil, EscalationConfig{DeadlineDays: 5}, zap.New(core))
	svc.now = fixedClock(escalationNow)
	summary, err := svc.Run(context.Background(), EscalationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ApprovedCount)
	assert.False(t, summary.Notified)
	assert.Equal(t, 1, logs.FilterMessage("Escalation notification failed").Len())
}

func TestEscalation_RepeatedRunsAppendNotesButNeverReapprove(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryContentStore()
	blocked := pendingItem(t, store, 7, false)
	svc := newTestEscalation(store, &recordingNotifier{}, nil, EscalationConfig{DeadlineDays: 5})

	for range 2 {
		_, err := svc.Run(ctx, EscalationOptions{})
		require.NoError(t, err)
	}
	got, err := store.Get(ctx, blocked.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(got.ValidationNotes, "SLA escalation blocked"))
}

func TestEscalation_ProcessesEveryPage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryContentStore()
	var blocked []*models.ContentItem
	for i := range 7 {
		item := pendingItem(t, store, 6+i, i%2 == 0)
		if i%2 == 1 {
			blocked = append(blocked, item)
		}
	}
	pendingItem(t, store, 1, true)
	notifier := &recordingNotifier{}

	svc := newTestEscalation(store, notifier, nil, EscalationConfig{DeadlineDays: 5, BatchSize: 2})
	summary, err := svc.Run(ctx, EscalationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.ApprovedCount)
	assert.Equal(t, 3, summary.BlockedCount)
	assert.Len(t, summary.Items, 7)
	assert.Equal(t, 1, notifier.count())

	for _, item := range blocked {
		got, err := store.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(got.ValidationNotes, "SLA escalation blocked"), "each blocked item is visited once")
	}
}

func TestEscalation_OptionsOverrideDefaults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryContentStore()
	item := pendingItem(t, store, 1, true)
	target := &recordingPublisher{}
	publisher := NewPublishService(store, target, zap.NewNop())
	svc := newTestEscalation(store, &recordingNotifier{}, publisher, EscalationConfig{DeadlineDays: 5})

	summary, err := svc.Run(ctx, EscalationOptions{DeadlineDays: models.Ptr(0), PublishImmediately: models.Ptr(true)})
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	require.NotNil(t, summary.Items[0].Published)
	assert.True(t, *summary.Items[0].Published)
	assert.Equal(t, []uint{item.ID}, target.ids)

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, got.Status)
}

func TestEscalation_RejectsNegativeDeadline(t *testing.T) {
	svc := newTestEscalation(storage.NewMemoryContentStore(), nil, nil, EscalationConfig{DeadlineDays: 5})
	_, err := svc.Run(context.Background(), EscalationOptions{DeadlineDays: models.Ptr(-1)})
	assert.Error(t, err)
}

// conflictStore simuliert eine Freigabe, die zwischen Find und bedingtem Update passiert.
type conflictStore struct {
	*storage.MemoryContentStore
	conflictID uint
}

func (s conflictStore) UpdateIfStatus(ctx context.Context, id uint, expected []models.ContentStatus, patch models.ContentPatch) (*models.ContentItem, error) {
	if id == s.conflictID {
		return nil, storage.ErrStatusConflict
	}
	return s.MemoryContentStore.UpdateIfStatus(ctx, id, expected, patch)
}

func TestEscalation_SkipsItemsChangedConcurrently(t *testing.T) {
	store := storage.NewMemoryContentStore()
	raced := pendingItem(t, store, 9, true)
	other := pendingItem(t, store, 6, true)
	notifier := &recordingNotifier{}

	svc := newTestEscalation(conflictStore{MemoryContentStore: store, conflictID: raced.ID}, notifier, nil, EscalationConfig{DeadlineDays: 5})
	summary, err := svc.Run(context.Background(), EscalationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Equal(t, 1, summary.ApprovedCount)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, other.ID, summary.Items[0].ContentID)
	assert.Equal(t, 1, notifier.count())
}

func TestEscalation_RacesWithManualApproval(t *testing.T) {
	for i := 0; i < 25; i++ {
		ctx := context.Background()
		store := storage.NewMemoryContentStore()
		item := pendingItem(t, store, 6, true)

		content := NewContentService(store, storage.NewMemoryConfigStore(), nil, contentSettings(), zap.NewNop())
		esc := newTestEscalation(store, &recordingNotifier{}, nil, EscalationConfig{DeadlineDays: 5})

		var (
			wg         sync.WaitGroup
			summary    EscalationSummary
			escErr     error
			approveErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			summary, escErr = esc.Run(ctx, EscalationOptions{})
		}()
		go func() {
			defer wg.Done()
			_, _, approveErr = content.Approve(ctx, item.ID, "editor@example.com")
		}()
		wg.Wait()
		require.NoError(t, escErr)

		manualWon := approveErr == nil
		if !manualWon {
			assert.True(t, errors.Is(approveErr, storage.ErrStatusConflict) || errors.Is(approveErr, ErrInvalidTransition), approveErr)
		}
		assert.NotEqual(t, manualWon, summary.ApprovedCount == 1, "exactly one approval must win")

		got, err := store.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, got.Status)
		if manualWon {
			assert.Equal(t, "editor@example.com", got.ApprovedBy)
			assert.False(t, got.AutoApproved)
		} else {
			assert.Equal(t, ApprovedBySLA, got.ApprovedBy)
			assert.True(t, got.AutoApproved)
		}
	}
}

func TestFormatEscalationMessage(t *testing.T) {
	msg := FormatEscalationMessage(EscalationSummary{
		ApprovedCount: 1,
		BlockedCount:  1,
		Items: []EscalationItem{
			{ContentID: 1, Title: "Tomatoes", Outcome: outcomeApproved, ElapsedDays: 6},
			{ContentID: 2, Title: "Peppers", Outcome: outcomeBlocked, ElapsedDays: 9, Errors: []string{"a", "b"}},
		},
	}, 5)
	assert.Equal(t, `SLA escalation (deadline 5 days): 1 auto-approved, 1 still blocked

Auto-approved:
- #1 Tomatoes (6 days)

Blocked, needs review:
- #2 Peppers (9 days): a; b`, msg)
}
