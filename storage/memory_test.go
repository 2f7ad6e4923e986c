package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-hand/models"
)

func TestMemoryContentStore_UpdateIfStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	item := &models.ContentItem{Title: "t", Status: models.StatusPendingReview}
	require.NoError(t, s.Create(ctx, item))
	require.NotZero(t, item.ID)

	pending := []models.ContentStatus{models.StatusPendingReview}
	updated, err := s.UpdateIfStatus(ctx, item.ID, pending, models.ContentPatch{
		Status:     models.Ptr(models.StatusApproved),
		AppendNote: "first",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)

	_, err = s.UpdateIfStatus(ctx, item.ID, pending, models.ContentPatch{AppendNote: "second"})
	assert.ErrorIs(t, err, ErrStatusConflict)

	got, err := s.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.ValidationNotes)

	_, err = s.UpdateIfStatus(ctx, 99, pending, models.ContentPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryContentStore_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	item := &models.ContentItem{Status: models.StatusPendingReview}
	require.NoError(t, s.Create(ctx, item))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateIfStatus(ctx, item.ID, []models.ContentStatus{models.StatusPendingReview}, models.ContentPatch{
				Status: models.Ptr(models.StatusApproved),
			}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryContentStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	item := &models.ContentItem{Title: "original", ValidationErrors: []string{"a"}}
	require.NoError(t, s.Create(ctx, item))

	got, err := s.Get(ctx, item.ID)
	require.NoError(t, err)
	got.Title = "changed"
	got.ValidationErrors[0] = "b"

	again, err := s.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Title)
	assert.Equal(t, []string{"a"}, []string(again.ValidationErrors))
	assert.Equal(t, models.StatusDraft, again.Status)
}

func TestMemoryContentStore_FindAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	base := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	at := func(h int) *time.Time {
		v := base.Add(time.Duration(h) * time.Hour)
		return &v
	}

	items := []*models.ContentItem{
		{OwnerID: "a", Status: models.StatusPendingReview, PendingSince: at(-48)},
		{OwnerID: "a", Status: models.StatusPendingReview, PendingSince: at(-72)},
		{OwnerID: "b", Status: models.StatusApproved, Priority: 1, CreatedAt: base},
		{OwnerID: "b", Status: models.StatusApproved, Priority: 7, CreatedAt: base},
		{OwnerID: "b", Status: models.StatusScheduled, ScheduledAt: at(10)},
		{OwnerID: "b", Status: models.StatusApproved, ScheduledAt: at(23)},
		{OwnerID: "b", Status: models.StatusDeleted, ScheduledAt: at(11)},
		{OwnerID: "b", Status: models.StatusPublished, ScheduledAt: at(30)},
	}
	for _, item := range items {
		require.NoError(t, s.Create(ctx, item))
	}

	cutoff := base.Add(-24 * time.Hour)
	overdue, err := s.Find(ctx, models.ContentFilter{
		Statuses:      []models.ContentStatus{models.StatusPendingReview},
		PendingBefore: &cutoff,
		OrderBy:       models.OrderPendingOldest,
	})
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, items[1].ID, overdue[0].ID)

	candidates, err := s.Find(ctx, models.ContentFilter{
		Statuses:    []models.ContentStatus{models.StatusApproved},
		Unscheduled: true,
		OrderBy:     models.OrderPriority,
		Limit:       1,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, items[3].ID, candidates[0].ID)

	byOwner, err := s.Find(ctx, models.ContentFilter{OwnerID: "a"})
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	n, err := s.CountScheduledBetween(ctx, base, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "deleted items and other days do not count")
}

func TestMemoryContentStore_PendingCursor(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)
	for _, since := range []time.Time{base, base, later} {
		at := since
		require.NoError(t, s.Create(ctx, &models.ContentItem{Status: models.StatusPendingReview, PendingSince: &at}))
	}

	first, err := s.Find(ctx, models.ContentFilter{OrderBy: models.OrderPendingOldest, Limit: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)

	rest, err := s.Find(ctx, models.ContentFilter{
		OrderBy:      models.OrderPendingOldest,
		PendingAfter: &models.PendingCursor{Since: *first[0].PendingSince, ID: first[0].ID},
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Greater(t, rest[0].ID, first[0].ID)
	assert.True(t, rest[1].PendingSince.Equal(later))
}

func TestMemoryConfigStore_SaveKeepsID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConfigStore()

	_, err := s.GetByOwner(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotFound)

	first := &models.PipelineConfiguration{OwnerID: "acme", Name: "one"}
	require.NoError(t, s.Save(ctx, first))
	second := &models.PipelineConfiguration{OwnerID: "acme", Name: "two"}
	require.NoError(t, s.Save(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := s.GetByOwner(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Name)
}

func TestMemoryConfigStore_RecordRunKeepsSettings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConfigStore()
	assert.ErrorIs(t, s.RecordRun(ctx, "acme", 1, 1, true), ErrNotFound)

	stale := &models.PipelineConfiguration{OwnerID: "acme", Name: "one"}
	require.NoError(t, s.Save(ctx, stale))
	require.NoError(t, s.Save(ctx, &models.PipelineConfiguration{OwnerID: "acme", Name: "edited"}))
	require.NoError(t, s.RecordRun(ctx, "acme", 0.2, 1000, true))
	require.NoError(t, s.RecordRun(ctx, "acme", 0.4, 3000, false))

	got, err := s.GetByOwner(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Name)
	assert.Equal(t, 2, got.RunCount)
	assert.InDelta(t, 0.3, got.AvgCostUSD, 1e-9)
	assert.InDelta(t, 0.5, got.SuccessRate, 1e-9)

	// Save aus einem alten Snapshot setzt die Statistik nicht zurück
	stale.Name = "renamed"
	require.NoError(t, s.Save(ctx, stale))
	got, err = s.GetByOwner(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 2, got.RunCount)
}

func TestMemoryQuoteStore_ListActive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryQuoteStore(models.Quote{ID: 1, Text: "a", Active: true}, models.Quote{ID: 2, Text: "b"})
	require.NoError(t, s.Create(ctx, &models.Quote{Text: "c", Active: true}))

	quotes, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "c", quotes[1].Text)
}
