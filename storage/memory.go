package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"content-hand/models"
)

// MemoryContentStore ist ein prozesslokaler ContentStore für Tests und STORAGE_DRIVER=memory.
// Bedingte Updates laufen unter demselben Lock wie die Statusprüfung.
type MemoryContentStore struct {
	mu     sync.Mutex
	items  map[uint]models.ContentItem
	nextID uint
	now    func() time.Time
}

// NewMemoryContentStore erstellt einen leeren Store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{items: map[uint]models.ContentItem{}, nextID: 1, now: time.Now}
}

func (s *MemoryContentStore) Create(_ context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.nextID
	}
	if item.ID >= s.nextID {
		s.nextID = item.ID + 1
	}
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.StatusDraft
	}
	s.items[item.ID] = cloneItem(*item)
	return nil
}

func (s *MemoryContentStore) Get(_ context.Context, id uint) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneItem(item)
	return &out, nil
}

func (s *MemoryContentStore) Find(_ context.Context, f models.ContentFilter) ([]models.ContentItem, error) {
	s.mu.Lock()
	var out []models.ContentItem
	for _, item := range s.items {
		if matchesFilter(item, f) {
			out = append(out, cloneItem(item))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch f.OrderBy {
		case models.OrderPendingOldest:
			if !timeEq(a.PendingSince, b.PendingSince) {
				return timeLess(a.PendingSince, b.PendingSince)
			}
		case models.OrderPriority:
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case models.OrderScheduledAt:
			if !timeEq(a.ScheduledAt, b.ScheduledAt) {
				return timeLess(a.ScheduledAt, b.ScheduledAt)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryContentStore) Update(_ context.Context, id uint, patch models.ContentPatch) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.apply(item, patch), nil
}

func (s *MemoryContentStore) UpdateIfStatus(_ context.Context, id uint, expected []models.ContentStatus, patch models.ContentPatch) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !slices.Contains(expected, item.Status) {
		return nil, ErrStatusConflict
	}
	return s.apply(item, patch), nil
}

func (s *MemoryContentStore) CountScheduledBetween(_ context.Context, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		if item.ScheduledAt == nil || !slices.Contains(scheduledStatuses, item.Status) {
			continue
		}
		if !item.ScheduledAt.Before(from) && item.ScheduledAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// apply erwartet, dass s.mu gehalten wird.
func (s *MemoryContentStore) apply(item models.ContentItem, patch models.ContentPatch) *models.ContentItem {
	patch.Apply(&item)
	item.UpdatedAt = s.now()
	s.items[item.ID] = cloneItem(item)
	out := cloneItem(item)
	return &out
}

func matchesFilter(item models.ContentItem, f models.ContentFilter) bool {
	if f.OwnerID != "" && item.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, item.Status) {
		return false
	}
	if f.PendingBefore != nil && (item.PendingSince == nil || item.PendingSince.After(*f.PendingBefore)) {
		return false
	}
	if c := f.PendingAfter; c != nil {
		if item.PendingSince == nil || item.PendingSince.Before(c.Since) ||
			(item.PendingSince.Equal(c.Since) && item.ID <= c.ID) {
			return false
		}
	}
	if f.Unscheduled && item.ScheduledAt != nil {
		return false
	}
	if f.ScheduledFrom != nil && (item.ScheduledAt == nil || item.ScheduledAt.Before(*f.ScheduledFrom)) {
		return false
	}
	if f.ScheduledUntil != nil && (item.ScheduledAt == nil || !item.ScheduledAt.Before(*f.ScheduledUntil)) {
		return false
	}
	return true
}

func cloneItem(in models.ContentItem) models.ContentItem {
	out := in
	out.PendingSince = cloneTime(in.PendingSince)
	out.ScheduledAt = cloneTime(in.ScheduledAt)
	out.PublishedAt = cloneTime(in.PublishedAt)
	out.ApprovedAt = cloneTime(in.ApprovedAt)
	out.AutoApprovedAt = cloneTime(in.AutoApprovedAt)
	out.TargetKeywords = slices.Clone(in.TargetKeywords)
	out.ValidationErrors = slices.Clone(in.ValidationErrors)
	out.ValidationWarnings = slices.Clone(in.ValidationWarnings)
	out.ModelsUsed = slices.Clone(in.ModelsUsed)
	if in.PipelineConfigID != nil {
		id := *in.PipelineConfigID
		out.PipelineConfigID = &id
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func timeEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// nil sortiert ans Ende.
func timeLess(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.Before(*b)
}

// MemoryConfigStore hält PipelineConfigurations im Speicher.
type MemoryConfigStore struct {
	mu      sync.Mutex
	configs map[string]models.PipelineConfiguration
	nextID  uint
}

// NewMemoryConfigStore erstellt einen leeren Store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: map[string]models.PipelineConfiguration{}, nextID: 1}
}

func (s *MemoryConfigStore) GetByOwner(_ context.Context, ownerID string) (*models.PipelineConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (s *MemoryConfigStore) Save(_ context.Context, cfg *models.PipelineConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.configs[cfg.OwnerID]; ok {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.RunCount = existing.RunCount
		cfg.AvgCostUSD = existing.AvgCostUSD
		cfg.AvgTimeMS = existing.AvgTimeMS
		cfg.SuccessRate = existing.SuccessRate
	}
	if cfg.ID == 0 {
		cfg.ID = s.nextID
		s.nextID++
		cfg.CreatedAt = time.Now()
	}
	cfg.UpdatedAt = time.Now()
	s.configs[cfg.OwnerID] = *cfg
	return nil
}

func (s *MemoryConfigStore) RecordRun(_ context.Context, ownerID string, costUSD float64, timeMS int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[ownerID]
	if !ok {
		return ErrNotFound
	}
	cfg.RecordRun(costUSD, timeMS, success)
	cfg.UpdatedAt = time.Now()
	s.configs[ownerID] = cfg
	return nil
}

// MemoryQuoteStore hält kuratierte Zitate im Speicher.
type MemoryQuoteStore struct {
	mu     sync.Mutex
	quotes []models.Quote
}

// NewMemoryQuoteStore erstellt einen Store mit den übergebenen Zitaten.
func NewMemoryQuoteStore(quotes ...models.Quote) *MemoryQuoteStore {
	return &MemoryQuoteStore{quotes: quotes}
}

func (s *MemoryQuoteStore) ListActive(_ context.Context) ([]models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Quote
	for _, q := range s.quotes {
		if q.Active {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *MemoryQuoteStore) Create(_ context.Context, q *models.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.ID = uint(len(s.quotes) + 1)
	q.CreatedAt = time.Now()
	s.quotes = append(s.quotes, *q)
	return nil
}
