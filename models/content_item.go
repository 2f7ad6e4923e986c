package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ContentStatus beschreibt den Lebenszyklus eines ContentItems.
type ContentStatus string

const (
	StatusDraft         ContentStatus = "draft"
	StatusPendingReview ContentStatus = "pending_review"
	StatusApproved      ContentStatus = "approved"
	StatusScheduled     ContentStatus = "scheduled"
	StatusPublished     ContentStatus = "published"
	StatusDeleted       ContentStatus = "deleted"
)

// Valid prüft, ob der Status bekannt ist.
func (s ContentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusScheduled, StatusPublished, StatusDeleted:
		return true
	}
	return false
}

// Deletable gibt an, ob ein Item in diesem Status noch soft-gelöscht werden darf.
func (s ContentStatus) Deletable() bool {
	return s != StatusPublished && s != StatusDeleted
}

// Content-Typen, die der Structural Validator unterscheidet.
const (
	ContentTypeNewArticle = "new_article"
	ContentTypeRefresh    = "refresh"
)

// ContentItem ist die Arbeitseinheit der Pipeline: ein Artikel vom Entwurf bis zur Veröffentlichung.
type ContentItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID     string `json:"owner_id" gorm:"index;not null"`
	ContentType string `json:"content_type" gorm:"default:'new_article'"`

	// Content-Daten
	Title            string `json:"title" gorm:"not null"`
	Body             string `json:"body" gorm:"type:text"`
	MetaDescription  string `json:"meta_description,omitempty"`
	FeaturedImageURL string `json:"featured_image_url,omitempty"`
	WordCount        int    `json:"word_count"`

	// Content Management
	Status       ContentStatus `json:"status" gorm:"type:varchar(32);index;default:'draft'"`
	PendingSince *time.Time    `json:"pending_since,omitempty" gorm:"index"`
	Priority     int           `json:"priority" gorm:"default:0;index"`
	ScheduledAt  *time.Time    `json:"scheduled_at,omitempty" gorm:"index"`
	PublishedAt  *time.Time    `json:"published_at,omitempty"`
	ApprovedAt   *time.Time    `json:"approved_at,omitempty"`
	ApprovedBy   string        `json:"approved_by,omitempty"`

	// SEO
	TargetKeywords datatypes.JSONSlice[string] `json:"target_keywords" gorm:"type:jsonb"`

	// Validierung und Auto-Approval
	ValidationNotes    string                      `json:"validation_notes,omitempty" gorm:"type:text"`
	ValidationErrors   datatypes.JSONSlice[string] `json:"validation_errors" gorm:"type:jsonb"`
	ValidationWarnings datatypes.JSONSlice[string] `json:"validation_warnings" gorm:"type:jsonb"`
	AutoApproved       bool                        `json:"auto_approved" gorm:"default:false"`
	AutoApprovedAt     *time.Time                  `json:"auto_approved_at,omitempty"`
	AutoApprovalReason string                      `json:"auto_approval_reason,omitempty"`

	// Herkunft und Generierungs-Kennzahlen
	PipelineConfigID  *uint                       `json:"pipeline_config_id,omitempty"`
	TopicSource       string                      `json:"topic_source,omitempty"`
	Topic             string                      `json:"topic,omitempty"`
	GenerationCostUSD float64                     `json:"generation_cost_usd"`
	GenerationTimeMS  int64                       `json:"generation_time_ms"`
	ModelsUsed        datatypes.JSONSlice[string] `json:"models_used" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (ContentItem) TableName() string {
	return "content_items"
}

// ContentPatch beschreibt eine partielle Änderung an einem ContentItem.
// Nil-Felder bleiben unverändert; AppendNote wird an ValidationNotes angehängt.
type ContentPatch struct {
	Title              *string
	Body               *string
	MetaDescription    *string
	FeaturedImageURL   *string
	WordCount          *int
	Status             *ContentStatus
	PendingSince       *time.Time
	Priority           *int
	ScheduledAt        *time.Time
	PublishedAt        *time.Time
	ApprovedAt         *time.Time
	ApprovedBy         *string
	ValidationErrors   []string
	ValidationWarnings []string
	AutoApproved       *bool
	AutoApprovedAt     *time.Time
	AutoApprovalReason *string
	AppendNote         string
}

// Apply überträgt den Patch auf ein Item im Speicher.
func (p ContentPatch) Apply(item *ContentItem) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Body != nil {
		item.Body = *p.Body
	}
	if p.MetaDescription != nil {
		item.MetaDescription = *p.MetaDescription
	}
	if p.FeaturedImageURL != nil {
		item.FeaturedImageURL = *p.FeaturedImageURL
	}
	if p.WordCount != nil {
		item.WordCount = *p.WordCount
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.PendingSince != nil {
		t := *p.PendingSince
		item.PendingSince = &t
	}
	if p.Priority != nil {
		item.Priority = *p.Priority
	}
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		item.ScheduledAt = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		item.PublishedAt = &t
	}
	if p.ApprovedAt != nil {
		t := *p.ApprovedAt
		item.ApprovedAt = &t
	}
	if p.ApprovedBy != nil {
		item.ApprovedBy = *p.ApprovedBy
	}
	if p.ValidationErrors != nil {
		item.ValidationErrors = append([]string(nil), p.ValidationErrors...)
	}
	if p.ValidationWarnings != nil {
		item.ValidationWarnings = append([]string(nil), p.ValidationWarnings...)
	}
	if p.AutoApproved != nil {
		item.AutoApproved = *p.AutoApproved
	}
	if p.AutoApprovedAt != nil {
		t := *p.AutoApprovedAt
		item.AutoApprovedAt = &t
	}
	if p.AutoApprovalReason != nil {
		item.AutoApprovalReason = *p.AutoApprovalReason
	}
	if p.AppendNote != "" {
		item.ValidationNotes = JoinNote(item.ValidationNotes, p.AppendNote)
	}
}

// JoinNote hängt eine Notiz zeilenweise an bestehende Notizen an.
func JoinNote(existing, note string) string {
	if strings.TrimSpace(existing) == "" {
		return note
	}
	return existing + "\n" + note
}

// ContentFilter schränkt Find-Abfragen ein. Leere Felder filtern nicht.
type ContentFilter struct {
	OwnerID        string
	Statuses       []ContentStatus
	PendingBefore  *time.Time
	PendingAfter   *PendingCursor
	Unscheduled    bool
	ScheduledFrom  *time.Time
	ScheduledUntil *time.Time
	OrderBy        string
	Limit          int
}

// PendingCursor setzt eine nach pending_since und id sortierte Liste hinter
// dem zuletzt gesehenen Item fort.
type PendingCursor struct {
	Since time.Time
	ID    uint
}

// Sortierungen für ContentFilter.OrderBy.
const (
	OrderNewestFirst   = "newest"
	OrderPendingOldest = "pending_oldest"
	OrderPriority      = "priority"
	OrderScheduledAt   = "scheduled_at"
)

// Ptr liefert einen Zeiger auf v. Hilfsfunktion für ContentPatch-Literale.
func Ptr[T any](v T) *T {
	return &v
}
