package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/datatypes"
)

// TopicWeights gewichten die möglichen Themenquellen bei der Themenauswahl.
type TopicWeights struct {
	Keyword  float64 `json:"keyword" yaml:"keyword"`
	Question float64 `json:"question" yaml:"question"`
	Trend    float64 `json:"trend" yaml:"trend"`
}

// ModelSettings beschreibt einen Modellaufruf einer Pipeline-Stufe.
type ModelSettings struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

func (m ModelSettings) Validate() error {
	if !m.Enabled {
		return nil
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.Provider, validation.Required),
		validation.Field(&m.Model, validation.Required),
		validation.Field(&m.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&m.MaxTokens, validation.Min(0)),
	)
}

// LinkTarget ist ein interner Link, den die Enhancement-Stufe setzen darf.
type LinkTarget struct {
	URL    string `json:"url" yaml:"url"`
	Anchor string `json:"anchor" yaml:"anchor"`
}

func (l LinkTarget) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.URL, validation.Required),
		validation.Field(&l.Anchor, validation.Required),
	)
}

// EnhancementSettings schalten die einzelnen Enhancement-Schritte.
type EnhancementSettings struct {
	SEO              bool         `json:"seo" yaml:"seo"`
	InternalLinks    bool         `json:"internal_links" yaml:"internal_links"`
	MinInternalLinks int          `json:"min_internal_links" yaml:"min_internal_links"`
	MaxInternalLinks int          `json:"max_internal_links" yaml:"max_internal_links"`
	InternalTargets  []LinkTarget `json:"internal_targets" yaml:"internal_targets"`
	Citations        bool         `json:"citations" yaml:"citations"`
	Quotes           bool         `json:"quotes" yaml:"quotes"`
	Image            bool         `json:"image" yaml:"image"`
	ImageModel       string       `json:"image_model" yaml:"image_model"`
}

// Enabled meldet, ob mindestens ein Schritt aktiv ist.
func (e EnhancementSettings) Enabled() bool {
	return e.SEO || e.InternalLinks || e.Citations || e.Quotes || e.Image
}

func (e EnhancementSettings) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.MinInternalLinks, validation.Min(0)),
		validation.Field(&e.MaxInternalLinks, validation.Min(e.MinInternalLinks)),
		validation.Field(&e.InternalTargets),
	)
}

// PostProcessingSettings steuern die Nachbearbeitung.
type PostProcessingSettings struct {
	TransformLinks bool `json:"transform_links" yaml:"transform_links"`
	Readability    bool `json:"readability" yaml:"readability"`
	StyleVariation bool `json:"style_variation" yaml:"style_variation"`
}

// Enabled meldet, ob die Nachbearbeitung überhaupt läuft.
func (p PostProcessingSettings) Enabled() bool {
	return p.TransformLinks || p.Readability || p.StyleVariation
}

// PipelineSettings ist der Snapshot, mit dem ein Lauf der Generation Engine arbeitet.
type PipelineSettings struct {
	ContentType    string                 `json:"content_type" yaml:"content_type"`
	TopicWeights   TopicWeights           `json:"topic_weights" yaml:"topic_weights"`
	Generation     ModelSettings          `json:"generation" yaml:"generation"`
	Verification   ModelSettings          `json:"verification" yaml:"verification"`
	Enhancement    EnhancementSettings    `json:"enhancement" yaml:"enhancement"`
	PostProcessing PostProcessingSettings `json:"post_processing" yaml:"post_processing"`
}

// Validate prüft die Einstellungen. Ein fehlender Generator ist hier bewusst erlaubt,
// die Engine bricht in diesem Fall den Lauf ab.
func (s PipelineSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ContentType, validation.In(ContentTypeNewArticle, ContentTypeRefresh)),
		validation.Field(&s.Generation),
		validation.Field(&s.Verification),
		validation.Field(&s.Enhancement),
	)
}

// PipelineConfiguration ist die gespeicherte Konfiguration eines Owners samt rollierender Kennzahlen.
type PipelineConfiguration struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID  string                                `json:"owner_id" gorm:"uniqueIndex;not null"`
	Name     string                                `json:"name"`
	Settings datatypes.JSONType[PipelineSettings] `json:"settings" gorm:"type:jsonb"`

	// Rollierende Kennzahlen
	RunCount    int     `json:"run_count" gorm:"default:0"`
	AvgCostUSD  float64 `json:"avg_cost_usd"`
	AvgTimeMS   float64 `json:"avg_time_ms"`
	SuccessRate float64 `json:"success_rate"`
}

// TableName gibt explizit den Tabellennamen an.
func (PipelineConfiguration) TableName() string {
	return "pipeline_configurations"
}

// RecordRun aktualisiert die rollierenden Durchschnitte nach einem Lauf.
func (p *PipelineConfiguration) RecordRun(costUSD float64, timeMS int64, success bool) {
	n := float64(p.RunCount)
	p.AvgCostUSD = (p.AvgCostUSD*n + costUSD) / (n + 1)
	p.AvgTimeMS = (p.AvgTimeMS*n + float64(timeMS)) / (n + 1)
	ok := 0.0
	if success {
		ok = 1.0
	}
	p.SuccessRate = (p.SuccessRate*n + ok) / (n + 1)
	p.RunCount++
}

// TopicSource ist die Quelle eines Themas.
type TopicSource string

const (
	TopicKeyword  TopicSource = "keyword"
	TopicQuestion TopicSource = "question"
	TopicTrend    TopicSource = "trend"
)

// TopicInput ist die Eingabe eines Pipeline-Laufs. Mehrere Quellen dürfen gesetzt sein,
// die Themenauswahl entscheidet dann anhand der Gewichte.
type TopicInput struct {
	Source   TopicSource `json:"source"`
	Keyword  string      `json:"keyword,omitempty"`
	Question string      `json:"question,omitempty"`
	Trend    string      `json:"trend,omitempty"`
	Keywords []string    `json:"keywords,omitempty"`
	Priority int         `json:"priority,omitempty"`
}

// Payload liefert den Text zur Quelle.
func (t TopicInput) Payload(src TopicSource) string {
	switch src {
	case TopicKeyword:
		return t.Keyword
	case TopicQuestion:
		return t.Question
	case TopicTrend:
		return t.Trend
	}
	return ""
}

func (t TopicInput) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Source, validation.In(TopicKeyword, TopicQuestion, TopicTrend)),
		validation.Field(&t.Keyword, validation.Required.When(t.Question == "" && t.Trend == "").Error("one of keyword, question or trend is required")),
		validation.Field(&t.Keywords, validation.Each(validation.Required, validation.Length(1, 120))),
	)
}
