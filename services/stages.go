package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"content-hand/models"
	"content-hand/providers"
)

// Stage-Namen, wie sie in den Metadaten erscheinen.
const (
	StageTopicSelection = "topic_selection"
	StageDraft          = "draft_generation"
	StageVerification   = "verification"
	StageEnhancement    = "enhancement"
	StagePostProcessing = "post_processing"
)

const metaCandidateLen = 160

// ErrNoGenerator bricht den Lauf ab: ohne Generator gibt es keinen Entwurf.
var ErrNoGenerator = errors.New("no generation model enabled")

// Draft ist der Inhalt, der durch die Stufen gereicht wird.
type Draft struct {
	RunID            string              `json:"run_id"`
	Input            models.TopicInput   `json:"input"`
	Source           models.TopicSource  `json:"source"`
	Topic            string              `json:"topic"`
	Keywords         []string            `json:"keywords"`
	ContentType      string              `json:"content_type"`
	Title            string              `json:"title"`
	Body             string              `json:"body"`
	MetaDescription  string              `json:"meta_description"`
	FeaturedImageURL string              `json:"featured_image_url,omitempty"`
	Verification     *VerificationResult `json:"verification,omitempty"`
	Readability      *ReadabilityStats   `json:"readability,omitempty"`
	LinkIssues       []string            `json:"link_issues,omitempty"`
	Notes            []string            `json:"notes,omitempty"`
}

// StageDeps sind die externen Fähigkeiten, die Stufen nutzen dürfen.
type StageDeps struct {
	Models     ModelInvoker
	Quotes     QuoteStore
	Images     providers.ImageGenerator
	ImageStore ImageStore
	Links      *LinkTransformer
	Logger     *zap.Logger
	Rand       func() float64
}

type stageReport struct {
	status StepStatus
	model  string
	usage  providers.Usage
	facts  map[string]any
	err    error
}

func completed(facts map[string]any) stageReport {
	return stageReport{status: StepCompleted, facts: facts}
}

// Stage ist eine Stufe der Generation Engine. Die Menge der Varianten ist
// geschlossen: nur die Typen dieses Pakets implementieren run.
type Stage interface {
	Name() string
	// run liefert den neuen Entwurf und den Bericht. Ein error ist fatal und
	// beendet den Lauf; behebbare Fehler stehen in stageReport.err.
	run(ctx context.Context, deps *StageDeps, in Draft) (Draft, stageReport, error)
}

// Plan übersetzt Einstellungen in die geordnete Liste aktiver Stufen.
func Plan(s models.PipelineSettings) []Stage {
	plan := []Stage{
		TopicSelectionStage{Weights: s.TopicWeights},
		DraftStage{Settings: s.Generation, ContentType: s.ContentType},
	}
	if s.Verification.Enabled {
		plan = append(plan, VerificationStage{Settings: s.Verification})
	}
	if s.Enhancement.Enabled() {
		plan = append(plan, EnhancementStage{Settings: s.Enhancement})
	}
	if s.PostProcessing.Enabled() {
		plan = append(plan, PostProcessingStage{Settings: s.PostProcessing})
	}
	return plan
}

// TopicSelectionStage wählt die Themenquelle anhand der Gewichte.
type TopicSelectionStage struct {
	Weights models.TopicWeights
}

func (TopicSelectionStage) Name() string { return StageTopicSelection }

func (s TopicSelectionStage) run(_ context.Context, deps *StageDeps, d Draft) (Draft, stageReport, error) {
	var candidates []models.TopicSource
	for _, src := range []models.TopicSource{models.TopicKeyword, models.TopicQuestion, models.TopicTrend} {
		if strings.TrimSpace(d.Input.Payload(src)) != "" {
			candidates = append(candidates, src)
		}
	}

	chosen, reason := models.TopicSource(""), "none"
	switch {
	case d.Input.Source != "" && strings.TrimSpace(d.Input.Payload(d.Input.Source)) != "":
		chosen, reason = d.Input.Source, "explicit"
	case len(candidates) == 1:
		chosen, reason = candidates[0], "only_candidate"
	case len(candidates) > 1:
		chosen, reason = s.pick(candidates, deps.Rand), "weighted"
	}

	d.Source = chosen
	d.Topic = strings.TrimSpace(d.Input.Payload(chosen))
	d.Keywords = append([]string(nil), d.Input.Keywords...)
	if len(d.Keywords) == 0 && chosen == models.TopicKeyword {
		d.Keywords = []string{d.Topic}
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = string(c)
	}
	return d, completed(map[string]any{
		"source":     string(chosen),
		"topic":      d.Topic,
		"candidates": names,
		"reason":     reason,
	}), nil
}

func (s TopicSelectionStage) pick(candidates []models.TopicSource, rnd func() float64) models.TopicSource {
	weight := func(src models.TopicSource) float64 {
		switch src {
		case models.TopicKeyword:
			return s.Weights.Keyword
		case models.TopicQuestion:
			return s.Weights.Question
		case models.TopicTrend:
			return s.Weights.Trend
		}
		return 0
	}
	total := 0.0
	for _, c := range candidates {
		total += max(weight(c), 0)
	}
	if total <= 0 || rnd == nil {
		return candidates[0]
	}
	r := rnd() * total
	for _, c := range candidates {
		w := max(weight(c), 0)
		if r < w {
			return c
		}
		r -= w
	}
	return candidates[len(candidates)-1]
}

// DraftStage erzeugt den Rohentwurf mit dem primären Generator.
type DraftStage struct {
	Settings    models.ModelSettings
	ContentType string
}

func (DraftStage) Name() string { return StageDraft }

func (s DraftStage) run(ctx context.Context, deps *StageDeps, d Draft) (Draft, stageReport, error) {
	if !s.Settings.Enabled {
		return d, stageReport{}, fmt.Errorf("%w: generation is disabled", ErrNoGenerator)
	}
	if deps.Models == nil || !deps.Models.Has(s.Settings.Provider) {
		return d, stageReport{}, fmt.Errorf("%w: provider %q is not available", ErrNoGenerator, s.Settings.Provider)
	}
	d.ContentType = s.ContentType
	if d.ContentType == "" {
		d.ContentType = models.ContentTypeNewArticle
	}

	resp, err := deps.Models.Invoke(ctx, s.Settings.Provider, providers.InvokeRequest{
		Prompt:       draftPrompt(d),
		SystemPrompt: draftSystemPrompt,
		Model:        s.Settings.Model,
		Temperature:  s.Settings.Temperature,
		MaxTokens:    s.Settings.MaxTokens,
	})
	if err != nil {
		return d, stageReport{status: StepFailed, model: s.Settings.Model, err: fmt.Errorf("draft generation: %w", err)}, nil
	}

	d.Body = stripCodeFence(resp.Content)
	d.Title = extractTitle(d.Body, d.Topic)
	lead := FirstParagraphText(d.Body)
	if lead == "" {
		lead = PlainText(d.Body)
	}
	d.MetaDescription = FirstSentence(lead, metaCandidateLen)

	return d, stageReport{
		status: StepCompleted,
		model:  resp.Model,
		usage:  resp.Usage,
		facts: map[string]any{
			"word_count": CountWords(d.Body),
			"title":      d.Title,
		},
	}, nil
}

// VerificationResult ist das strukturierte Urteil des Prüfmodells.
type VerificationResult struct {
	FactsCorrect bool       `json:"facts_correct"`
	Corrections  []string   `json:"corrections"`
	Citations    []Citation `json:"citations"`
	Confidence   float64    `json:"confidence"`
	Parsed       bool       `json:"parsed"`
}

// Citation ist eine vom Prüfmodell genannte Quelle.
type Citation struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Publisher string `json:"publisher,omitempty"`
}

// VerificationStage lässt den Entwurf von einem zweiten Modell prüfen.
type VerificationStage struct {
	Settings models.ModelSettings
}

func (VerificationStage) Name() string { return StageVerification }

func (s VerificationStage) run(ctx context.Context, deps *StageDeps, d Draft) (Draft, stageReport, error) {
	if strings.TrimSpace(d.Body) == "" {
		return d, stageReport{status: StepSkipped, facts: map[string]any{"reason": "empty draft"}}, nil
	}
	if deps.Models == nil || !deps.Models.Has(s.Settings.Provider) {
		return d, stageReport{status: StepFailed, err: fmt.Errorf("verification provider %q is not available", s.Settings.Provider)}, nil
	}

	resp, err := deps.Models.Invoke(ctx, s.Settings.Provider, providers.InvokeRequest{
		Prompt:         verificationPrompt(d),
		SystemPrompt:   verificationSystemPrompt,
		Model:          s.Settings.Model,
		Temperature:    s.Settings.Temperature,
		MaxTokens:      s.Settings.MaxTokens,
		ResponseSchema: verificationSchema,
	})
	if err != nil {
		return d, stageReport{status: StepFailed, model: s.Settings.Model, err: fmt.Errorf("verification: %w", err)}, nil
	}

	result := ParseVerification(resp.Content)
	d.Verification = &result
	for _, c := range result.Corrections {
		d.Notes = append(d.Notes, "verification: "+c)
	}

	return d, stageReport{
		status: StepCompleted,
		model:  resp.Model,
		usage:  resp.Usage,
		facts: map[string]any{
			"facts_correct": result.FactsCorrect,
			"confidence":    result.Confidence,
			"corrections":   len(result.Corrections),
			"citations":     len(result.Citations),
			"parsed":        result.Parsed,
		},
	}, nil
}

// ParseVerification liest das Modellurteil. Ungültiges JSON ergibt ein
// Default-Ergebnis mit Parsed=false; fehlende Felder bleiben auf Defaults.
func ParseVerification(content string) VerificationResult {
	var raw struct {
		FactsCorrect *bool            `json:"facts_correct"`
		Corrections  []json.RawMessage `json:"corrections"`
		Citations    []json.RawMessage `json:"citations"`
		Confidence   *float64         `json:"confidence"`
	}
	if !decodeJSONObject(content, &raw) {
		return VerificationResult{Corrections: []string{}, Citations: []Citation{}}
	}

	res := VerificationResult{Parsed: true, Corrections: []string{}, Citations: []Citation{}}
	if raw.FactsCorrect != nil {
		res.FactsCorrect = *raw.FactsCorrect
	}
	if raw.Confidence != nil {
		res.Confidence = min(max(*raw.Confidence, 0), 1)
	}
	for _, c := range raw.Corrections {
		var s string
		if json.Unmarshal(c, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				res.Corrections = append(res.Corrections, s)
			}
			continue
		}
		var obj map[string]any
		if json.Unmarshal(c, &obj) == nil {
			res.Corrections = append(res.Corrections, string(c))
		}
	}
	for _, c := range raw.Citations {
		var s string
		if json.Unmarshal(c, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				res.Citations = append(res.Citations, Citation{URL: s})
			}
			continue
		}
		var cit Citation
		if json.Unmarshal(c, &cit) == nil && cit.URL != "" {
			res.Citations = append(res.Citations, cit)
		}
	}
	return res
}

// decodeJSONObject versucht erst den ganzen Text, dann den äußersten {...}-Block.
func decodeJSONObject(content string, out any) bool {
	content = strings.TrimSpace(stripCodeFence(content))
	if json.Unmarshal([]byte(content), out) == nil {
		return true
	}
	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(content[start:end+1]), out) == nil
}

// PostProcessingStage wandelt Links um und führt Lesbarkeits- und Stilprüfung aus.
type PostProcessingStage struct {
	Settings models.PostProcessingSettings
}

func (PostProcessingStage) Name() string { return StagePostProcessing }

func (s PostProcessingStage) run(_ context.Context, deps *StageDeps, d Draft) (Draft, stageReport, error) {
	if strings.TrimSpace(d.Body) == "" {
		return d, stageReport{status: StepSkipped, facts: map[string]any{"reason": "empty draft"}}, nil
	}
	facts := map[string]any{}
	if s.Settings.TransformLinks {
		if deps.Links == nil {
			return d, stageReport{status: StepFailed, err: errors.New("link transformer not configured")}, nil
		}
		res := deps.Links.Transform(d.Body)
		d.Body = res.Body
		d.LinkIssues = res.Issues
		facts["transformation_counts"] = res.Counts
		facts["link_issues"] = len(res.Issues)
	}
	if s.Settings.StyleVariation {
		body, removed := StyleVariation(d.Body)
		d.Body = body
		facts["duplicate_words_removed"] = removed
	}
	if s.Settings.Readability {
		stats := Readability(d.Body)
		d.Readability = &stats
		facts["readability"] = stats
	}
	return d, completed(facts), nil
}

var (
	codeFenceRE     = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n(.*?)\\n?```\\s*$")
	markdownTitleRE = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

func stripCodeFence(s string) string {
	if m := codeFenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// extractTitle nimmt die erste h1, dann eine Markdown-Überschrift, zuletzt das Thema.
func extractTitle(body, topic string) string {
	if t := FirstHeadingText(body); t != "" {
		return t
	}
	if m := markdownTitleRE.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	r := []rune(strings.TrimSpace(topic))
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
