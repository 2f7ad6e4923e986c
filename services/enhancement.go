package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"content-hand/models"
	"content-hand/providers"
)

// enhancementStep ist ein Teilschritt der Anreicherung. Wie Stage ist die
// Menge der Varianten geschlossen.
type enhancementStep interface {
	name() string
	apply(ctx context.Context, deps *StageDeps, d Draft) (Draft, providers.Usage, map[string]any, error)
}

// EnhancementStage führt die aktivierten Teilschritte nacheinander aus. Ein
// fehlgeschlagener Teilschritt lässt den Entwurf unverändert.
type EnhancementStage struct {
	Settings models.EnhancementSettings
}

func (EnhancementStage) Name() string { return StageEnhancement }

func (s EnhancementStage) steps() []enhancementStep {
	var out []enhancementStep
	if s.Settings.SEO {
		out = append(out, seoStep{})
	}
	if s.Settings.InternalLinks {
		out = append(out, internalLinkStep{min: s.Settings.MinInternalLinks, max: s.Settings.MaxInternalLinks, targets: s.Settings.InternalTargets})
	}
	if s.Settings.Citations {
		out = append(out, citationStep{})
	}
	if s.Settings.Quotes {
		out = append(out, quoteStep{})
	}
	if s.Settings.Image {
		out = append(out, imageStep{model: s.Settings.ImageModel})
	}
	return out
}

func (s EnhancementStage) run(ctx context.Context, deps *StageDeps, d Draft) (Draft, stageReport, error) {
	if strings.TrimSpace(d.Body) == "" {
		return d, stageReport{status: StepSkipped, facts: map[string]any{"reason": "empty draft"}}, nil
	}

	rep := stageReport{status: StepCompleted, facts: map[string]any{}}
	applied, failed := []string{}, []string{}
	var errs []error
	for _, step := range s.steps() {
		out, usage, facts, err := step.apply(ctx, deps, d)
		// bezahlte Aufrufe zählen auch bei Fehlschlag
		rep.usage.PromptTokens += usage.PromptTokens
		rep.usage.CompletionTokens += usage.CompletionTokens
		rep.usage.TotalTokens += usage.TotalTokens
		rep.usage.EstimatedCostUSD += usage.EstimatedCostUSD
		if err != nil {
			failed = append(failed, step.name())
			errs = append(errs, fmt.Errorf("%s: %w", step.name(), err))
			if deps.Logger != nil {
				deps.Logger.Warn("Enhancement step failed", zap.String("step", step.name()), zap.Error(err))
			}
			continue
		}
		d = out
		applied = append(applied, step.name())
		for k, v := range facts {
			rep.facts[step.name()+"."+k] = v
		}
	}
	rep.facts["applied"] = applied
	rep.facts["failed"] = failed
	if len(errs) > 0 {
		rep.status = StepFailed
		rep.err = errors.Join(errs...)
	}
	if s.Settings.Image && !slices.Contains(failed, "image") {
		rep.model = s.Settings.ImageModel
	}
	return d, rep, nil
}

// seoStep kürzt die Meta-Beschreibung und ergänzt fehlende strukturierte Daten.
type seoStep struct{}

func (seoStep) name() string { return "seo" }

func (seoStep) apply(_ context.Context, _ *StageDeps, d Draft) (Draft, providers.Usage, map[string]any, error) {
	facts := map[string]any{}

	if strings.TrimSpace(d.MetaDescription) == "" {
		d.MetaDescription = FirstSentence(PlainText(d.Body), metaHardLimit)
	}
	if len([]rune(d.MetaDescription)) > metaHardLimit {
		d.MetaDescription = TruncateWords(d.MetaDescription, metaHardLimit)
	}

	text := strings.ToLower(PlainText(d.Body))
	words := max(len(strings.Fields(text)), 1)
	title, meta := strings.ToLower(d.Title), strings.ToLower(d.MetaDescription)
	coverage := map[string]keywordCoverage{}
	for _, kw := range d.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		coverage[kw] = keywordCoverage{
			InTitle: strings.Contains(title, kw),
			InMeta:  strings.Contains(meta, kw),
			Density: round2(float64(strings.Count(text, kw)) * 100 / float64(words)),
		}
	}
	facts["keyword_coverage"] = coverage

	if sd := InspectStructuredData(d.Body); !sd.Present {
		block, err := articleJSONLD(d)
		if err != nil {
			return d, providers.Usage{}, nil, err
		}
		d.Body = strings.TrimRight(d.Body, "\n") + "\n" + block + "\n"
		facts["structured_data_added"] = true
	} else {
		facts["structured_data_added"] = false
	}
	return d, providers.Usage{}, facts, nil
}

type keywordCoverage struct {
	InTitle bool    `json:"in_title"`
	InMeta  bool    `json:"in_meta"`
	Density float64 `json:"density_pct"`
}

func articleJSONLD(d Draft) (string, error) {
	doc := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "Article",
		"headline":    d.Title,
		"description": d.MetaDescription,
	}
	if len(d.Keywords) > 0 {
		doc["keywords"] = strings.Join(d.Keywords, ", ")
	}
	if d.FeaturedImageURL != "" {
		doc["image"] = d.FeaturedImageURL
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return `<script type="application/ld+json">` + string(raw) + `</script>`, nil
}

// internalLinkStep verlinkt Ankertexte auf eigene Seiten, bis das Minimum
// erreicht ist, nie über das Maximum hinaus.
type internalLinkStep struct {
	min, max int
	targets  []models.LinkTarget
}

func (internalLinkStep) name() string { return "internal_links" }

func (s internalLinkStep) apply(_ context.Context, deps *StageDeps, d Draft) (Draft, providers.Usage, map[string]any, error) {
	if deps.Links == nil {
		return d, providers.Usage{}, nil, errors.New("link transformer not configured")
	}
	existing := countInternalLinks(d.Body, deps.Links)
	added := []string{}
	count := existing
	for _, t := range s.targets {
		if count >= s.min || count >= s.max {
			break
		}
		if t.URL == "" || t.Anchor == "" || alreadyLinked(d.Body, t.URL) {
			continue
		}
		if body, ok := insertLink(d.Body, t.Anchor, t.URL); ok {
			d.Body = body
			count++
			added = append(added, t.URL)
		}
	}
	return d, providers.Usage{}, map[string]any{
		"existing": existing,
		"added":    added,
		"total":    count,
	}, nil
}

func countInternalLinks(body string, lt *LinkTransformer) int {
	n := CountShortcodes(body).Open[LinkInternal]
	for _, rec := range lt.Scan(body) {
		if rec.Class == LinkInternal {
			n++
		}
	}
	return n
}

func alreadyLinked(body, href string) bool {
	return strings.Contains(body, `href="`+href+`"`) || strings.Contains(body, `url="`+href+`"`)
}

var (
	blockedOpenRE  = regexp.MustCompile(`(?i)^<(a|h[1-6]|script|style|blockquote|figcaption)\b`)
	blockedCloseRE = regexp.MustCompile(`(?i)^</(a|h[1-6]|script|style|blockquote|figcaption)\s*>`)
	textOpenRE     = regexp.MustCompile(`(?i)^<(p|li)\b`)
	textCloseRE    = regexp.MustCompile(`(?i)^</(p|li)\s*>`)
	linkOpenRE     = regexp.MustCompile(`^\[(internal|affiliate|external)_link\b`)
	linkCloseRE    = regexp.MustCompile(`^\[/(internal|affiliate|external)_link\]`)
)

// insertLink verlinkt das erste Vorkommen von phrase im Fließtext eines
// Absatzes oder Listenpunkts. Überschriften, Links und Skripte bleiben unberührt.
func insertLink(body, phrase, href string) (string, bool) {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
	if err != nil {
		return body, false
	}
	blocked, inText := 0, 0
	last := 0
	try := func(start, end int) (string, bool) {
		if blocked > 0 || inText == 0 {
			return "", false
		}
		loc := re.FindStringIndex(body[start:end])
		if loc == nil {
			return "", false
		}
		a, b := start+loc[0], start+loc[1]
		return body[:a] + `<a href="` + html.EscapeString(href) + `">` + body[a:b] + `</a>` + body[b:], true
	}
	for _, tok := range markupTokenRE.FindAllStringIndex(body, -1) {
		if out, ok := try(last, tok[0]); ok {
			return out, true
		}
		t := body[tok[0]:tok[1]]
		switch {
		case blockedOpenRE.MatchString(t), linkOpenRE.MatchString(t):
			blocked++
		case blockedCloseRE.MatchString(t), linkCloseRE.MatchString(t):
			blocked = max(blocked-1, 0)
		case textOpenRE.MatchString(t):
			inText++
		case textCloseRE.MatchString(t):
			inText = max(inText-1, 0)
		}
		last = tok[1]
	}
	if out, ok := try(last, len(body)); ok {
		return out, true
	}
	return body, false
}

// citationStep hängt die vom Prüfmodell genannten Quellen als Quellenabschnitt an.
type citationStep struct{}

func (citationStep) name() string { return "citations" }

func (citationStep) apply(_ context.Context, _ *StageDeps, d Draft) (Draft, providers.Usage, map[string]any, error) {
	if d.Verification == nil || len(d.Verification.Citations) == 0 {
		return d, providers.Usage{}, map[string]any{"sources": 0}, nil
	}
	if strings.Contains(d.Body, `id="sources"`) {
		return d, providers.Usage{}, map[string]any{"sources": 0, "reason": "sources section present"}, nil
	}
	items := make([]SourceItem, 0, len(d.Verification.Citations))
	seen := map[string]bool{}
	for _, c := range d.Verification.Citations {
		if !validLinkURL(c.URL) || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		items = append(items, SourceItem{Number: len(items) + 1, URL: c.URL, Title: c.Title, Publisher: c.Publisher})
	}
	if len(items) == 0 {
		return d, providers.Usage{}, nil, errors.New("no usable citation urls")
	}
	ordered, warnings := BuildBibliography(PlainText(d.Body), items)
	d.Body = insertBeforeStructuredData(d.Body, RenderSourcesSection(ordered))
	return d, providers.Usage{}, map[string]any{"sources": len(ordered), "warnings": warnings}, nil
}

func validLinkURL(raw string) bool {
	return strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://")
}

var ldScriptRE = regexp.MustCompile(`(?i)<script\b[^>]*application/ld\+json`)

// insertBeforeStructuredData fügt Inhalt vor dem ersten JSON-LD-Block ein, sonst am Ende.
func insertBeforeStructuredData(body, section string) string {
	if loc := ldScriptRE.FindStringIndex(body); loc != nil {
		return body[:loc[0]] + strings.TrimLeft(section, "\n") + body[loc[0]:]
	}
	return strings.TrimRight(body, "\n") + section
}

// quoteStep setzt das passendste kuratierte Zitat hinter den ersten Absatz.
type quoteStep struct{}

func (quoteStep) name() string { return "quote" }

func (quoteStep) apply(ctx context.Context, deps *StageDeps, d Draft) (Draft, providers.Usage, map[string]any, error) {
	if deps.Quotes == nil {
		return d, providers.Usage{}, nil, errors.New("quote store not configured")
	}
	if strings.Contains(d.Body, `class="expert-quote"`) {
		return d, providers.Usage{}, map[string]any{"reason": "quote present"}, nil
	}
	quotes, err := deps.Quotes.ListActive(ctx)
	if err != nil {
		return d, providers.Usage{}, nil, err
	}
	q, score, ok := bestQuote(quotes, append([]string{d.Topic}, d.Keywords...))
	if !ok {
		return d, providers.Usage{}, map[string]any{"quote_id": 0}, nil
	}

	block := renderQuote(q)
	lower := strings.ToLower(d.Body)
	if i := strings.Index(lower, "</p>"); i >= 0 {
		d.Body = d.Body[:i+4] + "\n" + block + d.Body[i+4:]
	} else {
		d.Body = insertBeforeStructuredData(d.Body, "\n"+block+"\n")
	}
	return d, providers.Usage{}, map[string]any{"quote_id": q.ID, "score": score}, nil
}

// bestQuote wählt das Zitat mit den meisten Tag-Treffern, bei Gleichstand die kleinste ID.
func bestQuote(quotes []models.Quote, terms []string) (models.Quote, int, bool) {
	if len(quotes) == 0 {
		return models.Quote{}, 0, false
	}
	haystack := strings.ToLower(strings.Join(terms, " "))
	sorted := append([]models.Quote(nil), quotes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	best, bestScore := sorted[0], -1
	for _, q := range sorted {
		score := 0
		for _, tag := range q.Tags {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" && strings.Contains(haystack, tag) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = q, score
		}
	}
	return best, bestScore, true
}

func renderQuote(q models.Quote) string {
	cite := html.EscapeString(q.Author)
	if q.Role != "" {
		cite += ", " + html.EscapeString(q.Role)
	}
	return fmt.Sprintf(`<blockquote class="expert-quote"><p>%s</p><cite>%s</cite></blockquote>`,
		html.EscapeString(q.Text), cite)
}

// imageStep erzeugt ein Beitragsbild und legt es im Bucket ab.
type imageStep struct {
	model string
}

func (imageStep) name() string { return "image" }

func (s imageStep) apply(ctx context.Context, deps *StageDeps, d Draft) (Draft, providers.Usage, map[string]any, error) {
	if d.FeaturedImageURL != "" {
		return d, providers.Usage{}, map[string]any{"reason": "image present"}, nil
	}
	if deps.Images == nil || deps.ImageStore == nil {
		return d, providers.Usage{}, nil, errors.New("image generation not configured")
	}
	data, usage, err := deps.Images.GenerateImage(ctx, imagePrompt(d), s.model)
	if err != nil {
		return d, usage, nil, err
	}
	url, err := deps.ImageStore.Upload(ctx, fmt.Sprintf("featured/%s.png", d.RunID), data, "image/png")
	if err != nil {
		return d, usage, nil, fmt.Errorf("upload image: %w", err)
	}
	d.FeaturedImageURL = url
	return d, usage, map[string]any{"url": url, "bytes": len(data)}, nil
}
