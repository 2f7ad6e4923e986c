package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"content-hand/models"
)

// ValidationResult ist das Ergebnis eines Validator-Laufs. Passed ist genau dann false,
// wenn mindestens ein Fehler vorliegt; Warnungen blockieren nie.
type ValidationResult struct {
	Passed   bool           `json:"passed"`
	Errors   []string       `json:"errors"`
	Warnings []string       `json:"warnings"`
	Metrics  map[string]any `json:"metrics"`
}

// ValidationInput sind die Felder, die beide Validatoren prüfen.
type ValidationInput struct {
	Title            string `json:"title"`
	Body             string `json:"body"`
	MetaDescription  string `json:"meta_description"`
	FeaturedImageURL string `json:"featured_image_url"`
	ContentType      string `json:"content_type,omitempty"`
}

// InputFromItem baut die Validator-Eingabe aus einem gespeicherten Item.
func InputFromItem(item *models.ContentItem) ValidationInput {
	return ValidationInput{
		Title:            item.Title,
		Body:             item.Body,
		MetaDescription:  item.MetaDescription,
		FeaturedImageURL: item.FeaturedImageURL,
		ContentType:      item.ContentType,
	}
}

const metaHardLimit = 160

var placeholderRE = regexp.MustCompile(`(?i)\[(?:insert|todo|tbd|placeholder|tk)\b|lorem ipsum`)

type resultBuilder struct {
	res ValidationResult
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{res: ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
		Metrics:  map[string]any{},
	}}
}

func (b *resultBuilder) errorf(format string, args ...any) {
	b.res.Errors = append(b.res.Errors, fmt.Sprintf(format, args...))
}

func (b *resultBuilder) warnf(format string, args ...any) {
	b.res.Warnings = append(b.res.Warnings, fmt.Sprintf(format, args...))
}

func (b *resultBuilder) metric(key string, v any) {
	b.res.Metrics[key] = v
}

func (b *resultBuilder) result() ValidationResult {
	b.res.Passed = len(b.res.Errors) == 0
	return b.res
}

// Band ist ein geschlossenes Intervall [Min, Max].
type Band struct {
	Min int
	Max int
}

func (b Band) contains(n int) bool {
	return n >= b.Min && n <= b.Max
}

func checkTitle(b *resultBuilder, title string, band Band) {
	title = strings.TrimSpace(title)
	n := len([]rune(title))
	b.metric("has_title", n > 0)
	b.metric("title_length", n)
	if n == 0 {
		b.errorf("title is missing")
		return
	}
	if !band.contains(n) {
		b.warnf("title length %d is outside the recommended %d-%d characters", n, band.Min, band.Max)
	}
}

// checkWordCount prüft die Wortzahl gegen Minimum und optionales Maximum.
// warnMargin > 0 warnt, wenn die Zahl knapp über dem Minimum liegt.
func checkWordCount(b *resultBuilder, body string, minWords, maxWords, warnMargin int) {
	hasBody := strings.TrimSpace(PlainText(body)) != ""
	wc := CountWords(body)
	b.metric("has_body", hasBody)
	b.metric("word_count", wc)
	if !hasBody {
		b.errorf("body is missing")
		return
	}
	switch {
	case wc < minWords:
		b.errorf("word count %d is below the minimum of %d", wc, minWords)
	case maxWords > 0 && wc > maxWords:
		b.errorf("word count %d exceeds the maximum of %d", wc, maxWords)
	case warnMargin > 0 && wc < minWords+warnMargin:
		b.warnf("word count %d is within %d words of the minimum of %d", wc, warnMargin, minWords)
	}
}

func checkPlaceholders(b *resultBuilder, in ValidationInput) {
	var found []string
	for _, field := range []string{in.Title, in.Body, in.MetaDescription} {
		found = append(found, placeholderRE.FindAllString(field, -1)...)
	}
	b.metric("placeholder_count", len(found))
	if len(found) > 0 {
		b.errorf("placeholder markers found: %s", strings.Join(uniqueStrings(found), ", "))
	}
}

func checkMetaDescription(b *resultBuilder, meta string, band Band) {
	meta = strings.TrimSpace(meta)
	n := len([]rune(meta))
	b.metric("has_meta_description", n > 0)
	b.metric("meta_description_length", n)
	switch {
	case n == 0:
		b.errorf("meta description is missing")
	case n > metaHardLimit:
		b.errorf("meta description length %d exceeds %d characters", n, metaHardLimit)
	case !band.contains(n):
		b.warnf("meta description length %d is outside the recommended %d-%d characters", n, band.Min, band.Max)
	}
}

func checkFeaturedImage(b *resultBuilder, ref string) {
	ref = strings.TrimSpace(ref)
	valid := ref != "" && validImageURL(ref)
	b.metric("has_featured_image", ref != "")
	b.metric("featured_image_valid", valid)
	switch {
	case ref == "":
		b.errorf("featured image is missing")
	case !valid:
		b.errorf("featured image reference %q is not a valid URL", ref)
	}
}

func validImageURL(ref string) bool {
	if err := validation.Validate(ref, is.RequestURL); err != nil {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// checkShortcodes prüft Shortcode-Paare und verbliebenes rohes Link-Markup.
func checkShortcodes(b *resultBuilder, body string) ShortcodeCounts {
	counts := CountShortcodes(body)
	mismatch := false
	for _, class := range LinkClasses {
		open, closed := counts.Open[class], counts.Close[class]
		b.metric(string(class)+"_links", open)
		if open != closed {
			mismatch = true
			b.errorf("%s shortcode mismatch: %d opening vs %d closing tags", class.Shortcode(), open, closed)
		}
	}
	b.metric("shortcodes_balanced", !mismatch)
	raw := CountRawLinks(body)
	b.metric("raw_link_count", raw)
	if raw > 0 {
		b.errorf("%d raw hyperlink(s) remain in body; all links must be shortcodes", raw)
	}
	return counts
}

func uniqueStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		k := strings.ToLower(s)
		if !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}
