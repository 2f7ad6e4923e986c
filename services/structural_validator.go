package services

import "content-hand/models"

// StructuralValidator prüft Entwürfe, bevor sie in die Review-Queue gehen.
// Der Aufruf ist eine reine Funktion der Eingabe.
type StructuralValidator struct {
	MinWords        map[string]int
	DefaultMinWords int
	WordWarnMargin  int
	TitleBand       Band
	MetaBand        Band
	MaxWordsPerSent float64
	MinReadingEase  float64
}

// NewStructuralValidator erstellt den Validator mit den Standard-Schwellen.
func NewStructuralValidator() *StructuralValidator {
	return &StructuralValidator{
		MinWords:        map[string]int{models.ContentTypeNewArticle: 1500},
		DefaultMinWords: 500,
		WordWarnMargin:  200,
		TitleBand:       Band{Min: 30, Max: 70},
		MetaBand:        Band{Min: 120, Max: 160},
		MaxWordsPerSent: 25,
		MinReadingEase:  50,
	}
}

// MinWordsFor liefert die Mindestwortzahl für einen Content-Typ.
func (v *StructuralValidator) MinWordsFor(contentType string) int {
	if contentType == "" {
		contentType = models.ContentTypeNewArticle
	}
	if n, ok := v.MinWords[contentType]; ok {
		return n
	}
	return v.DefaultMinWords
}

// Validate führt alle Strukturprüfungen aus.
func (v *StructuralValidator) Validate(in ValidationInput) ValidationResult {
	b := newResultBuilder()

	checkTitle(b, in.Title, v.TitleBand)
	minWords := v.MinWordsFor(in.ContentType)
	b.metric("min_word_count", minWords)
	checkWordCount(b, in.Body, minWords, 0, v.WordWarnMargin)
	checkPlaceholders(b, in)

	h1, h2 := HeadingCounts(in.Body)
	b.metric("h1_count", h1)
	b.metric("h2_count", h2)
	if h1 == 0 {
		b.warnf("no top-level heading (h1) found")
	}
	if h2 == 0 {
		b.warnf("no sub-heading (h2) found")
	}

	checkMetaDescription(b, in.MetaDescription, v.MetaBand)
	checkFeaturedImage(b, in.FeaturedImageURL)

	counts := checkShortcodes(b, in.Body)
	if counts.Open[LinkInternal] == 0 {
		b.warnf("no internal link shortcodes found")
	}

	stats := Readability(in.Body)
	b.metric("sentence_count", stats.Sentences)
	b.metric("avg_words_per_sentence", stats.AvgWordsPerSentence)
	b.metric("reading_ease", stats.ReadingEase)
	if stats.Sentences > 0 {
		if stats.AvgWordsPerSentence > v.MaxWordsPerSent {
			b.warnf("average sentence length %.1f words exceeds %.0f", stats.AvgWordsPerSentence, v.MaxWordsPerSent)
		}
		if stats.ReadingEase < v.MinReadingEase {
			b.warnf("reading ease %.1f is below %.0f", stats.ReadingEase, v.MinReadingEase)
		}
	}

	return b.result()
}
