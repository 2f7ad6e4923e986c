package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountWords(t *testing.T) {
	tests := map[string]struct {
		body string
		want int
	}{
		"plain":          {"one two  three", 3},
		"markup":         {"<h1>Title here</h1><p>Body <strong>text</strong></p>", 4},
		"shortcodes":     {`<p>[internal_link url="/x"]two words[/internal_link] more</p>`, 3},
		"script ignored": {`<p>a b</p><script type="application/ld+json">{"headline":"not counted"}</script>`, 2},
		"entities":       {"<p>salt&nbsp;&amp;&nbsp;pepper</p>", 3},
		"ligature":       {"<p>ﬁeld work</p>", 2},
		"empty":          {"   <p> </p> ", 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountWords(tt.body))
		})
	}
}

func TestPlainText_NormalizesLigatures(t *testing.T) {
	assert.Equal(t, "field office", PlainText("<p>ﬁeld oﬃce</p>"))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences(`Tomatoes need sun. Do they need much water? Yes! Mulch helps`)
	assert.Equal(t, []string{"Tomatoes need sun.", "Do they need much water?", "Yes!", "Mulch helps"}, got)
	assert.Nil(t, SplitSentences("   "))
}

func TestReadability(t *testing.T) {
	stats := Readability("<p>The cat sat. The dog ran far away.</p>")
	assert.Equal(t, 8, stats.Words)
	assert.Equal(t, 2, stats.Sentences)
	assert.Equal(t, 4.0, stats.AvgWordsPerSentence)
	assert.Greater(t, stats.ReadingEase, 90.0)

	empty := Readability("")
	assert.Zero(t, empty.ReadingEase)
	assert.Zero(t, empty.AvgWordsPerSentence)
}

func TestFirstSentenceAndTruncate(t *testing.T) {
	assert.Equal(t, "Grow tomatoes on a balcony.", FirstSentence("Grow tomatoes on a balcony. It works.", 160))
	assert.Equal(t, "", FirstSentence("", 160))

	got := TruncateWords("Grow tomatoes on a sunny balcony", 20)
	assert.Equal(t, "Grow tomatoes on a", got)
	assert.LessOrEqual(t, len([]rune(got)), 20)
	assert.Equal(t, "short", TruncateWords("short", 20))
}

func TestStyleVariation(t *testing.T) {
	body := `<p>The the soil  needs needs compost.</p><p>[internal_link url="/x"]link link[/internal_link]</p>`
	out, removed := StyleVariation(body)
	require.Equal(t, 3, removed)
	assert.Equal(t, `<p>The soil needs compost.</p><p>[internal_link url="/x"]link[/internal_link]</p>`, out)

	again, removedAgain := StyleVariation(out)
	assert.Equal(t, out, again)
	assert.Zero(t, removedAgain)
}

func TestStyleVariation_KeepsRepeatsAcrossMarkup(t *testing.T) {
	body := `<p>Plant <em>plant</em> early.</p>`
	out, removed := StyleVariation(body)
	assert.Equal(t, body, out)
	assert.Zero(t, removed)
}

func TestCountSyllables(t *testing.T) {
	assert.Equal(t, 1, CountSyllables("cat"))
	assert.Equal(t, 1, CountSyllables("make"))
	assert.Equal(t, 2, CountSyllables("table"))
	assert.Equal(t, 3, CountSyllables("tomato"))
	assert.Equal(t, 0, CountSyllables("123"))
}
