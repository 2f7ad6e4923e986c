package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-hand/models"
)

func hasErrorContaining(res ValidationResult, part string) bool {
	for _, e := range res.Errors {
		if strings.Contains(e, part) {
			return true
		}
	}
	return false
}

func TestArticleBodyFixtureWordCount(t *testing.T) {
	for _, n := range []int{500, 1499, 1500, 3000, 3001} {
		assert.Equal(t, n, CountWords(articleBody(n, 3, 1, true)), "fixture with %d words", n)
	}
}

func TestPublishGate_WordCountBoundaries(t *testing.T) {
	gate := NewPublishGate()
	tests := []struct {
		words  int
		passed bool
	}{
		{1499, false},
		{1500, true},
		{3000, true},
		{3001, false},
	}
	for _, tt := range tests {
		res := gate.Check(gateInput(tt.words, 3, 1))
		assert.Equal(t, tt.passed, res.Passed, "words=%d errors=%v", tt.words, res.Errors)
		assert.Equal(t, tt.words, res.Metrics["word_count"])
		if !tt.passed {
			assert.True(t, hasErrorContaining(res, "word count"), "words=%d errors=%v", tt.words, res.Errors)
		}
	}
}

func TestStructuralValidator_WordCountBoundaries(t *testing.T) {
	v := NewStructuralValidator()

	res := v.Validate(gateInput(1499, 3, 1))
	assert.False(t, res.Passed)
	assert.True(t, hasErrorContaining(res, "below the minimum of 1500"))

	res = v.Validate(gateInput(1500, 3, 1))
	assert.True(t, res.Passed, res.Errors)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "within 200 words of the minimum")

	// kein Maximum im Structural Validator
	res = v.Validate(gateInput(3001, 3, 1))
	assert.True(t, res.Passed, res.Errors)
}

func TestValidators_DifferingThresholds(t *testing.T) {
	in := ValidationInput{
		Title:            testTitle,
		Body:             articleBody(1400, 1, 0, true),
		MetaDescription:  testMeta,
		FeaturedImageURL: testImage,
		ContentType:      models.ContentTypeRefresh,
	}

	structural := NewStructuralValidator().Validate(in)
	assert.True(t, structural.Passed, structural.Errors)
	assert.Equal(t, 500, structural.Metrics["min_word_count"])

	gate := NewPublishGate().Check(in)
	assert.False(t, gate.Passed)
	assert.True(t, hasErrorContaining(gate, "word count 1400 is below the minimum of 1500"))
	assert.True(t, hasErrorContaining(gate, "internal link count 1"))
}

func TestPublishGate_AtLeastAsStrictAsStructural(t *testing.T) {
	base := gateInput(1800, 3, 1)
	inputs := map[string]ValidationInput{
		"valid":            base,
		"short body":       gateInput(900, 3, 1),
		"no title":         withField(base, func(in *ValidationInput) { in.Title = "" }),
		"no meta":          withField(base, func(in *ValidationInput) { in.MetaDescription = "" }),
		"long meta":        withField(base, func(in *ValidationInput) { in.MetaDescription = strings.Repeat("m", 161) }),
		"no image":         withField(base, func(in *ValidationInput) { in.FeaturedImageURL = "" }),
		"bad image":        withField(base, func(in *ValidationInput) { in.FeaturedImageURL = "not a url" }),
		"placeholder":      withField(base, func(in *ValidationInput) { in.Body += "<p>[INSERT statistic here]</p>" }),
		"raw link":         withField(base, func(in *ValidationInput) { in.Body += `<p><a href="https://example.com">x</a></p>` }),
		"unbalanced":       withField(base, func(in *ValidationInput) { in.Body += `<p>[internal_link url="/x"]open</p>` }),
		"empty body":       withField(base, func(in *ValidationInput) { in.Body = "" }),
		"refresh short":    withField(gateInput(700, 3, 1), func(in *ValidationInput) { in.ContentType = models.ContentTypeRefresh }),
		"no structured ld": {Title: testTitle, Body: articleBody(1800, 3, 1, false), MetaDescription: testMeta, FeaturedImageURL: testImage},
	}

	v, gate := NewStructuralValidator(), NewPublishGate()
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			s := v.Validate(in)
			g := gate.Check(in)
			if !s.Passed {
				assert.False(t, g.Passed, "gate passed although structural failed: %v", s.Errors)
			}
			if g.Passed {
				assert.True(t, s.Passed, "structural failed although gate passed: %v", s.Errors)
			}
		})
	}
}

func withField(in ValidationInput, fn func(*ValidationInput)) ValidationInput {
	fn(&in)
	return in
}

func TestPublishGate_Checks(t *testing.T) {
	gate := NewPublishGate()

	t.Run("passes complete article", func(t *testing.T) {
		res := gate.Check(gateInput(2000, 3, 2))
		require.True(t, res.Passed, res.Errors)
		assert.Empty(t, res.Errors)
		assert.Equal(t, true, res.Metrics["has_structured_data"])
	})

	t.Run("too many internal links only warns", func(t *testing.T) {
		res := gate.Check(gateInput(2000, 6, 1))
		assert.True(t, res.Passed, res.Errors)
		assert.Contains(t, strings.Join(res.Warnings, "\n"), "exceeds the recommended maximum of 5")
	})

	t.Run("missing external link", func(t *testing.T) {
		res := gate.Check(gateInput(2000, 3, 0))
		assert.False(t, res.Passed)
		assert.True(t, hasErrorContaining(res, "external link count 0"))
	})

	t.Run("missing structured data", func(t *testing.T) {
		in := gateInput(2000, 3, 1)
		in.Body = articleBody(2000, 3, 1, false)
		res := gate.Check(in)
		assert.False(t, res.Passed)
		assert.True(t, hasErrorContaining(res, "structured data block is missing"))
	})

	t.Run("invalid structured data", func(t *testing.T) {
		in := gateInput(2000, 3, 1)
		in.Body = articleBody(2000, 3, 1, false) + `<script type="application/ld+json">{"@type":</script>`
		res := gate.Check(in)
		assert.False(t, res.Passed)
		assert.True(t, hasErrorContaining(res, "not valid JSON"))
	})

	t.Run("title outside gate band only warns", func(t *testing.T) {
		in := gateInput(2000, 3, 1)
		in.Title = "Tomatoes in Small Urban Gardens"
		res := gate.Check(in)
		assert.True(t, res.Passed, res.Errors)
		assert.Contains(t, strings.Join(res.Warnings, "\n"), "title length")
	})

	t.Run("meta description over hard limit", func(t *testing.T) {
		in := gateInput(2000, 3, 1)
		in.MetaDescription = strings.Repeat("a", 161)
		res := gate.Check(in)
		assert.False(t, res.Passed)
		assert.True(t, hasErrorContaining(res, "exceeds 160 characters"))
	})
}

func TestStructuralValidator_Warnings(t *testing.T) {
	in := gateInput(2000, 0, 1)
	in.Body = strings.Replace(in.Body, "<h2>Basics</h2>", "<p>Basics</p>", 1)

	res := NewStructuralValidator().Validate(in)
	require.True(t, res.Passed, res.Errors)
	warnings := strings.Join(res.Warnings, "\n")
	assert.Contains(t, warnings, "no sub-heading (h2) found")
	assert.Contains(t, warnings, "no internal link shortcodes found")
	assert.Equal(t, 0, res.Metrics["h2_count"])
}

func TestStructuralValidator_Errors(t *testing.T) {
	res := NewStructuralValidator().Validate(ValidationInput{
		Body: `<p>Short [TODO add intro] text with <a href="/x">a raw link</a>.</p>`,
	})
	assert.False(t, res.Passed)
	for _, part := range []string{
		"title is missing",
		"word count",
		"placeholder markers found",
		"meta description is missing",
		"featured image is missing",
		"raw hyperlink",
	} {
		assert.True(t, hasErrorContaining(res, part), "missing error %q in %v", part, res.Errors)
	}
}

func TestStructuralValidator_ShortcodeMismatch(t *testing.T) {
	in := gateInput(1800, 3, 1)
	in.Body += `<p>[affiliate_link url="https://amzn.to/x" rel="sponsored nofollow"]deal</p>`
	res := NewStructuralValidator().Validate(in)
	assert.False(t, res.Passed)
	assert.True(t, hasErrorContaining(res, "affiliate_link shortcode mismatch: 1 opening vs 0 closing"))
	assert.Equal(t, false, res.Metrics["shortcodes_balanced"])
}
