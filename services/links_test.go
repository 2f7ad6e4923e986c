package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinkTransformer() *LinkTransformer {
	return NewLinkTransformer(
		[]string{"https://www.example.com", "blog.example.net"},
		[]string{"shareasale.com", "amzn.to"},
	)
}

func TestLinkTransformer_Classify(t *testing.T) {
	lt := newTestLinkTransformer()
	tests := []struct {
		url  string
		want LinkClass
	}{
		{"/programs", LinkInternal},
		{"programs/summer", LinkInternal},
		{"#faq", LinkInternal},
		{"https://example.com/about", LinkInternal},
		{"https://www.example.com/about", LinkInternal},
		{"https://shop.example.com/", LinkInternal},
		{"https://blog.example.net/post", LinkInternal},
		{"https://shareasale.com/r.cfm?b=1", LinkAffiliate},
		{"https://www.shareasale.com/x", LinkAffiliate},
		{"https://amzn.to/3abc", LinkAffiliate},
		{"https://notexample.com/", LinkExternal},
		{"https://en.wikipedia.org/wiki/Tomato", LinkExternal},
		{"mailto:team@example.org", LinkExternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lt.Classify(tt.url), tt.url)
	}
}

func TestLinkTransformer_Transform(t *testing.T) {
	lt := newTestLinkTransformer()

	t.Run("internal link gets no relation attribute", func(t *testing.T) {
		res := lt.Transform(`<a href="/programs">Programs</a>`)
		assert.Equal(t, `[internal_link url="/programs"]Programs[/internal_link]`, res.Body)
		assert.Equal(t, TransformationCounts{Internal: 1}, res.Counts)
		assert.Empty(t, res.Issues)
	})

	t.Run("affiliate link gets sponsored nofollow", func(t *testing.T) {
		res := lt.Transform(`<a href="https://shareasale.com/x">Offer</a>`)
		assert.Equal(t, `[affiliate_link url="https://shareasale.com/x" rel="sponsored nofollow"]Offer[/affiliate_link]`, res.Body)
		assert.Equal(t, 1, res.Counts.Affiliate)
	})

	t.Run("external link gets nofollow and new tab", func(t *testing.T) {
		res := lt.Transform(`<a href="https://en.wikipedia.org/wiki/Tomato">Tomato</a>`)
		assert.Equal(t, `[external_link url="https://en.wikipedia.org/wiki/Tomato" rel="nofollow" target="_blank"]Tomato[/external_link]`, res.Body)
		assert.Equal(t, 1, res.Counts.External)
	})

	t.Run("existing attributes are kept in order and not overridden", func(t *testing.T) {
		res := lt.Transform(`<a class="cta" href="https://example.org" target="_self" rel="noopener">Go</a>`)
		assert.Equal(t, `[external_link url="https://example.org" class="cta" target="_self" rel="noopener"]Go[/external_link]`, res.Body)
	})

	t.Run("inner markup is preserved", func(t *testing.T) {
		res := lt.Transform(`<p>See <a href="/guide"><strong>our guide</strong></a>.</p>`)
		assert.Equal(t, `<p>See [internal_link url="/guide"]<strong>our guide</strong>[/internal_link].</p>`, res.Body)
	})

	t.Run("anchor without href is reported", func(t *testing.T) {
		res := lt.Transform(`<p><a name="top">Top</a></p>`)
		assert.Equal(t, `<p><a name="top">Top</a></p>`, res.Body)
		assert.Equal(t, 0, res.Counts.Total())
		require.Len(t, res.Issues, 1)
		assert.Contains(t, res.Issues[0], "unconverted link markup at offset 3")
	})

	t.Run("greater-than inside an attribute value", func(t *testing.T) {
		res := lt.Transform(`<a href="/programs" title="a > b">Programs</a> and <a data-x='1>0' href="/guide">guide</a>`)
		assert.Equal(t, `[internal_link url="/programs" title="a > b"]Programs[/internal_link] and [internal_link url="/guide" data-x="1>0"]guide[/internal_link]`, res.Body)
		assert.Equal(t, 2, res.Counts.Internal)
		assert.Empty(t, res.Issues)

		recs := lt.Scan(`<a href="/programs" title="a > b">Programs</a>`)
		require.Len(t, recs, 1)
		assert.Equal(t, "Programs", recs[0].Text)
	})

	t.Run("quotes in attributes are escaped", func(t *testing.T) {
		res := lt.Transform(`<a href="/x" title='say "hi"'>x</a>`)
		assert.Equal(t, `[internal_link url="/x" title="say &quot;hi&quot;"]x[/internal_link]`, res.Body)
	})
}

func TestLinkTransformer_Idempotent(t *testing.T) {
	lt := newTestLinkTransformer()
	body := `<h1>Guide</h1>
<p>Start with <a href="/basics">the basics</a>, then buy <a href="https://amzn.to/seeds">seeds</a>
and read <A HREF="https://extension.org/tomatoes" target="_blank">the extension notes</A>.</p>`

	first := lt.Transform(body)
	second := lt.Transform(first.Body)

	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 3, first.Counts.Total())
	assert.Equal(t, 0, second.Counts.Total())
	assert.Equal(t, 0, CountRawLinks(first.Body))

	counts := CountShortcodes(first.Body)
	for _, class := range LinkClasses {
		assert.Equal(t, counts.Open[class], counts.Close[class], class)
	}
	assert.Equal(t, 1, counts.Open[LinkInternal])
	assert.Equal(t, 1, counts.Open[LinkAffiliate])
	assert.Equal(t, 1, counts.Open[LinkExternal])
}

func TestLinkTransformer_Scan(t *testing.T) {
	lt := newTestLinkTransformer()
	recs := lt.Scan(`<p><a href="/a">A</a> [internal_link url="/b"]B[/internal_link] <a href="https://shareasale.com/c">C</a></p>`)
	require.Len(t, recs, 2)
	assert.Equal(t, "/a", recs[0].URL)
	assert.Equal(t, LinkInternal, recs[0].Class)
	assert.Equal(t, LinkAffiliate, recs[1].Class)
	assert.True(t, recs[1].Has("REL"))
}

func TestTransformKeepsWordCount(t *testing.T) {
	lt := newTestLinkTransformer()
	body := `<p>Read <a href="/one">part one</a> and <a href="https://example.org/two">part two</a> today.</p>`
	res := lt.Transform(body)
	assert.Equal(t, CountWords(body), CountWords(res.Body))
	assert.False(t, strings.Contains(res.Body, "<a "))
}
