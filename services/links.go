package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkClass ist die Klassifizierung eines Links.
type LinkClass string

const (
	LinkInternal  LinkClass = "internal"
	LinkAffiliate LinkClass = "affiliate"
	LinkExternal  LinkClass = "external"
)

// LinkClasses in fester Reihenfolge.
var LinkClasses = []LinkClass{LinkInternal, LinkAffiliate, LinkExternal}

// Shortcode liefert den Tag-Namen der Klasse.
func (c LinkClass) Shortcode() string {
	return string(c) + "_link"
}

var (
	// Nur rohes Link-Markup, nie die Shortcode-Form: das hält Transform idempotent.
	// Attributwerte in Anführungszeichen dürfen ">" enthalten.
	rawAnchorRE    = regexp.MustCompile(`(?is)<a\b((?:[^>"']|"[^"]*"|'[^']*')*)>(.*?)</a\s*>`)
	anyAnchorRE    = regexp.MustCompile(`(?i)<a(?:\s[^>]*)?>`)
	openShortcode  = regexp.MustCompile(`\[(internal_link|affiliate_link|external_link)(?:\s[^\]]*)?\]`)
	closeShortcode = regexp.MustCompile(`\[/(internal_link|affiliate_link|external_link)\]`)
)

// LinkAttr ist ein Attribut in Originalreihenfolge.
type LinkAttr struct {
	Key string
	Val string
}

// LinkRecord ist ein gefundener Link samt Klassifizierung.
type LinkRecord struct {
	URL        string
	Text       string
	Attributes []LinkAttr
	Class      LinkClass
}

// Has meldet, ob das Attribut vorhanden ist.
func (r LinkRecord) Has(key string) bool {
	for _, a := range r.Attributes {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

// TransformationCounts zählt umgeschriebene Links pro Klasse.
type TransformationCounts struct {
	Internal  int `json:"internal"`
	Affiliate int `json:"affiliate"`
	External  int `json:"external"`
}

// Total summiert alle Klassen.
func (c TransformationCounts) Total() int {
	return c.Internal + c.Affiliate + c.External
}

func (c *TransformationCounts) add(class LinkClass) {
	switch class {
	case LinkInternal:
		c.Internal++
	case LinkAffiliate:
		c.Affiliate++
	case LinkExternal:
		c.External++
	}
}

// LinkTransformResult ist das Ergebnis eines Transform-Laufs.
type LinkTransformResult struct {
	Body   string               `json:"body"`
	Counts TransformationCounts `json:"transformation_counts"`
	Issues []string             `json:"issues"`
}

// LinkTransformer klassifiziert Links und schreibt sie in die Shortcode-Notation um.
type LinkTransformer struct {
	firstParty []string
	affiliate  []string
}

// NewLinkTransformer erstellt einen Transformer mit eigenen und Affiliate-Domains.
func NewLinkTransformer(firstPartyDomains, affiliateDomains []string) *LinkTransformer {
	return &LinkTransformer{
		firstParty: normalizeDomains(firstPartyDomains),
		affiliate:  normalizeDomains(affiliateDomains),
	}
}

// Classify bestimmt die Link-Klasse anhand der URL.
func (t *LinkTransformer) Classify(raw string) LinkClass {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return LinkExternal
	}
	if u.Scheme == "" && u.Host == "" {
		return LinkInternal
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return LinkExternal
	}
	if matchesDomain(host, t.firstParty) {
		return LinkInternal
	}
	if matchesDomain(host, t.affiliate) {
		return LinkAffiliate
	}
	return LinkExternal
}

// Scan liefert alle rohen Links des Bodys.
func (t *LinkTransformer) Scan(body string) []LinkRecord {
	var out []LinkRecord
	for _, m := range rawAnchorRE.FindAllStringSubmatch(body, -1) {
		if rec, ok := t.parseAnchor(m[0], m[2]); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Transform schreibt alle rohen Links in Shortcodes um und meldet verbliebenes Link-Markup.
func (t *LinkTransformer) Transform(body string) LinkTransformResult {
	res := LinkTransformResult{Issues: []string{}}
	res.Body = rawAnchorRE.ReplaceAllStringFunc(body, func(match string) string {
		sub := rawAnchorRE.FindStringSubmatch(match)
		rec, ok := t.parseAnchor(match, sub[2])
		if !ok {
			return match
		}
		res.Counts.add(rec.Class)
		return renderShortcode(rec)
	})

	for _, loc := range anyAnchorRE.FindAllStringIndex(res.Body, -1) {
		res.Issues = append(res.Issues, fmt.Sprintf("unconverted link markup at offset %d: %s",
			loc[0], snippet(res.Body[loc[0]:], 80)))
	}
	return res
}

// parseAnchor liest die Attribute des öffnenden Tags in Originalreihenfolge.
func (t *LinkTransformer) parseAnchor(tag, inner string) (LinkRecord, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tag))
	if err != nil {
		return LinkRecord{}, false
	}
	sel := doc.Find("a").First()
	if sel.Length() == 0 {
		return LinkRecord{}, false
	}
	rec := LinkRecord{Text: inner}
	hasHref := false
	for _, a := range sel.Nodes[0].Attr {
		if strings.EqualFold(a.Key, "href") {
			rec.URL = strings.TrimSpace(a.Val)
			hasHref = true
			continue
		}
		rec.Attributes = append(rec.Attributes, LinkAttr{Key: a.Key, Val: a.Val})
	}
	if !hasHref || rec.URL == "" {
		return LinkRecord{}, false
	}
	rec.Class = t.Classify(rec.URL)
	applyClassDefaults(&rec)
	return rec, true
}

// applyClassDefaults setzt rel/target nur, wenn das Attribut fehlt.
func applyClassDefaults(rec *LinkRecord) {
	switch rec.Class {
	case LinkAffiliate:
		if !rec.Has("rel") {
			rec.Attributes = append(rec.Attributes, LinkAttr{Key: "rel", Val: "sponsored nofollow"})
		}
	case LinkExternal:
		if !rec.Has("rel") {
			rec.Attributes = append(rec.Attributes, LinkAttr{Key: "rel", Val: "nofollow"})
		}
		if !rec.Has("target") {
			rec.Attributes = append(rec.Attributes, LinkAttr{Key: "target", Val: "_blank"})
		}
	}
}

func renderShortcode(rec LinkRecord) string {
	var b strings.Builder
	name := rec.Class.Shortcode()
	b.WriteString("[")
	b.WriteString(name)
	fmt.Fprintf(&b, ` url="%s"`, escapeShortcodeAttr(rec.URL))
	for _, a := range rec.Attributes {
		fmt.Fprintf(&b, ` %s="%s"`, a.Key, escapeShortcodeAttr(a.Val))
	}
	b.WriteString("]")
	b.WriteString(rec.Text)
	b.WriteString("[/")
	b.WriteString(name)
	b.WriteString("]")
	return b.String()
}

func escapeShortcodeAttr(s string) string {
	return strings.NewReplacer(`"`, "&quot;", "]", "&#93;").Replace(s)
}

// ShortcodeCounts zählt öffnende und schließende Shortcodes pro Klasse.
type ShortcodeCounts struct {
	Open  map[LinkClass]int
	Close map[LinkClass]int
}

// CountShortcodes zählt Link-Shortcodes im Body.
func CountShortcodes(body string) ShortcodeCounts {
	c := ShortcodeCounts{Open: map[LinkClass]int{}, Close: map[LinkClass]int{}}
	for _, class := range LinkClasses {
		c.Open[class] = 0
		c.Close[class] = 0
	}
	for _, m := range openShortcode.FindAllStringSubmatch(body, -1) {
		c.Open[LinkClass(strings.TrimSuffix(m[1], "_link"))]++
	}
	for _, m := range closeShortcode.FindAllStringSubmatch(body, -1) {
		c.Close[LinkClass(strings.TrimSuffix(m[1], "_link"))]++
	}
	return c
}

// CountRawLinks zählt verbliebenes rohes Link-Markup.
func CountRawLinks(body string) int {
	return len(anyAnchorRE.FindAllStringIndex(body, -1))
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if strings.Contains(d, "://") {
			if u, err := url.Parse(d); err == nil {
				d = u.Hostname()
			}
		}
		if d = normalizeHost(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), "."))
	return strings.TrimPrefix(h, "www.")
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
