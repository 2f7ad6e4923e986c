package services

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// parseBody parst einen Artikel-Body als HTML-Fragment.
func parseBody(body string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

// HeadingCounts zählt h1- und h2-Überschriften.
func HeadingCounts(body string) (h1, h2 int) {
	doc, err := parseBody(body)
	if err != nil {
		return 0, 0
	}
	return doc.Find("h1").Length(), doc.Find("h2").Length()
}

// FirstHeadingText liefert den Text der ersten h1-Überschrift.
func FirstHeadingText(body string) string {
	doc, err := parseBody(body)
	if err != nil {
		return ""
	}
	return collapseWhitespace(doc.Find("h1").First().Text())
}

// FirstParagraphText liefert den Text des ersten nicht-leeren Absatzes.
func FirstParagraphText(body string) string {
	doc, err := parseBody(body)
	if err != nil {
		return ""
	}
	var text string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = PlainText(s.Text())
		return text == ""
	})
	return text
}

// StructuredDataBlocks liefert den Rohinhalt aller JSON-LD-Blöcke.
func StructuredDataBlocks(body string) []string {
	doc, err := parseBody(body)
	if err != nil {
		return nil
	}
	var blocks []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if raw := strings.TrimSpace(s.Text()); raw != "" {
			blocks = append(blocks, raw)
		}
	})
	return blocks
}

// StructuredData ist das Prüfergebnis der JSON-LD-Blöcke eines Artikels.
type StructuredData struct {
	Present  bool
	Parsed   bool
	Complete bool
	Types    []string
}

// HasType meldet, ob ein Knoten den gegebenen @type trägt.
func (s StructuredData) HasType(t string) bool {
	for _, have := range s.Types {
		if strings.EqualFold(have, t) {
			return true
		}
	}
	return false
}

// InspectStructuredData parst alle JSON-LD-Blöcke. Complete ist gesetzt, wenn jeder
// Knoten der obersten Ebene @context (geerbt oder eigen) und @type trägt.
func InspectStructuredData(body string) StructuredData {
	blocks := StructuredDataBlocks(body)
	res := StructuredData{Present: len(blocks) > 0}
	if !res.Present {
		return res
	}
	res.Parsed = true
	res.Complete = true
	for _, raw := range blocks {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			res.Parsed = false
			res.Complete = false
			continue
		}
		nodes, complete := ldNodes(v, false)
		if len(nodes) == 0 || !complete {
			res.Complete = false
		}
		for _, n := range nodes {
			res.Types = append(res.Types, ldTypes(n)...)
		}
	}
	return res
}

// ldNodes flacht Arrays und @graph auf und prüft @context/@type je Knoten.
func ldNodes(v any, hasContext bool) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		complete := true
		for _, it := range t {
			nodes, ok := ldNodes(it, hasContext)
			out = append(out, nodes...)
			complete = complete && ok
		}
		return out, complete
	case map[string]any:
		if _, ok := t["@context"]; ok {
			hasContext = true
		}
		if graph, ok := t["@graph"]; ok {
			return ldNodes(graph, hasContext)
		}
		_, hasType := t["@type"]
		return []map[string]any{t}, hasContext && hasType
	}
	return nil, false
}

func ldTypes(node map[string]any) []string {
	switch t := node["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, it := range t {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasFAQSection erkennt einen FAQ-Abschnitt über Überschriften oder id/class-Attribute.
func HasFAQSection(body string) bool {
	doc, err := parseBody(body)
	if err != nil {
		return false
	}
	found := false
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(s.Text())
		if strings.Contains(text, "faq") || strings.Contains(text, "frequently asked") {
			found = true
		}
		return !found
	})
	if found {
		return true
	}
	return doc.Find(`[id*="faq"], [class*="faq"]`).Length() > 0
}
