package services

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

// SourceItem ist eine nummerierte Quelle eines Artikels.
type SourceItem struct {
	Number    int    `json:"number"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Publisher string `json:"publisher,omitempty"`
	Year      int    `json:"year,omitempty"`
}

var citationMarkerRE = regexp.MustCompile(`\[(\d+)\]`)

// ParseCitationOrder returns the unique [n] citation numbers in first-occurrence order
func ParseCitationOrder(text string) []int {
	seen := map[int]bool{}
	order := []int{}
	for _, m := range citationMarkerRE.FindAllStringSubmatch(text, -1) {
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n <= 0 {
			continue
		}
		if !seen[n] {
			seen[n] = true
			order = append(order, n)
		}
	}
	return order
}

// BuildBibliography builds a references list in the order of first citations; returns warnings
func BuildBibliography(text string, sources []SourceItem) (ordered []SourceItem, warnings []string) {
	if len(sources) == 0 {
		return nil, []string{"no sources provided"}
	}
	byNum := map[int]SourceItem{}
	nums := []int{}
	for _, s := range sources {
		byNum[s.Number] = s
		nums = append(nums, s.Number)
	}
	sort.Ints(nums)

	seen := map[int]bool{}
	for _, n := range ParseCitationOrder(text) {
		s, ok := byNum[n]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("citation [%d] has no matching source", n))
			continue
		}
		ordered = append(ordered, s)
		seen[n] = true
	}
	// never cited but provided
	for _, n := range nums {
		if !seen[n] {
			ordered = append(ordered, byNum[n])
			seen[n] = true
		}
	}
	return ordered, warnings
}

// FormatReference renders a single source as a list item with a raw link
func FormatReference(s SourceItem) string {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = s.URL
	}
	var tail []string
	if s.Publisher != "" {
		tail = append(tail, html.EscapeString(s.Publisher))
	}
	if s.Year > 0 {
		tail = append(tail, fmt.Sprintf("%d", s.Year))
	}
	ref := fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(s.URL), html.EscapeString(title))
	if len(tail) > 0 {
		ref += " (" + strings.Join(tail, ", ") + ")"
	}
	return "<li>" + ref + "</li>"
}

// RenderSourcesSection baut den Quellenabschnitt eines Artikels.
func RenderSourcesSection(sources []SourceItem) string {
	var b strings.Builder
	b.WriteString("\n<h2 id=\"sources\">Sources</h2>\n<ul class=\"sources\">\n")
	for _, s := range sources {
		b.WriteString(FormatReference(s))
		b.WriteString("\n")
	}
	b.WriteString("</ul>\n")
	return b.String()
}
