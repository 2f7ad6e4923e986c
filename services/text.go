package services

import (
	"html"
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	scriptStyleRE = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	tagRE         = regexp.MustCompile(`(?s)<[^>]*>`)
	shortcodeRE   = regexp.MustCompile(`\[/?(?:internal_link|affiliate_link|external_link)\b[^\]]*\]`)
	spaceRE       = regexp.MustCompile("[\t\f\v ]+")
	multiSpaceRE  = regexp.MustCompile(` {2,}`)
	multiNLRE     = regexp.MustCompile(`\n{3,}`)
	sentenceEndRE = regexp.MustCompile(`[.!?]+(?:["')\]]*)(?:\s+|$)`)
	wordRE        = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'’-]*`)
	vowelGroupRE  = regexp.MustCompile(`[aeiouy]+`)
	markupTokenRE = regexp.MustCompile(`(?s)<[^>]*>|\[[^\]]*\]`)
)

// PlainText entfernt Markup und Shortcodes und liefert normalisierten Fließtext.
func PlainText(body string) string {
	s := scriptStyleRE.ReplaceAllString(body, " ")
	s = shortcodeRE.ReplaceAllString(s, "")
	s = tagRE.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = normalizeUnicode(s)
	return collapseWhitespace(s)
}

// CountWords zählt Wörter im HTML-bereinigten, whitespace-kollabierten Text.
func CountWords(body string) int {
	return len(strings.Fields(PlainText(body)))
}

// normalizeUnicode führt NFKC-Normalisierung durch und ersetzt gängige Ligaturen.
func normalizeUnicode(s string) string {
	replacer := strings.NewReplacer(
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"\u200b", "",
	)
	s = replacer.Replace(s)
	normalized, _, err := transform.String(norm.NFKC, s)
	if err != nil {
		return s
	}
	return normalized
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRE.ReplaceAllString(s, " ")
	s = multiSpaceRE.ReplaceAllString(s, " ")
	s = multiNLRE.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SplitSentences zerlegt Fließtext in Sätze anhand von Satzzeichen.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	last := 0
	for _, loc := range sentenceEndRE.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// CountSyllables schätzt Silben über Vokalgruppen; stummes End-e wird abgezogen.
func CountSyllables(word string) int {
	w := strings.ToLower(strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) }))
	if w == "" {
		return 0
	}
	n := len(vowelGroupRE.FindAllStringIndex(w, -1))
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && n > 1 {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ReadabilityStats fasst die Lesbarkeitskennzahlen eines Textes zusammen.
type ReadabilityStats struct {
	Words               int     `json:"words"`
	Sentences           int     `json:"sentences"`
	Syllables           int     `json:"syllables"`
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`
	ReadingEase         float64 `json:"reading_ease"`
}

// Readability berechnet durchschnittliche Satzlänge und einen Flesch-Reading-Ease-Wert.
func Readability(body string) ReadabilityStats {
	text := PlainText(body)
	words := wordRE.FindAllString(text, -1)
	sentences := SplitSentences(text)
	stats := ReadabilityStats{Words: len(words), Sentences: len(sentences)}
	if stats.Words == 0 || stats.Sentences == 0 {
		return stats
	}
	for _, w := range words {
		stats.Syllables += CountSyllables(w)
	}
	wps := float64(stats.Words) / float64(stats.Sentences)
	spw := float64(stats.Syllables) / float64(stats.Words)
	stats.AvgWordsPerSentence = round2(wps)
	stats.ReadingEase = round2(206.835 - 1.015*wps - 84.6*spw)
	return stats
}

// FirstSentence liefert den ersten Satz eines Textes, höchstens maxLen Zeichen lang.
func FirstSentence(text string, maxLen int) string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	return TruncateWords(sentences[0], maxLen)
}

// TruncateWords kürzt auf maxLen Zeichen an einer Wortgrenze.
func TruncateWords(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	cut := string(r[:maxLen])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > maxLen/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsPunct(r) })
}

// StyleVariation kollabiert doppelte Wörter und Leerzeichen im Text außerhalb von Markup.
// Der Aufruf ist idempotent.
func StyleVariation(body string) (string, int) {
	body = normalizeNFC(body)
	var b strings.Builder
	removed := 0
	last := 0
	for _, loc := range markupTokenRE.FindAllStringIndex(body, -1) {
		seg, n := dedupeWords(body[last:loc[0]])
		removed += n
		b.WriteString(seg)
		b.WriteString(body[loc[0]:loc[1]])
		last = loc[1]
	}
	seg, n := dedupeWords(body[last:])
	removed += n
	b.WriteString(seg)
	return b.String(), removed
}

func normalizeNFC(s string) string {
	out, _, err := transform.String(norm.NFC, s)
	if err != nil {
		return s
	}
	return out
}

// dedupeWords entfernt direkt wiederholte Wörter ("the the"), die nur durch Leerzeichen getrennt sind.
func dedupeWords(seg string) (string, int) {
	seg = multiSpaceRE.ReplaceAllString(seg, " ")
	locs := wordRE.FindAllStringIndex(seg, -1)
	if len(locs) < 2 {
		return seg, 0
	}
	var b strings.Builder
	removed := 0
	cursor := 0
	prev := ""
	for i, loc := range locs {
		word := seg[loc[0]:loc[1]]
		if i > 0 && strings.EqualFold(word, prev) && strings.TrimLeft(seg[locs[i-1][1]:loc[0]], " ") == "" {
			b.WriteString(seg[cursor:locs[i-1][1]])
			cursor = loc[1]
			removed++
			continue
		}
		prev = word
	}
	b.WriteString(seg[cursor:])
	return b.String(), removed
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
