package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"content-hand/models"
)

const draftSystemPrompt = `You are an experienced editorial writer. You write well-structured, factual long-form web articles in HTML.
Rules:
- Output HTML only, no Markdown and no code fences.
- Exactly one <h1> containing the title, then an introduction paragraph.
- Use <h2> sections and <p> paragraphs. Keep sentences under 25 words.
- Include a FAQ section with <h2>FAQ</h2> when useful.
- End with one <script type="application/ld+json"> block containing a schema.org Article (headline, description, author, datePublished).
- Never use placeholders such as [insert ...] or lorem ipsum.`

const verificationSystemPrompt = `You are a meticulous fact checker. Judge factual accuracy only, not style.
Answer with a single JSON object and nothing else.`

var verificationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "facts_correct": {"type": "boolean"},
    "corrections": {"type": "array", "items": {"type": "string"}},
    "citations": {"type": "array", "items": {"type": "object", "properties": {"url": {"type": "string"}, "title": {"type": "string"}, "publisher": {"type": "string"}}, "required": ["url"]}},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["facts_correct", "corrections", "citations", "confidence"]
}`)

func draftPrompt(d Draft) string {
	var b strings.Builder
	switch d.ContentType {
	case models.ContentTypeRefresh:
		fmt.Fprintf(&b, "Rewrite and update an existing article about: %s\n", d.Topic)
		b.WriteString("Keep the structure recognisable but refresh facts, examples and dates.\n")
	default:
		fmt.Fprintf(&b, "Write a new article about: %s\n", d.Topic)
	}
	switch d.Source {
	case models.TopicQuestion:
		b.WriteString("The article must answer the question directly in the introduction.\n")
	case models.TopicTrend:
		b.WriteString("Explain why this topic is trending right now and what readers should know.\n")
	}
	if len(d.Keywords) > 0 {
		fmt.Fprintf(&b, "Target keywords (use naturally in headings and text): %s\n", strings.Join(d.Keywords, ", "))
	}
	b.WriteString("Length: between 1500 and 3000 words.\n")
	b.WriteString("Title: 50 to 60 characters. Reference external sources with regular <a href> links.\n")
	return b.String()
}

func verificationPrompt(d Draft) string {
	return fmt.Sprintf(`Check the following article for factual errors.
Return facts_correct, a list of concrete corrections, citations to authoritative sources supporting the main claims, and your confidence between 0 and 1.

Title: %s

%s`, d.Title, PlainText(d.Body))
}

func imagePrompt(d Draft) string {
	return fmt.Sprintf("Editorial featured image for an article titled %q. Photographic style, no text, no logos.", d.Title)
}
