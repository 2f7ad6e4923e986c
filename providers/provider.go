package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Usage beschreibt Token-Verbrauch und geschätzte Kosten eines Modellaufrufs.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost"`
}

// InvokeRequest ist ein einzelner Modellaufruf. Ist ResponseSchema gesetzt, wird
// JSON-Ausgabe angefordert; das Ergebnis muss trotzdem nicht valide sein.
type InvokeRequest struct {
	Prompt         string          `json:"prompt"`
	SystemPrompt   string          `json:"system_prompt,omitempty"`
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
}

// InvokeResponse ist die Antwort eines Modellaufrufs.
type InvokeResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// ModelProvider ist das Interface, das jeder Modell-Anbieter (z.B. OpenAI, Anthropic) implementieren muss.
type ModelProvider interface {
	// Invoke führt einen Prompt aus und liefert Text samt Verbrauch.
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResponse, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "openai").
	Name() string
}

// ImageGenerator erzeugt Bilder aus einem Prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, model string) ([]byte, Usage, error)
}

// Router verteilt Aufrufe anhand des konfigurierten Provider-Namens.
type Router struct {
	providers map[string]ModelProvider
}

// NewRouter erstellt einen Router mit den übergebenen Providern.
func NewRouter(ps ...ModelProvider) *Router {
	r := &Router{providers: map[string]ModelProvider{}}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register fügt einen Provider hinzu oder ersetzt einen gleichnamigen.
func (r *Router) Register(p ModelProvider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// Has meldet, ob ein Provider registriert ist.
func (r *Router) Has(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// Names liefert die registrierten Provider sortiert.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke leitet den Aufruf an den benannten Provider weiter.
func (r *Router) Invoke(ctx context.Context, provider string, req InvokeRequest) (InvokeResponse, error) {
	p, ok := r.providers[provider]
	if !ok {
		return InvokeResponse{}, fmt.Errorf("model provider %q is not configured", provider)
	}
	return p.Invoke(ctx, req)
}
