package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"content-hand/models"
	"content-hand/providers"
)

const (
	testTitle = "A Complete Guide to Growing Tomatoes in Small Urban Gardens"
	testMeta  = "Learn how to grow healthy tomatoes in small urban gardens with practical advice on soil, containers, watering schedules and the best varieties for balconies."
	testImage = "https://cdn.example.com/featured/tomatoes.png"
	testLD    = `<script type="application/ld+json">{"@context":"https://schema.org","@type":"Article","headline":"Tomatoes"}</script>`
)

// articleBody baut einen Body mit exakt words Wörtern, internal internen und
// external externen Link-Shortcodes sowie optionalem JSON-LD-Block.
func articleBody(words, internal, external int, withLD bool) string {
	var b strings.Builder
	b.WriteString("<h1>Tomato Guide</h1>\n<h2>Basics</h2>\n")
	used := 3

	b.WriteString("<p>")
	for i := range internal {
		fmt.Fprintf(&b, `[internal_link url="/guides/%d"]guide[/internal_link] `, i)
		used++
	}
	for i := range external {
		fmt.Fprintf(&b, `[external_link url="https://example.org/%d" rel="nofollow" target="_blank"]source[/external_link] `, i)
		used++
	}
	b.WriteString("</p>\n")

	b.WriteString(fillerParagraphs(words - used))
	if withLD {
		b.WriteString(testLD)
	}
	return b.String()
}

// fillerParagraphs liefert n Wörter in Absätzen zu je 100 Wörtern mit kurzen Sätzen.
func fillerParagraphs(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i%100 == 0 {
			if i > 0 {
				b.WriteString("</p>\n")
			}
			b.WriteString("<p>")
		} else {
			b.WriteString(" ")
		}
		b.WriteString("garden")
		if i%10 == 9 || i == n-1 {
			b.WriteString(".")
		}
	}
	if n > 0 {
		b.WriteString("</p>\n")
	}
	return b.String()
}

func gateInput(words, internal, external int) ValidationInput {
	return ValidationInput{
		Title:            testTitle,
		Body:             articleBody(words, internal, external, true),
		MetaDescription:  testMeta,
		FeaturedImageURL: testImage,
		ContentType:      models.ContentTypeNewArticle,
	}
}

// publishableItem ist ein Item, das das Publish Gate besteht.
func publishableItem(owner string, status models.ContentStatus) *models.ContentItem {
	in := gateInput(1800, 3, 1)
	return &models.ContentItem{
		OwnerID:          owner,
		ContentType:      in.ContentType,
		Title:            in.Title,
		Body:             in.Body,
		MetaDescription:  in.MetaDescription,
		FeaturedImageURL: in.FeaturedImageURL,
		WordCount:        CountWords(in.Body),
		Status:           status,
	}
}

type invokeFunc func(req providers.InvokeRequest) (providers.InvokeResponse, error)

// fakeModels ersetzt den Provider-Router.
type fakeModels struct {
	mu       sync.Mutex
	handlers map[string]invokeFunc
	calls    []providers.InvokeRequest
}

func newFakeModels() *fakeModels {
	return &fakeModels{handlers: map[string]invokeFunc{}}
}

func (f *fakeModels) on(provider string, fn invokeFunc) *fakeModels {
	f.handlers[provider] = fn
	return f
}

func (f *fakeModels) Has(provider string) bool {
	_, ok := f.handlers[provider]
	return ok
}

func (f *fakeModels) Invoke(_ context.Context, provider string, req providers.InvokeRequest) (providers.InvokeResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn, ok := f.handlers[provider]
	f.mu.Unlock()
	if !ok {
		return providers.InvokeResponse{}, fmt.Errorf("provider %q not configured", provider)
	}
	return fn(req)
}

func reply(content, model string, tokens int, cost float64) invokeFunc {
	return func(providers.InvokeRequest) (providers.InvokeResponse, error) {
		return providers.InvokeResponse{
			Content: content,
			Model:   model,
			Usage:   providers.Usage{TotalTokens: tokens, EstimatedCostUSD: cost},
		}, nil
	}
}

func failWith(msg string) invokeFunc {
	return func(providers.InvokeRequest) (providers.InvokeResponse, error) {
		return providers.InvokeResponse{}, errors.New(msg)
	}
}

type fakeImages struct {
	data []byte
	err  error
}

func (f fakeImages) GenerateImage(_ context.Context, _, _ string) ([]byte, providers.Usage, error) {
	return f.data, providers.Usage{TotalTokens: 0, EstimatedCostUSD: 0.04}, f.err
}

type fakeImageStore struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeImageStore) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type fakeQuotes struct {
	quotes []models.Quote
}

func (f fakeQuotes) ListActive(context.Context) ([]models.Quote, error) {
	return f.quotes, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []uint
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, item *models.ContentItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, item.ID)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
