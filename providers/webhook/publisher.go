package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"content-hand/config"
	"content-hand/models"
)

// Publisher übergibt freigegebene Artikel per HTTP-POST an das CMS.
type Publisher struct {
	endpoint string
	token    string
	client   *http.Client
	Logger   *zap.Logger
}

// NewPublisher erstellt einen Publisher aus der Konfiguration.
func NewPublisher(cfg *config.Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		endpoint: cfg.PublishTargetURL,
		token:    cfg.PublishTargetToken,
		client:   &http.Client{Timeout: 30 * time.Second},
		Logger:   logger,
	}
}

type publishPayload struct {
	ID               uint       `json:"id"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	MetaDescription  string     `json:"meta_description"`
	FeaturedImageURL string     `json:"featured_image_url"`
	Keywords         []string   `json:"keywords"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
}

// Publish sendet das Item an das Publish-Ziel. Jeder Status außer 2xx ist ein Fehler.
func (p *Publisher) Publish(ctx context.Context, item *models.ContentItem) error {
	if p.endpoint == "" {
		return fmt.Errorf("publish target not configured")
	}
	payload, err := json.Marshal(publishPayload{
		ID:               item.ID,
		Title:            item.Title,
		Body:             item.Body,
		MetaDescription:  item.MetaDescription,
		FeaturedImageURL: item.FeaturedImageURL,
		Keywords:         item.TargetKeywords,
		ScheduledAt:      item.ScheduledAt,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.Logger.Warn("Publish target rejected content",
			zap.Uint("content_id", item.ID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return fmt.Errorf("publish target returned %d", resp.StatusCode)
	}
	return nil
}
