package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"content-hand/config"
)

// maxMessageLen ist das Telegram-Limit für Nachrichten.
const maxMessageLen = 4096

// Notifier sendet Nachrichten über die Bot-API in einen Telegram-Chat.
type Notifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
}

// NewNotifier erstellt einen Notifier aus der Konfiguration.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{
		baseURL:  strings.TrimRight(cfg.TelegramBaseURL, "/"),
		botToken: cfg.TelegramBotToken,
		chatID:   cfg.TelegramChatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify schickt eine Textnachricht; zu lange Nachrichten werden gekürzt.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if r := []rune(message); len(r) > maxMessageLen {
		message = string(r[:maxMessageLen-1]) + "…"
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", message)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}
