// internal/notify/telegram.go
// Telegram Bot API sendMessage delivery
// SECURITY: the bot token is part of the URL path and is scrubbed from every error

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aspnmy/recon_reporter/internal/core"
	"github.com/aspnmy/recon_reporter/pkg/logger"
)

const redactedToken = "<redacted>"

// maxMessageRunes is the Bot API limit on sendMessage text
const maxMessageRunes = 4096

// TelegramNotifier posts reports to a chat through the Bot API
type TelegramNotifier struct {
	apiURL    string
	token     string
	chatID    string
	parseMode string
	client    *http.Client
}

// apiResponse is the Bot API envelope
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegramNotifier creates a Bot API notifier
func NewTelegramNotifier(cfg core.TelegramConfig, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		apiURL:    apiURL,
		token:     cfg.Token,
		chatID:    cfg.ChatID,
		parseMode: cfg.ParseMode,
		client:    &http.Client{Timeout: timeout},
	}
}

// Kind returns notifier kind
func (t *TelegramNotifier) Kind() string {
	return "telegram"
}

// Deliver sends report as one or more messages of at most maxMessageRunes.
// Non-200 responses become *DeliveryError. A chunk rejected for bad markup
// is resent once as plain text.
func (t *TelegramNotifier) Deliver(ctx context.Context, report string) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("%w: %w: telegram token or chat id missing", ErrDeliveryFailed, ErrNotConfigured)
	}

	chunks := splitMessage(report, maxMessageRunes)
	for i, chunk := range chunks {
		err := t.send(ctx, chunk, t.parseMode)
		if t.parseMode != "" && isParseError(err) {
			logger.Warn("Telegram rejected markup, resending as plain text",
				logger.Int("part", i+1),
				logger.Err(err),
			)
			err = t.send(ctx, chunk, "")
		}
		if err != nil {
			return err
		}
	}

	logger.Debug("Report delivered",
		logger.String("notifier", t.Kind()),
		logger.String("chat_id", t.chatID),
		logger.Int("parts", len(chunks)),
	)
	return nil
}

func (t *TelegramNotifier) send(ctx context.Context, text, parseMode string) error {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	if parseMode != "" {
		form.Set("parse_mode", parseMode)
	}

	endpoint := t.apiURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, t.redact(err.Error()))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, t.redact(err.Error()))
	}
	defer resp.Body.Close()

	// Bot API bodies are small; cap reads anyway
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope apiResponse
	_ = json.Unmarshal(body, &envelope)

	if resp.StatusCode != http.StatusOK {
		reason := envelope.Description
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return &DeliveryError{Status: resp.StatusCode, Reason: t.redact(reason)}
	}
	return nil
}

func isParseError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) &&
		de.Status == http.StatusBadRequest &&
		strings.Contains(de.Reason, "can't parse entities")
}

// splitMessage cuts text at line ends into chunks of at most limit runes.
// Lines longer than limit are cut mid-line. Concatenating the chunks
// yields text.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			r := []rune(line)
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
			n -= limit
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

func (t *TelegramNotifier) redact(s string) string {
	if t.token == "" {
		return s
	}
	s = strings.ReplaceAll(s, t.token, redactedToken)
	// escaped form, as printed by *url.Error
	return strings.ReplaceAll(s, url.PathEscape(t.token), redactedToken)
}
