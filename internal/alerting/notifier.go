package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries the context of one circuit-breaker rejection.
type Notification struct {
	Pair         string
	Spot         decimal.Decimal
	Average      decimal.Decimal
	DeviationBps int64
	MaxBps       int64
	IsDrop       bool
	OccurredAt   time.Time
	Channels     []string
}

// Notifier delivers rejection alerts.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered message via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("pair", note.Pair).
		Int64("deviation_bps", note.DeviationBps).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("rejection alert sent")
	return nil
}

func renderMessage(note Notification) string {
	direction := "rise"
	if note.IsDrop {
		direction = "drop"
	}

	builder := strings.Builder{}
	builder.WriteString("[feed-sentinel] quote rejected\n")
	builder.WriteString(fmt.Sprintf("Pair: %s\n", note.Pair))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.OccurredAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Spot: %s\n", note.Spot.String()))
	builder.WriteString(fmt.Sprintf("Average: %s\n", note.Average.String()))
	builder.WriteString(fmt.Sprintf("Deviation: %d bps %s (bound %d bps)\n", note.DeviationBps, direction, note.MaxBps))
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
