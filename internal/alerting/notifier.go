package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"options-flow-scanner/internal/flow"
	"options-flow-scanner/internal/trend"
)

// Digest is the end-of-run summary pushed to chat channels.
type Digest struct {
	Date        time.Time
	Repeated    []flow.AggregateGroup
	LargeOrders []flow.OrderRecord
	Trend       []trend.Status
	Sentiment   map[flow.Sentiment]decimal.Decimal
	// TopN caps each section. Zero means no cap.
	TopN int
}

// Notifier delivers a digest.
type Notifier interface {
	Notify(ctx context.Context, digest Digest) error
}

// TelegramNotifier posts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram channel.
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

// Notify calls sendMessage with the rendered digest.
func (n *TelegramNotifier) Notify(ctx context.Context, digest Digest) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderDigest(digest),
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
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("date", digest.Date).
		Int("repeated", len(digest.Repeated)).
		Int("trend", len(digest.Trend)).
		Msg("digest sent (Telegram)")
	return nil
}

func dollars(d decimal.Decimal) string {
	return "$" + humanize.Comma(d.Round(0).IntPart())
}

func capped(n, topN int) int {
	if topN > 0 && n > topN {
		return topN
	}
	return n
}

// RenderDigest formats the digest as plain text.
func RenderDigest(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Options Flow] %s\n", d.Date.Format("2006-01-02"))

	if len(d.Sentiment) > 0 {
		fmt.Fprintf(&b, "Bullish %s / Bearish %s\n", dollars(d.Sentiment[flow.Bullish]), dollars(d.Sentiment[flow.Bearish]))
	}

	b.WriteString("\nRepeated flows:\n")
	if len(d.Repeated) == 0 {
		b.WriteString("  none\n")
	}
	for _, g := range d.Repeated[:capped(len(d.Repeated), d.TopN)] {
		fmt.Fprintf(&b, "  %s %s %s %s x%d %s\n",
			g.Key.Ticker, g.Key.Expiry.Format("01/02"), g.Key.Strike, g.Key.Type, g.HitCount, dollars(g.TotalDollar))
	}

	if len(d.LargeOrders) > 0 {
		b.WriteString("\nLarge orders:\n")
		for _, r := range d.LargeOrders[:capped(len(d.LargeOrders), d.TopN)] {
			fmt.Fprintf(&b, "  %s %s %s %s %s %s\n",
				r.Ticker, r.Side, r.Expiry.Format("01/02"), r.Strike.String(), r.Type, dollars(r.DollarAmount))
		}
	}

	if len(d.Trend) > 0 {
		b.WriteString("\nEMA trend:\n")
		for _, st := range d.Trend {
			fmt.Fprintf(&b, "  %s %s\n", st.Ticker, st.Summary())
		}
	}
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
