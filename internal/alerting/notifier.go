package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Stripstone/OfflineEbayMonitor/internal/classify"
	"github.com/Stripstone/OfflineEbayMonitor/internal/metrics"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

// Notification wraps one actionable verdict for delivery.
type Notification struct {
	RunID         string
	Verdict       classify.Verdict
	Channels      []string
	Now           time.Time
	AdditionalMsg string
}

// Notifier defines alert delivery.
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

// Notify calls sendMessage with the rendered verdict.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    Render(note),
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
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
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
		Str("outcome", string(note.Verdict.Outcome)).
		Str("item_id", note.Verdict.Listing.ItemID).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert sent (telegram)")
	return nil
}

// LogNotifier writes alerts to the structured log. It backs the "log" channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the verdict at info level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	v := note.Verdict
	ev := n.logger.Info().
		Str("run_id", note.RunID).
		Str("outcome", string(v.Outcome)).
		Str("item_id", v.Listing.ItemID).
		Str("title", v.Listing.Title)
	if total, ok := v.Listing.TotalPrice(); ok {
		ev = ev.Str("total", valuation.RoundMoney(total).StringFixed(2))
	}
	if v.Melt != nil {
		ev = ev.Str("margin", valuation.FormatPct(v.Melt.MarginPct))
	}
	if v.Prospect != nil {
		ev = ev.Int("score", v.Prospect.Score.Value)
	}
	ev.Msg("alert")
	return nil
}

// Fanout delivers to every notifier; one failure does not stop the rest.
type Fanout struct {
	notifiers map[string]Notifier
	order     []string
	logger    zerolog.Logger
}

// ErrNotDelivered reports that no configured channel accepted a notification.
var ErrNotDelivered = errors.New("alerting: no configured channel delivered")

// NewFanout constructs an empty Fanout.
func NewFanout(logger zerolog.Logger) *Fanout {
	return &Fanout{
		notifiers: make(map[string]Notifier),
		logger:    logger.With().Str("component", "alert_fanout").Logger(),
	}
}

// Add registers a notifier under a channel name.
func (f *Fanout) Add(channel string, n Notifier) {
	if n == nil {
		panic("alerting: nil notifier for channel " + channel)
	}
	if _, ok := f.notifiers[channel]; !ok {
		f.order = append(f.order, channel)
	}
	f.notifiers[channel] = n
}

// Channels lists registered channels in registration order.
func (f *Fanout) Channels() []string {
	return append([]string(nil), f.order...)
}

// Len reports how many channels are registered.
func (f *Fanout) Len() int {
	return len(f.order)
}

// Notify sends to the channels named in note.Channels, or all channels when none are named.
func (f *Fanout) Notify(ctx context.Context, note Notification) error {
	targets := note.Channels
	if len(targets) == 0 {
		targets = f.order
	}

	var (
		errs      []error
		delivered int
	)
	for _, ch := range targets {
		n, ok := f.notifiers[ch]
		if !ok {
			f.logger.Debug().Str("channel", ch).Msg("channel not configured, skipping")
			continue
		}
		if err := n.Notify(ctx, note); err != nil {
			metrics.NotificationsTotal.WithLabelValues(ch, "error").Inc()
			f.logger.Error().Err(err).Str("channel", ch).Msg("notifier failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
			continue
		}
		delivered++
		metrics.NotificationsTotal.WithLabelValues(ch, "ok").Inc()
	}
	if delivered == 0 {
		errs = append(errs, fmt.Errorf("%w (targets %v)", ErrNotDelivered, targets))
	}
	return errors.Join(errs...)
}

// NotifyChannel sends to a single channel and reports the delivery result.
func (f *Fanout) NotifyChannel(ctx context.Context, channel string, note Notification) error {
	n, ok := f.notifiers[channel]
	if !ok {
		return fmt.Errorf("alerting: channel %q not configured", channel)
	}
	return n.Notify(ctx, note)
}

// Render formats a verdict as plain notification text.
func Render(note Notification) string {
	v := note.Verdict
	rec := v.Listing
	now := note.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", v.Outcome, rec.Title))
	if total, ok := rec.TotalPrice(); ok {
		builder.WriteString(fmt.Sprintf("Total: $%s (item $%s + ship $%s)\n",
			valuation.RoundMoney(total).StringFixed(2),
			valuation.RoundMoney(rec.ItemPrice.Decimal).StringFixed(2),
			valuation.RoundMoney(rec.ShippingPrice.Decimal).StringFixed(2)))
	}
	if v.Melt != nil {
		r := v.Melt.Report()
		builder.WriteString(fmt.Sprintf("Qty: %d  Silver: %s ozt\n", r.Quantity, r.TotalContentOz.StringFixed(4)))
		builder.WriteString(fmt.Sprintf("Melt: $%s  Payout: $%s  Margin: %s\n",
			r.MeltValue.StringFixed(2), r.Payout.StringFixed(2), valuation.FormatPct(r.MarginPct)))
		builder.WriteString(fmt.Sprintf("Rec max total: $%s  Target: $%s\n",
			r.BreakEvenTotalPrice.StringFixed(2), r.TargetTotalPrice.StringFixed(2)))
	}
	if p := v.Prospect; p != nil && v.Outcome == classify.Pros {
		builder.WriteString(fmt.Sprintf("Floor: $%s  Dealer: $%s  Dealer profit: $%s (%s)\n",
			valuation.RoundMoney(p.Floor).StringFixed(2),
			valuation.RoundMoney(p.DealerValue).StringFixed(2),
			valuation.RoundMoney(p.DealerProfit).StringFixed(2),
			valuation.FormatPct(p.DealerMarginPct)))
		builder.WriteString(fmt.Sprintf("Score: %d [%s]\n", p.Score.Value, strings.Join(p.Score.Reasons, ", ")))
	}
	if rec.IdentityKey != "" {
		builder.WriteString(fmt.Sprintf("Key: %s\n", rec.IdentityKey))
	}
	builder.WriteString(fmt.Sprintf("Bids: %d", rec.BidCount))
	if mins, ok := rec.MinutesLeft(now); ok {
		builder.WriteString(fmt.Sprintf("  Ends in: %dm", mins))
	} else if rec.TimeLeft != "" {
		builder.WriteString(fmt.Sprintf("  Time left: %s", rec.TimeLeft))
	}
	builder.WriteString("\n")
	if rec.Link != "" {
		builder.WriteString(rec.Link + "\n")
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*Fanout)(nil)
)
