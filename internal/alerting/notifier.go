package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification carries the alert context handed to delivery channels.
type Notification struct {
	AlertTS  time.Time
	SeriesID string
	Label    string
	Title    string
	Message  string
}

// Notifier delivers one alert to one channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewSlackNotifier constructs a Slack webhook notifier.
func NewSlackNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_slack").Logger(),
	}
}

// Notify posts the rendered alert text to the webhook.
func (n *SlackNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"text": renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info().Time("alert_ts", note.AlertTS).
		Str("series_id", note.SeriesID).
		Msg("alert sent to slack")
	return nil
}

// ConsoleNotifier writes alerts to stdout.
type ConsoleNotifier struct {
	out io.Writer
}

// NewConsoleNotifier constructs a console notifier. A nil writer defaults to
// stdout.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleNotifier{out: out}
}

// Notify prints the alert in a banner block.
func (n *ConsoleNotifier) Notify(_ context.Context, note Notification) error {
	_, err := fmt.Fprintf(n.out, "\n=== %s ===\n%s\n", note.Title, note.Message)
	return err
}

// MultiNotifier fans one alert out to every configured channel, collecting
// per-channel failures instead of stopping at the first.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers; nil entries are dropped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &MultiNotifier{notifiers: kept}
}

// Notify dispatches to all channels and joins any errors.
func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[" + note.Title + "]\n")
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.AlertTS.UTC().Format(time.RFC3339)))
	if note.Label != "" {
		builder.WriteString(fmt.Sprintf("Series: %s (%s)\n", note.Label, note.SeriesID))
	} else {
		builder.WriteString(fmt.Sprintf("Series: %s\n", note.SeriesID))
	}
	builder.WriteString(note.Message)
	return builder.String()
}

var _ Notifier = (*SlackNotifier)(nil)
var _ Notifier = (*ConsoleNotifier)(nil)
var _ Notifier = (*MultiNotifier)(nil)
