package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification carries the summary of one finished pipeline run.
type Notification struct {
	RunID      uuid.UUID
	Pipeline   string
	Range      string
	Processed  int
	Written    int
	Skipped    int
	SkipCounts map[string]int
	// Unavailable counts written rows without statistics, by cause.
	Unavailable map[string]int
	OutputPath  string
	Duration    time.Duration
}

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Policy decides whether a run summary is worth sending.
type Policy struct {
	MinSkipped   int
	NotifyAlways bool
}

// ShouldNotify reports whether note passes the policy.
func (p Policy) ShouldNotify(note Notification) bool {
	if p.NotifyAlways {
		return true
	}
	if p.MinSkipped <= 0 {
		return note.Skipped > 0
	}
	return note.Skipped >= p.MinSkipped
}

// TelegramNotifier posts run summaries through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
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
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
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
		Str("run_id", note.RunID.String()).
		Str("pipeline", note.Pipeline).
		Int("skipped", note.Skipped).
		Msg("run summary sent (Telegram)")
	return nil
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[pricetool %s]\n", note.Pipeline))
	builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	if note.Range != "" {
		builder.WriteString(fmt.Sprintf("Range: %s\n", note.Range))
	}
	builder.WriteString(fmt.Sprintf("Processed: %d\n", note.Processed))
	builder.WriteString(fmt.Sprintf("Written: %d\n", note.Written))
	builder.WriteString(fmt.Sprintf("Skipped: %d\n", note.Skipped))
	writeCounts(&builder, note.SkipCounts)
	if len(note.Unavailable) > 0 {
		builder.WriteString(fmt.Sprintf("Unavailable: %d\n", total(note.Unavailable)))
		writeCounts(&builder, note.Unavailable)
	}
	if note.Duration > 0 {
		builder.WriteString(fmt.Sprintf("Duration: %s\n", note.Duration.Round(time.Millisecond)))
	}
	if note.OutputPath != "" {
		builder.WriteString(fmt.Sprintf("Output: %s\n", note.OutputPath))
	}
	return builder.String()
}

func writeCounts(builder *strings.Builder, counts map[string]int) {
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		builder.WriteString(fmt.Sprintf("  %s: %d\n", reason, counts[reason]))
	}
}

func total(counts map[string]int) int {
	n := 0
	for _, v := range counts {
		n += v
	}
	return n
}

var _ Notifier = (*TelegramNotifier)(nil)
