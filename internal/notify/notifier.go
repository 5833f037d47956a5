package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ideaboard/internal/pipeline"
)

// RunReport summarises one finished pipeline run for delivery.
type RunReport struct {
	RunID       string
	Stage       pipeline.Stage
	StartedAt   time.Time
	CompletedAt *time.Time
	Authors     int64
	Ideas       int64
	Errors      []string
}

// ReportFromStatus builds a run report out of a pipeline status snapshot.
func ReportFromStatus(status pipeline.Status) RunReport {
	return RunReport{
		RunID:       status.RunID,
		Stage:       status.Stage,
		StartedAt:   status.StartedAt,
		CompletedAt: status.CompletedAt,
		Authors:     status.Counts.Authors,
		Ideas:       status.Counts.Ideas,
		Errors:      status.Errors,
	}
}

// Notifier delivers run reports.
type Notifier interface {
	Notify(ctx context.Context, report RunReport) error
}

// TelegramNotifier pushes run reports through the Telegram Bot API.
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
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify sends the rendered report via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, report RunReport) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(report),
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

	n.logger.Info().Str("run_id", report.RunID).Str("stage", string(report.Stage)).
		Msg("run report sent (Telegram)")
	return nil
}

func renderMessage(report RunReport) string {
	builder := strings.Builder{}
	if report.Stage == pipeline.StageComplete {
		builder.WriteString("[ideaboard] pipeline run complete\n")
	} else {
		builder.WriteString("[ideaboard] pipeline run FAILED\n")
	}
	builder.WriteString(fmt.Sprintf("Run: %s\n", report.RunID))
	builder.WriteString(fmt.Sprintf("Started: %s\n", report.StartedAt.UTC().Format(time.RFC3339)))
	if report.CompletedAt != nil {
		builder.WriteString(fmt.Sprintf("Duration: %s\n", report.CompletedAt.Sub(report.StartedAt).Round(time.Second)))
	}
	builder.WriteString(fmt.Sprintf("Authors: %d, Ideas: %d\n", report.Authors, report.Ideas))
	if len(report.Errors) > 0 {
		builder.WriteString(fmt.Sprintf("Errors (%d):\n", len(report.Errors)))
		limit := len(report.Errors)
		if limit > 5 {
			limit = 5
		}
		for _, msg := range report.Errors[:limit] {
			builder.WriteString("- " + msg + "\n")
		}
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
