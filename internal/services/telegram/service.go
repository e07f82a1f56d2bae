// Package telegram provides Telegram notification services.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// apiResponse is the envelope the Bot API wraps every reply in.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int `json:"message_id"`
	} `json:"result"`
}

// SendNotification reports the outcome of an action via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	logger := s.logger.With().
		Str("chat_id", cfg.ChatID).
		Str("action", string(msg.Action)).
		Logger()
	logger.Debug().Bool("success", msg.Success).Msg("sending Telegram notification")

	reply, err := s.sendMessage(ctx, cfg, sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      s.formatMessage(msg),
		ParseMode: "HTML",
	})
	if err != nil {
		result.Error = err
		return result, nil
	}

	result.MessageSent = true
	result.MessageID = reply.Result.MessageID
	logger.Info().Int("message_id", result.MessageID).Msg("Telegram notification sent")

	return result, nil
}

func (s *Impl) sendMessage(ctx context.Context, cfg models.TelegramConfig, body sendMessageRequest) (*apiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Error replies carry a description; a body that fails to decode is
	// only fatal when the status already says so.
	var reply apiResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&reply)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && reply.Description != "" {
			return nil, fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, reply.Description)
		}
		return nil, fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return &reply, nil
}

func (s *Impl) formatMessage(msg models.TelegramMessage) string {
	var b strings.Builder

	status, verdict := "✅", "Succeeded"
	if !msg.Success {
		status, verdict = "❌", "Failed"
	}
	fmt.Fprintf(&b, "%s <b>%s %s</b>\n\n", status, actionTitle(msg.Action), verdict)

	fmt.Fprintf(&b, "🖥 <b>Host:</b> %s (%s)\n", escapeHTML(msg.Host), escapeHTML(msg.OS))
	if msg.Command != "" {
		fmt.Fprintf(&b, "💻 <b>Command:</b> <code>%s</code>\n", escapeHTML(msg.Command))
	}
	fmt.Fprintf(&b, "⏰ <b>Started:</b> %s\n", msg.StartTime.Format(time.DateTime))
	fmt.Fprintf(&b, "⏱ <b>Duration:</b> %s\n", msg.Duration.Round(time.Millisecond))
	if msg.Outcome != models.OutcomeUnknown {
		fmt.Fprintf(&b, "📋 <b>Outcome:</b> %s\n", msg.Outcome)
	}
	if msg.RunID != "" {
		fmt.Fprintf(&b, "🆔 <b>Run:</b> <code>%s</code>\n", msg.RunID)
	}

	if !msg.Success {
		fmt.Fprintf(&b, "\n<b>⚠️ Error:</b>\n<code>%s</code>\n", escapeHTML(truncate(msg.ErrorMessage, maxErrorLength)))
	}

	return b.String()
}

// maxErrorLength keeps messages well below the 4096 character API limit.
const maxErrorLength = 1000

func actionTitle(kind models.ActionKind) string {
	switch kind {
	case models.ActionExec:
		return "Command"
	case models.ActionReboot:
		return "Reboot"
	case models.ActionShutdown:
		return "Shutdown"
	case models.ActionRegistry:
		return "Registry Query"
	case models.ActionDefender:
		return "Defender Query"
	case models.ActionTest:
		return "Connection Test"
	default:
		return "Action"
	}
}

// htmlEscaper covers the three characters Telegram's HTML mode requires
// to be escaped.
var htmlEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;", "&", "&amp;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
