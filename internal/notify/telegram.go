package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"shiftbook/backend/internal/domain"
)

const DefaultTelegramBaseURL = "https://api.telegram.org"

type TelegramConfig struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Location *time.Location
}

// Telegram sends plain-text messages through the Bot API sendMessage method.
type Telegram struct {
	httpClient *resty.Client
	chatID     string
	loc        *time.Location
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultTelegramBaseURL
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(fmt.Sprintf("%s/bot%s", base, cfg.BotToken)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &Telegram{
		httpClient: restyClient,
		chatID:     cfg.ChatID,
		loc:        loc,
	}
}

type sendMessageResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

type apiError struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (t *Telegram) SendAttendanceNotification(ctx context.Context, n domain.AttendanceNotification) error {
	return t.sendMessage(ctx, FormatAttendance(n, t.loc))
}

func (t *Telegram) SendRevenueNotification(ctx context.Context, n domain.RevenueNotification) error {
	return t.sendMessage(ctx, FormatRevenue(n))
}

func (t *Telegram) SendDailySummary(ctx context.Context, stats domain.DailyRevenueStats) error {
	return t.sendMessage(ctx, FormatDailySummary(stats))
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id": t.chatID,
		"text":    text,
	}

	result := new(sendMessageResponse)
	apiErr := new(apiError)

	resp, err := t.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		code := resp.StatusCode()
		if apiErr.ErrorCode != 0 {
			code = apiErr.ErrorCode
		}
		return fmt.Errorf("telegram api error: code=%d, message=%s", code, apiErr.Description)
	}
	if !result.OK {
		return fmt.Errorf("telegram api error: message not accepted")
	}
	return nil
}
