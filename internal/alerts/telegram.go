package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-probe-bot/internal/config"
	"order-probe-bot/internal/market"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

// Notifier delivers operator alerts.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	http    *resty.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, 10*time.Second)
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, timeout time.Duration) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		log: log,
	}
}

type sendResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	var result sendResult
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": t.chatID,
			"text":    message,
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return err
	}
	if resp.IsError() {
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode(), body)
	}
	if !result.OK {
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = "unknown telegram error"
		}
		return fmt.Errorf("telegram send failed: %s", desc)
	}
	return nil
}

// StopMessage describes an algorithm that stopped for good.
func StopMessage(exchange, pair, reason string) string {
	if reason == "" {
		reason = "no reason given"
	}
	return fmt.Sprintf("order-probe stopped on %s %s: %s", exchange, market.NormalizePair(pair), reason)
}

// OrderMessage describes a terminal order update.
func OrderMessage(order market.Order) string {
	return fmt.Sprintf("order %s %s %s %s@%s on %s: %s (filled %s)",
		order.ID,
		order.Side,
		market.NormalizePair(order.Pair),
		order.Amount,
		order.LimitPrice,
		order.Exchange,
		order.Status,
		order.Filled,
	)
}
