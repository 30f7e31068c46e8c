// Package notify sends short operator alerts. Delivery is best effort.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Notifier interface {
	// Notify queues text for delivery and returns immediately.
	Notify(ctx context.Context, text string)
	// Wait blocks until queued messages have been attempted.
	Wait()
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

func (Nop) Wait() {}

const DefaultBaseURL = "https://api.telegram.org"

type Telegram struct {
	endpoint   string
	token      string
	chatID     string
	httpClient *http.Client
	log        *zap.Logger
	wg         sync.WaitGroup
}

// New returns a Telegram notifier, or Nop when token or chatID is empty.
func New(baseURL, token, chatID string, log *zap.Logger) Notifier {
	if token == "" || chatID == "" {
		return Nop{}
	}
	return NewTelegram(baseURL, token, chatID, log)
}

func NewTelegram(baseURL, token, chatID string, log *zap.Logger) *Telegram {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		// same layout as tgbotapi.APIEndpoint: token, then method
		endpoint:   baseURL + "/bot%s/%s",
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	// detach from the caller's cancellation; the caller is usually a request
	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.Send(ctx, text); err != nil {
			t.log.Warn("telegram notify failed", zap.Error(err))
		}
	}()
}

// Send delivers text synchronously.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if _, err := t.bot(ctx).Send(t.message(text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// bot builds a client bound to ctx. The struct is filled directly so that
// no getMe round trip happens per message.
func (t *Telegram) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  t.token,
		Buffer: 100,
		Client: ctxClient{ctx: ctx, http: t.httpClient},
	}
	bot.SetAPIEndpoint(t.endpoint)
	return bot
}

// message addresses a numeric chat id, or a channel given as @name.
func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(t.chatID, text)
}

// Wait blocks until queued messages have been attempted.
func (t *Telegram) Wait() {
	t.wg.Wait()
}

// ctxClient attaches a context to the requests tgbotapi issues.
type ctxClient struct {
	ctx  context.Context
	http *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req.WithContext(c.ctx))
}
