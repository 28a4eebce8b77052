// Package telegram connects the chat handler to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timebot/internal/bot"
	"timebot/internal/core"
	"timebot/internal/log"
	"timebot/internal/middleware/ratelimit"
)

const (
	pollTimeoutSeconds = 60
	rateLimitedText    = "Too many requests, slow down a little."
)

// API is the subset of *tgbotapi.BotAPI the adapter drives.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Adapter struct {
	api     API
	handler *bot.Handler
	limiter *ratelimit.Limiter
	logger  *log.Logger
}

// NewBotAPI authenticates against Telegram with the given token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return api, nil
}

// New builds an adapter. limiter may be nil to disable per-user limiting.
func New(api API, handler *bot.Handler, limiter *ratelimit.Limiter, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Adapter{
		api:     api,
		handler: handler,
		limiter: limiter,
		logger:  logger.WithComponent(log.ComponentTelegram),
	}
}

// Run long-polls for updates until ctx is cancelled. Updates are handled
// one at a time so a user's messages are processed in order.
func (a *Adapter) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := a.api.GetUpdatesChan(cfg)
	defer a.api.StopReceivingUpdates()

	a.logger.Info("Telegram polling started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			a.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate routes a single update to the handler and sends the reply.
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		a.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		a.handleMessage(ctx, update.Message)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user := core.UserID(msg.From.ID)
	ctx = log.IntoContext(ctx, a.logger.With(log.FieldUserID, msg.From.ID))

	if !a.allow(user) {
		a.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, rateLimitedText))
		return
	}

	reply := a.handler.HandleMessage(ctx, user, msg.Text)
	if reply.Text == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply.Text)
	if len(reply.Buttons) > 0 {
		out.ReplyMarkup = keyboard(reply.Buttons)
	}
	a.send(ctx, out)
}

func (a *Adapter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	user := core.UserID(cb.From.ID)
	ctx = log.IntoContext(ctx, a.logger.With(log.FieldUserID, cb.From.ID))

	if !a.allow(user) {
		a.answer(ctx, tgbotapi.NewCallback(cb.ID, rateLimitedText))
		return
	}

	reply := a.handler.HandleCallback(ctx, user, cb.Data)
	// Always answer so the client stops showing the loading spinner.
	a.answer(ctx, tgbotapi.NewCallback(cb.ID, ""))

	if reply.Text == "" || cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	if reply.Edit {
		if len(reply.Buttons) > 0 {
			a.send(ctx, tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, reply.Text, keyboard(reply.Buttons)))
			return
		}
		a.send(ctx, tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, reply.Text))
		return
	}
	out := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Buttons) > 0 {
		out.ReplyMarkup = keyboard(reply.Buttons)
	}
	a.send(ctx, out)
}

func (a *Adapter) allow(user core.UserID) bool {
	if a.limiter == nil {
		return true
	}
	return a.limiter.AllowUser(int64(user))
}

func (a *Adapter) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := a.api.Send(c); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to send Telegram message", log.FieldError, err)
	}
}

func (a *Adapter) answer(ctx context.Context, c tgbotapi.CallbackConfig) {
	if _, err := a.api.Request(c); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Failed to answer callback query", log.FieldError, err)
	}
}

// keyboard lays buttons out one per row.
func keyboard(buttons []bot.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
