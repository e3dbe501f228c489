package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMessageLen = 4096
	telegramMaxCaptionLen = 1024
	telegramPollTimeout   = 30
)

// BotCommands is the command menu published to Telegram.
var BotCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start learning"},
	{Command: "learn", Description: "Choose a topic, e.g. /learn Python"},
	{Command: "quiz", Description: "Take a quiz on your current topic"},
	{Command: "progress", Description: "Show your mastery per topic"},
	{Command: "topics", Description: "Learning history and recommendations"},
	{Command: "export", Description: "Download your progress as a spreadsheet"},
	{Command: "help", Description: "Show available commands"},
}

// TelegramChannel implements the Channel interface for the Telegram Bot API.
type TelegramChannel struct {
	bot      *tgbotapi.BotAPI
	stop     chan struct{}
	stopOnce sync.Once
}

type telegramOptions struct {
	endpoint string
	client   *http.Client
}

// TelegramOption configures a TelegramChannel.
type TelegramOption func(*telegramOptions)

// WithTelegramEndpoint overrides the Bot API endpoint format, e.g.
// "http://localhost:8081/bot%s/%s".
func WithTelegramEndpoint(endpoint string) TelegramOption {
	return func(o *telegramOptions) { o.endpoint = endpoint }
}

// WithTelegramHTTPClient sets the HTTP client used for Bot API calls.
func WithTelegramHTTPClient(client *http.Client) TelegramOption {
	return func(o *telegramOptions) { o.client = client }
}

// NewTelegramChannel creates a Telegram channel adapter. It calls getMe to
// verify the token.
func NewTelegramChannel(token string, opts ...TelegramOption) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (TUTOR_TELEGRAM_BOT_TOKEN)")
	}

	o := telegramOptions{
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: (telegramPollTimeout + 30) * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	return &TelegramChannel{bot: bot, stop: make(chan struct{})}, nil
}

// SyncCommands publishes BotCommands as the bot's command menu.
func (t *TelegramChannel) SyncCommands() error {
	if _, err := t.bot.Request(tgbotapi.NewSetMyCommands(BotCommands...)); err != nil {
		return fmt.Errorf("setting Telegram commands: %w", err)
	}
	return nil
}

func (t *TelegramChannel) Send(ctx context.Context, msg OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid Telegram chat id %q: %w", msg.ChatID, err)
	}

	if msg.Document != nil {
		return t.sendDocument(ctx, chatID, msg)
	}

	parts := SplitMessage(msg.Text, telegramMaxMessageLen)
	for i, part := range parts {
		m := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 && len(msg.Buttons) > 0 {
			m.ReplyMarkup = inlineKeyboard(msg.Buttons)
		}
		if _, err := t.bot.Send(m); err != nil {
			return fmt.Errorf("sending Telegram message: %w", err)
		}
	}
	return nil
}

func (t *TelegramChannel) sendDocument(ctx context.Context, chatID int64, msg OutboundMessage) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: msg.Document.Name, Bytes: msg.Document.Data})
	caption := msg.Text
	if len(caption) > telegramMaxCaptionLen {
		caption = ""
	}
	doc.Caption = caption
	if _, err := t.bot.Send(doc); err != nil {
		return fmt.Errorf("sending Telegram document: %w", err)
	}

	if caption == "" && msg.Text != "" {
		return t.Send(ctx, OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Text: msg.Text})
	}
	return nil
}

func inlineKeyboard(buttons []Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Payload)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Start begins long polling. Updates from one chat are handled in order, one
// at a time; different chats are handled concurrently.
func (t *TelegramChannel) Start(ctx context.Context, handler Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := t.bot.GetUpdatesChan(u)

	go t.pollLoop(ctx, updates, handler)
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.bot.StopReceivingUpdates()
	})
	return nil
}

func (t *TelegramChannel) pollLoop(ctx context.Context, updates tgbotapi.UpdatesChannel, handler Handler) {
	slog.Info("Telegram long-polling started")
	defer slog.Info("Telegram long-polling stopped")

	queue := newChatQueue(handler)
	defer queue.wait()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return
		case <-t.stop:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			msg, ok := mapTelegramUpdate(u)
			if !ok {
				continue
			}
			if msg.Kind == KindCallback {
				t.ackCallback(msg.CallbackID)
			}
			queue.push(ctx, msg)
		}
	}
}

// ackCallback stops the client's loading spinner on the pressed button.
func (t *TelegramChannel) ackCallback(id string) {
	if _, err := t.bot.Request(tgbotapi.NewCallback(id, "")); err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			slog.Warn("Telegram callback ack rejected", "code", tgErr.Code, "error", tgErr.Message)
			return
		}
		slog.Warn("Telegram callback ack failed", "error", err)
	}
}

func mapTelegramUpdate(u tgbotapi.Update) (InboundMessage, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return InboundMessage{}, false
		}
		return InboundMessage{
			Channel:    ChannelTelegram,
			ChatID:     strconv.FormatInt(cb.Message.Chat.ID, 10),
			UserID:     cb.From.ID,
			Kind:       KindCallback,
			Payload:    cb.Data,
			CallbackID: cb.ID,
			FirstName:  cb.From.FirstName,
			Username:   cb.From.UserName,
		}, true
	}

	m := u.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return InboundMessage{}, false
	}

	msg := InboundMessage{
		Channel:   ChannelTelegram,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		UserID:    m.From.ID,
		Kind:      KindText,
		Text:      text,
		FirstName: m.From.FirstName,
		Username:  m.From.UserName,
	}
	if m.IsCommand() {
		msg.Kind = KindCommand
		msg.Command = strings.ToLower(m.Command())
		msg.Args = strings.TrimSpace(m.CommandArguments())
	}
	return msg, true
}
