// Package telegram connects the dispatcher to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pacifica-bot/internal/bot"
	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/flow"
	tele "gopkg.in/telebot.v4"
)

// Channel names this transport in bot messages.
const Channel = "telegram"

// optionUnique routes inline button presses. The button data is the option
// value and is handled exactly like typed text.
const optionUnique = "opt"

const buttonsPerRow = 3

// Handler processes one chat message.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message) []bot.Reply
}

// Transport long-polls Telegram and delivers replies.
type Transport struct {
	bot     *tele.Bot
	handler Handler
	logger  *slog.Logger
	ctx     context.Context
}

// Settings configures a Transport.
type Settings struct {
	Token       string
	PollTimeout time.Duration
	// Offline builds the bot without contacting Telegram.
	Offline bool
}

// New creates a transport. Call Start to begin polling.
func New(ctx context.Context, s Settings, h Handler, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if s.PollTimeout <= 0 {
		s.PollTimeout = 10 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   s.Token,
		Poller:  &tele.LongPoller{Timeout: s.PollTimeout},
		Offline: s.Offline,
		OnError: func(err error, c tele.Context) {
			var userID int64
			if c != nil && c.Sender() != nil {
				userID = c.Sender().ID
			}
			logger.Error("Telegram handler error", "user_id", userID, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	t := &Transport{bot: b, handler: h, logger: logger, ctx: ctx}
	b.Handle(tele.OnText, t.onText)
	b.Handle(&tele.Btn{Unique: optionUnique}, t.onButton)
	return t, nil
}

// Start polls for updates until Stop is called.
func (t *Transport) Start() {
	t.logger.Info("Telegram transport started", "bot", t.bot.Me.Username)
	go t.bot.Start()
}

// Stop ends polling.
func (t *Transport) Stop() {
	t.bot.Stop()
	t.logger.Info("Telegram transport stopped")
}

// Notify sends r to the private chat of userID.
func (t *Transport) Notify(_ context.Context, userID int64, r bot.Reply) error {
	if _, err := t.bot.Send(tele.ChatID(userID), r.Text, sendOptions(r.Options)...); err != nil {
		return fmt.Errorf("telegram send to %d: %w", userID, err)
	}
	return nil
}

func (t *Transport) onText(c tele.Context) error {
	return t.reply(c, t.dispatch(c, c.Text()))
}

func (t *Transport) onButton(c tele.Context) error {
	replies := t.dispatch(c, c.Data())
	if err := c.Respond(); err != nil {
		t.logger.Warn("Failed to answer callback", "error", err)
	}
	return t.reply(c, replies)
}

var errNoSender = errors.New("update has no sender")

// dispatch hands the update to the handler. Only private chats are served
// since a flow may ask for a secret key.
func (t *Transport) dispatch(c tele.Context, text string) []bot.Reply {
	sender := c.Sender()
	if sender == nil {
		t.logger.Warn("Dropping update", "error", errNoSender)
		return nil
	}
	if chat := c.Chat(); chat != nil && chat.Type != tele.ChatPrivate {
		return []bot.Reply{{Text: "Please message me in a private chat."}}
	}
	return t.handler.Handle(t.ctx, messageFrom(sender, text))
}

func (t *Transport) reply(c tele.Context, replies []bot.Reply) error {
	for _, r := range replies {
		if err := c.Send(r.Text, sendOptions(r.Options)...); err != nil {
			return err
		}
	}
	return nil
}

func messageFrom(u *tele.User, text string) bot.Message {
	return bot.Message{
		UserID:  u.ID,
		Channel: Channel,
		Profile: domain.Profile{
			TelegramID: u.ID,
			Username:   u.Username,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
		},
		Text: text,
	}
}

func sendOptions(options []flow.Option) []any {
	if len(options) == 0 {
		return nil
	}
	return []any{markup(options)}
}

// markup renders options as rows of inline buttons.
func markup(options []flow.Option) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}

	rows := make([]tele.Row, 0, (len(options)+buttonsPerRow-1)/buttonsPerRow)
	for i := 0; i < len(options); i += buttonsPerRow {
		end := min(i+buttonsPerRow, len(options))
		btns := make([]tele.Btn, 0, end-i)
		for _, o := range options[i:end] {
			btns = append(btns, m.Data(o.Label, optionUnique, o.Value))
		}
		rows = append(rows, m.Row(btns...))
	}
	m.Inline(rows...)
	return m
}
