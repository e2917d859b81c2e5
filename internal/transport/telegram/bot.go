// Package telegram is the chat front-end: it turns Telegram updates into reminder
// service calls and sends due reminders back to their owners.
package telegram

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/service"
)

const (
	cmdStart  = "start"
	cmdList   = "list"
	cmdEdit   = "edit_reminder"
	cmdDelete = "delete_reminder"
)

// editArgs matches "<position> <text> <YYYY-MM-DD HH:MM:SS>".
var editArgs = regexp.MustCompile(`^(\d+) (.+) (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})$`)

// API is the subset of *tg.BotAPI used by the bot.
type API interface {
	Send(c tg.Chattable) (tg.Message, error)
	Request(c tg.Chattable) (*tg.APIResponse, error)
}

// Bot routes chat messages to the reminder service.
type Bot struct {
	api API
	svc service.ReminderService
	loc *time.Location
	log *zap.Logger
	wg  sync.WaitGroup
}

// NewBot constructs a Bot. Dates typed by users are read in loc.
func NewBot(api API, svc service.ReminderService, loc *time.Location, log *zap.Logger) *Bot {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{api: api, svc: svc, loc: loc, log: log.Named("telegram")}
}

// RegisterCommands publishes the command menu.
func (b *Bot) RegisterCommands() error {
	_, err := b.api.Request(tg.NewSetMyCommands(botCommands...))
	return err
}

// Run handles updates, each in its own goroutine, until ctx is done or updates is closed.
// It waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context, updates <-chan tg.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			b.wg.Add(1)
			go func(m *tg.Message) {
				defer b.wg.Done()
				b.HandleMessage(ctx, m)
			}(u.Message)
		}
	}
}

// HandleMessage dispatches one incoming message.
func (b *Bot) HandleMessage(ctx context.Context, msg *tg.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case cmdStart:
			b.start(ctx, msg)
		case cmdList:
			b.list(ctx, msg)
		case cmdEdit:
			b.edit(ctx, msg)
		case cmdDelete:
			b.delete(ctx, msg)
		default:
			b.submit(ctx, msg)
		}
		return
	}
	if strings.TrimSpace(msg.Text) == btnMyReminders {
		b.list(ctx, msg)
		return
	}
	b.submit(ctx, msg)
}

func (b *Bot) start(ctx context.Context, msg *tg.Message) {
	usr := msg.From.ID
	b.svc.RegisterOwner(ctx, usr, msg.From.UserName)
	b.log.Info("start", zap.Int64("owner", usr))

	m := tg.NewMessage(msg.Chat.ID, txtWelcome)
	m.ParseMode = tg.ModeHTML
	m.ReplyMarkup = mainKeyboard
	b.send(m)
}

func (b *Bot) list(ctx context.Context, msg *tg.Message) {
	rs := b.svc.ListForOwner(ctx, msg.From.ID)
	b.reply(msg, renderList(rs, b.loc), false)
}

func (b *Bot) submit(ctx context.Context, msg *tg.Message) {
	usr := msg.From.ID
	b.reply(msg, txtAnalysing, false)

	sub, err := b.svc.Submit(ctx, usr, msg.Text)
	switch {
	case err == nil:
		b.reply(msg, renderConfirmation(sub.Reminder, b.loc), false)
	case errors.Is(err, errs.ErrLeadTime):
		b.log.Warn("submit rejected", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtLeadTime, true)
	case errors.Is(err, errs.ErrExtraction):
		b.log.Warn("submit not understood", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtNeedDate, true)
	default:
		b.log.Error("submit failed", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtSubmitFailed, true)
	}
}

func (b *Bot) delete(ctx context.Context, msg *tg.Message) {
	usr := msg.From.ID
	pos, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		b.log.Warn("delete: bad position", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtBadNumber, true)
		return
	}

	err = b.svc.DeleteByPosition(ctx, usr, pos)
	switch {
	case err == nil:
		b.log.Info("reminder deleted", zap.Int64("owner", usr), zap.Int("position", pos))
		b.reply(msg, txtDeleted, true)
	case errors.Is(err, errs.ErrPositionOutOfRange):
		b.log.Warn("delete: position out of range", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtBadNumber, true)
	case errors.Is(err, errs.ErrNotFound):
		b.log.Warn("delete: not found", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtNotFound, true)
	default:
		b.log.Error("delete failed", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtDeleteFailed, true)
	}
}

func (b *Bot) edit(ctx context.Context, msg *tg.Message) {
	usr := msg.From.ID
	pos, text, at, err := b.parseEdit(msg.CommandArguments())
	if err != nil {
		b.log.Warn("edit: bad arguments", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtBadEdit, true)
		return
	}

	err = b.svc.EditByPosition(ctx, usr, pos, text, at)
	switch {
	case err == nil:
		b.log.Info("reminder updated", zap.Int64("owner", usr), zap.Int("position", pos))
		b.reply(msg, txtUpdated, true)
	case errors.Is(err, errs.ErrPositionOutOfRange):
		b.log.Warn("edit: position out of range", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtBadNumber, true)
	case errors.Is(err, errs.ErrNotFound):
		b.log.Warn("edit: not found", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtNotFound, true)
	case errors.Is(err, errs.ErrLeadTime):
		b.log.Warn("edit rejected", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtLeadTime, true)
	case errors.Is(err, errs.ErrValidation):
		b.log.Warn("edit rejected", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtBadEdit, true)
	case errors.Is(err, errs.ErrQueue):
		b.log.Error("edit: reschedule failed", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtUpdatedNoResend, true)
	default:
		b.log.Error("edit failed", zap.Int64("owner", usr), zap.Error(err))
		b.reply(msg, txtEditFailed, true)
	}
}

func (b *Bot) parseEdit(args string) (int, string, time.Time, error) {
	m := editArgs.FindStringSubmatch(strings.TrimSpace(args))
	if m == nil {
		return 0, "", time.Time{}, errors.New("expected: <number> <text> <YYYY-MM-DD HH:MM:SS>")
	}
	pos, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", time.Time{}, err
	}
	at, err := time.ParseInLocation(editLayout, m[3], b.loc)
	if err != nil {
		return 0, "", time.Time{}, err
	}
	return pos, m[2], at, nil
}

func (b *Bot) reply(msg *tg.Message, text string, quote bool) {
	m := tg.NewMessage(msg.Chat.ID, text)
	if quote {
		m.ReplyToMessageID = msg.MessageID
	}
	b.send(m)
}

func (b *Bot) send(m tg.MessageConfig) {
	if _, err := b.api.Send(m); err != nil {
		b.log.Error("send message", zap.Int64("chat", m.ChatID), zap.Error(err))
	}
}
