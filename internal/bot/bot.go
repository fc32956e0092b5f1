package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"group-reminder/internal/config"
	"group-reminder/internal/repository"
	"group-reminder/internal/service"
)

const (
	cbFinishPrefix  = "finish:"
	cbDeletePrefix  = "delete:"
	cbConfirmPrefix = "confirm:"
	cbCancelPrefix  = "cancel:"
)

const (
	btnFinish  = "✅ 完成"
	btnDelete  = "🗑"
	btnConfirm = "确认删除"
	btnCancel  = "取消"
)

// client is the part of the Telegram API used to send messages.
type client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type poller interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deps are the services the command layer drives.
type Deps struct {
	Tasks     *service.TaskService
	Reminders *service.ReminderService
	Describer *service.Describer
	Defaults  config.TaskDefaults
	Location  *time.Location
}

// Bot turns group chat commands into task operations. Each chat is a scope.
type Bot struct {
	client    client
	poller    poller
	sender    *Sender
	tasks     *service.TaskService
	reminders *service.ReminderService
	describer *service.Describer
	defaults  config.TaskDefaults
	loc       *time.Location
	log       zerolog.Logger
	now       func() time.Time
}

// NewAPI authorizes against Telegram.
func NewAPI(token string, log zerolog.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return api, nil
}

func New(api *tgbotapi.BotAPI, sender *Sender, deps Deps, log zerolog.Logger) *Bot {
	b := newBot(api, sender, deps, log)
	b.poller = api
	return b
}

func newBot(c client, sender *Sender, deps Deps, log zerolog.Logger) *Bot {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		client:    c,
		sender:    sender,
		tasks:     deps.Tasks,
		reminders: deps.Reminders,
		describer: deps.Describer,
		defaults:  deps.Defaults,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return errors.New("bot has no update source")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.poller.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.poller.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error().Err(err).Msg("handle callback")
			}
		case update.Message != nil:
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error().Err(err).Msg("handle message")
			}
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return nil
	}
	b.log.Info().Int64("chat", msg.Chat.ID).Int64("user", msg.From.ID).
		Str("command", msg.Command()).Str("args", msg.CommandArguments()).Msg("command")
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help":
		return b.reply(ctx, msg, helpText)
	case "add":
		return b.handleAdd(ctx, msg)
	case "rm":
		return b.handleRemove(ctx, msg)
	case "ls":
		return b.handleList(ctx, msg)
	case "finish":
		return b.handleFinish(ctx, msg)
	case "skip":
		return b.handleSkip(ctx, msg)
	case "due":
		return b.handleDue(ctx, msg)
	case "remind":
		return b.handleRemind(ctx, msg)
	case "recur":
		return b.handleRecur(ctx, msg)
	case "assign":
		return b.handleAssign(ctx, msg, true)
	case "unassign":
		return b.handleAssign(ctx, msg, false)
	case "now":
		return b.handleNow(ctx, msg)
	case "history":
		return b.handleHistory(ctx, msg)
	default:
		return b.reply(ctx, msg, "不支持的命令，发送 /help 查看用法。")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.client.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	chatID := cb.Message.Chat.ID
	data := cb.Data
	b.log.Info().Int64("chat", chatID).Int64("user", cb.From.ID).Str("data", data).Msg("callback")

	switch {
	case strings.HasPrefix(data, cbFinishPrefix):
		task, ok := b.callbackTask(ctx, chatID, strings.TrimPrefix(data, cbFinishPrefix))
		if !ok {
			return b.send(ctx, chatID, "任务不存在或已被删除。", nil)
		}
		return b.finish(ctx, chatID, task.ID)
	case strings.HasPrefix(data, cbDeletePrefix):
		task, ok := b.callbackTask(ctx, chatID, strings.TrimPrefix(data, cbDeletePrefix))
		if !ok {
			return b.send(ctx, chatID, "任务不存在或已被删除。", nil)
		}
		return b.askDeleteConfirmation(ctx, chatID, task.ID, task.Name)
	case strings.HasPrefix(data, cbConfirmPrefix):
		task, ok := b.callbackTask(ctx, chatID, strings.TrimPrefix(data, cbConfirmPrefix))
		if !ok {
			return b.send(ctx, chatID, "任务不存在或已被删除。", nil)
		}
		return b.delete(ctx, chatID, task.ID, task.Name)
	case strings.HasPrefix(data, cbCancelPrefix):
		b.clearKeyboard(chatID, cb.Message.MessageID)
		return b.send(ctx, chatID, "已取消删除。", nil)
	default:
		return nil
	}
}

// callbackTask loads an active task and checks it belongs to the chat.
func (b *Bot) callbackTask(ctx context.Context, chatID int64, taskID string) (taskRef, bool) {
	task, err := b.tasks.Get(ctx, taskID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			b.log.Error().Err(err).Str("task", taskID).Msg("load task for callback")
		}
		return taskRef{}, false
	}
	if task.Scope != scopeOf(chatID) {
		b.log.Warn().Str("task", taskID).Int64("chat", chatID).Msg("callback for task of another chat")
		return taskRef{}, false
	}
	return taskRef{ID: task.ID, Name: task.Name}, true
}

type taskRef struct {
	ID   string
	Name string
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, taskID, name string) error {
	text := fmt.Sprintf("删除任务 [%s]？", escape(name))
	return b.send(ctx, chatID, text, confirmKeyboard(taskID))
}

// clearKeyboard removes the inline buttons of a message so they cannot be pressed again.
func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := b.client.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)); err != nil {
		b.log.Warn().Err(err).Int64("chat", chatID).Int("message", messageID).Msg("clear keyboard")
	}
}

func (b *Bot) reply(ctx context.Context, msg *tgbotapi.Message, text string) error {
	return b.send(ctx, msg.Chat.ID, text, nil)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, markup any) error {
	return b.sender.send(ctx, chatID, text, markup)
}

// userError replies with errorText(err).
func (b *Bot) userError(ctx context.Context, msg *tgbotapi.Message, err error) error {
	return b.reply(ctx, msg, b.errorText(err))
}

// errorText renders store errors for chat users; anything else is logged.
func (b *Bot) errorText(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "找不到对应的任务。"
	case errors.Is(err, repository.ErrAmbiguousMatch):
		return "匹配到多个任务，请指明任务名。"
	case errors.Is(err, repository.ErrDuplicateName):
		return "本群已有同名任务。"
	case errors.Is(err, repository.ErrInvalidValue), errors.Is(err, repository.ErrInvalidAttribute):
		return "参数无效：" + escape(err.Error())
	case errors.Is(err, service.ErrNoAssignees):
		return "该任务没有指派任何人。"
	default:
		b.log.Error().Err(err).Msg("command failed")
		return "操作失败，请稍后再试。"
	}
}

func scopeOf(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func taskListKeyboard(tasks []taskRef) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnFinish+" "+shortName(t.Name, 20), cbFinishPrefix+t.ID),
			tgbotapi.NewInlineKeyboardButtonData(btnDelete, cbDeletePrefix+t.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard(taskID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirm, cbConfirmPrefix+taskID),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancelPrefix+taskID),
		),
	)
}

func shortName(name string, maxLen int) string {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}
