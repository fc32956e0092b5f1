package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-reminder/internal/config"
	"group-reminder/internal/model"
	"group-reminder/internal/repository"
	"group-reminder/internal/service"
	"group-reminder/internal/timer"
)

const chatID int64 = -100200300

var (
	alice = &tgbotapi.User{ID: 11, UserName: "Alice"}
	bob   = &tgbotapi.User{ID: 22, UserName: "bob"}
	carol = &tgbotapi.User{ID: 33, FirstName: "Carol"}
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests int
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeClient) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeClient) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestBot(t *testing.T) (*Bot, *fakeClient) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.db"), zerolog.Nop())
	require.NoError(t, err)

	tasks := repository.NewTaskRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	fc := &fakeClient{}
	sender := NewSender(fc, 1000, zerolog.Nop())
	describer := service.NewDescriber(tasks, assignments, HTMLFormatter{}, time.UTC)
	cron := timer.NewCronTimer(repository.NewTimerJobRepository(db), time.UTC, zerolog.Nop())
	reminders := service.NewReminderService(tasks, cron, describer, sender, service.DefaultJitterRatio, zerolog.Nop())
	rotation := service.NewRotationService(assignments, repository.NewAssigneeRepository(db), zerolog.Nop())
	taskSvc := service.NewTaskService(tasks, repository.NewRecordRepository(db), rotation, reminders, zerolog.Nop())

	b := newBot(fc, sender, Deps{
		Tasks:     taskSvc,
		Reminders: reminders,
		Describer: describer,
		Defaults: config.TaskDefaults{
			RemindOffset:   -24 * time.Hour,
			RemindInterval: 3 * time.Hour,
			RecurType:      model.RecurRegular,
			RecurInterval:  48 * time.Hour,
		},
		Location: time.UTC,
	}, zerolog.Nop())
	b.now = func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }
	return b, fc
}

// command builds a group message; every @word becomes a mention entity.
func command(from *tgbotapi.User, text string) *tgbotapi.Message {
	cmdLen := strings.IndexByte(text, ' ')
	if cmdLen < 0 {
		cmdLen = len(text)
	}
	msg := &tgbotapi.Message{
		Text:     text,
		From:     from,
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "supergroup"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
	offset := 0
	for i, word := range strings.Split(text, " ") {
		if i > 0 {
			offset++
		}
		n := len(utf16.Encode([]rune(word)))
		if strings.HasPrefix(word, "@") {
			msg.Entities = append(msg.Entities, tgbotapi.MessageEntity{Type: "mention", Offset: offset, Length: n})
		}
		offset += n
	}
	return msg
}

func run(t *testing.T, b *Bot, fc *fakeClient, from *tgbotapi.User, text string) string {
	t.Helper()
	require.NoError(t, b.handleMessage(context.Background(), command(from, text)))
	return fc.last(t).Text
}

func TestAddDescribesTask(t *testing.T) {
	t.Parallel()
	b, fc := newTestBot(t)

	out := run(t, b, fc, alice, "/add 倒垃圾 明天 20:00")
	assert.Equal(t, "🆕 已添加 [倒垃圾] 在明天20:00前完成，提前1天开始提醒，每3小时提醒一次，每2天重复，无指派", out)
	assert.Equal(t, chatID, fc.last(t).ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, fc.last(t).ParseMode)

	out = run(t, b, fc, alice, "/add 倒垃圾 后天 8:00")
	assert.Equal(t, "本群已有同名任务。", out)

	out = run(t, b, fc, alice, "/add 浇花 2026-10-25 -t onfinish -r 3d -o 0 -i 1h")
	assert.Contains(t, out, "到期时开始提醒，每1小时提醒一次，完成3天后重复")

	out = run(t, b, fc, alice, "/add 缺时间")
	assert.Contains(t, out, "用法")
	out = run(t, b, fc, alice, "/add 坏 明天 -t sometimes")
	assert.Contains(t, out, "用法")
}

func TestRotationCommands(t *testing.T) {
	t.Parallel()
	b, fc := newTestBot(t)
	run(t, b, fc, alice, "/add 倒垃圾 明天 20:00")

	out := run(t, b, fc, alice, "/assign 倒垃圾 @Alice @bob")
	assert.Equal(t, "[倒垃圾] 依次由 @alice @bob 完成，当前轮到 @alice", out)

	out = run(t, b, fc, alice, "/finish")
	assert.Contains(t, out, "✅ 已完成！下一次：[倒垃圾] 在本周四20:00前完成")
	assert.Contains(t, out, "当前轮到 @bob")

	out = run(t, b, fc, bob, "/skip")
	assert.Equal(t, "[倒垃圾] 依次由 @alice @bob 完成，当前轮到 @alice", out)

	out = run(t, b, fc, carol, "/finish")
	assert.Equal(t, "找不到对应的任务。", out)

	out = run(t, b, fc, alice, "/unassign 倒垃圾 @bob")
	assert.Equal(t, "[倒垃圾] 依次由 @alice 完成，当前轮到 @alice", out)

	out = run(t, b, fc, alice, "/skip 倒垃圾")
	assert.Equal(t, "少于两人轮值的任务无法跳过。", out)

	out = run(t, b, fc, alice, "/history 倒垃圾")
	assert.Contains(t, out, "2026-10-20 20:00 到期")
	assert.Contains(t, out, "负责人 @alice")
}

func TestEditCommands(t *testing.T) {
	t.Parallel()
	b, fc := newTestBot(t)
	run(t, b, fc, alice, "/add 倒垃圾 明天 20:00")

	out := run(t, b, fc, alice, "/due 倒垃圾 -s 1d")
	assert.Contains(t, out, "在后天20:00前完成")
	out = run(t, b, fc, alice, "/due 倒垃圾 --set 明天 21:30")
	assert.Contains(t, out, "在明天21:30前完成")
	out = run(t, b, fc, alice, "/due 倒垃圾")
	assert.Contains(t, out, "用法")

	out = run(t, b, fc, alice, "/remind 倒垃圾 -o -2h -i 30m")
	assert.Contains(t, out, "提前2小时开始提醒，每30分钟提醒一次")

	out = run(t, b, fc, alice, "/recur 倒垃圾 -t never")
	assert.Contains(t, out, "不重复")
	out = run(t, b, fc, alice, "/recur 倒垃圾")
	assert.Equal(t, "没有需要修改的内容。", out)
	out = run(t, b, fc, alice, "/remind 不存在 -i 1h")
	assert.Equal(t, "找不到对应的任务。", out)
}

func TestListAndDeleteByCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fc := newTestBot(t)
	run(t, b, fc, alice, "/add 倒垃圾 明天 20:00")

	run(t, b, fc, alice, "/ls")
	list := fc.last(t)
	assert.Contains(t, list.Text, "<b>本群任务</b>")
	markup, ok := list.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	deleteData := *markup.InlineKeyboard[0][1].CallbackData
	require.True(t, strings.HasPrefix(deleteData, cbDeletePrefix))
	taskID := strings.TrimPrefix(deleteData, cbDeletePrefix)

	cb := &tgbotapi.CallbackQuery{ID: "cb1", From: alice, Message: command(alice, "/ls"), Data: deleteData}
	require.NoError(t, b.handleCallback(ctx, cb))
	assert.Equal(t, "删除任务 [倒垃圾]？", fc.last(t).Text)

	// Another chat cannot delete it.
	foreign := &tgbotapi.CallbackQuery{ID: "cb2", From: alice, Data: cbConfirmPrefix + taskID,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}}}
	require.NoError(t, b.handleCallback(ctx, foreign))
	assert.Equal(t, "任务不存在或已被删除。", fc.last(t).Text)

	cb.Data = cbConfirmPrefix + taskID
	require.NoError(t, b.handleCallback(ctx, cb))
	assert.Equal(t, "🗑 已删除任务 [倒垃圾]", fc.last(t).Text)

	out := run(t, b, fc, alice, "/ls")
	assert.Contains(t, out, "本群还没有任务")
	assert.Equal(t, 3, fc.requests)
}

func TestFinishByCallbackRetiresOneOff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fc := newTestBot(t)
	run(t, b, fc, alice, "/add 交房租 明天 -t never")
	id, err := b.tasks.FindOne(ctx, repository.TaskFilter{Name: "交房租"})
	require.NoError(t, err)

	cb := &tgbotapi.CallbackQuery{ID: "cb", From: alice, Message: command(alice, "/ls"), Data: cbFinishPrefix + id}
	require.NoError(t, b.handleCallback(ctx, cb))
	assert.Equal(t, "✅ [交房租] 已完成，不再重复。", fc.last(t).Text)

	require.NoError(t, b.handleCallback(ctx, cb))
	assert.Equal(t, "任务不存在或已被删除。", fc.last(t).Text)
}

func TestNowDeliversReminders(t *testing.T) {
	t.Parallel()
	b, fc := newTestBot(t)
	run(t, b, fc, alice, "/now")
	assert.Equal(t, "本群没有需要提醒的任务。", fc.last(t).Text)

	run(t, b, fc, alice, "/add 倒垃圾&回收 明天 20:00")
	run(t, b, fc, alice, "/assign 倒垃圾&回收 @alice")
	before := fc.count()
	require.NoError(t, b.handleMessage(context.Background(), command(alice, "/now")))
	require.Equal(t, before+1, fc.count())
	out := fc.last(t).Text
	assert.True(t, strings.HasPrefix(out, "@alice "), out)
	assert.Contains(t, out, "倒垃圾&amp;回收")
	assert.Equal(t, chatID, fc.last(t).ChatID)
}

func TestUnknownCommandAndPlainText(t *testing.T) {
	t.Parallel()
	b, fc := newTestBot(t)
	out := run(t, b, fc, alice, "/dance")
	assert.Contains(t, out, "/help")

	plain := &tgbotapi.Message{Text: "hello", From: alice, Chat: &tgbotapi.Chat{ID: chatID}}
	require.NoError(t, b.handleMessage(context.Background(), plain))
	assert.Equal(t, 1, fc.count())

	out = run(t, b, fc, alice, "/help")
	assert.Contains(t, out, "/assign")
}

func TestCancelDeleteKeepsTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fc := newTestBot(t)
	run(t, b, fc, alice, "/add 倒垃圾 明天 20:00")

	run(t, b, fc, alice, "/rm 倒垃圾")
	markup, ok := fc.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	cancelData := *markup.InlineKeyboard[0][1].CallbackData
	require.True(t, strings.HasPrefix(cancelData, cbCancelPrefix))

	msg := command(alice, "/rm 倒垃圾")
	msg.MessageID = 7
	require.NoError(t, b.handleCallback(ctx, &tgbotapi.CallbackQuery{ID: "cb", From: alice, Message: msg, Data: cancelData}))
	assert.Equal(t, "已取消删除。", fc.last(t).Text)
	// Callback ack plus the keyboard edit.
	assert.Equal(t, 2, fc.requests)

	out := run(t, b, fc, alice, "/ls")
	assert.Contains(t, out, "[倒垃圾] 在明天20:00前完成")
}

func TestListDescribesEveryTask(t *testing.T) {
	t.Parallel()
	b, fc := newTestBot(t)
	run(t, b, fc, alice, "/add 倒垃圾 明天 20:00")
	run(t, b, fc, alice, "/add 浇花 后天 8:00 -t never")
	run(t, b, fc, alice, "/assign 浇花 @bob")

	run(t, b, fc, alice, "/ls")
	list := fc.last(t)
	lines := strings.Split(list.Text, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "• [倒垃圾] 在明天20:00前完成"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "• [浇花] 在后天08:00前完成"), lines[2])
	assert.Contains(t, lines[2], "不重复，依次由 @bob 完成，当前轮到 @bob")

	markup, ok := list.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, markup.InlineKeyboard, 2)
}
