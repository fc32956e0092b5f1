package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-reminder/internal/model"
)

func TestParseAdd(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	defaults := addArgs{remindOffset: -24 * time.Hour, remindInterval: 3 * time.Hour, recurType: model.RecurRegular, recurInterval: 48 * time.Hour}

	got, err := parseAdd("倒垃圾 明天 20:00", defaults, ref)
	require.NoError(t, err)
	assert.Equal(t, "倒垃圾", got.name)
	assert.Equal(t, time.Date(2026, 10, 20, 20, 0, 0, 0, time.UTC), got.due)
	assert.Equal(t, -24*time.Hour, got.remindOffset)
	assert.Equal(t, model.RecurRegular, got.recurType)

	got, err = parseAdd("浇花 -o -5h-30m 2026-10-25 18:00 --type onfinish -r 3d12h -i 45m", defaults, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 25, 18, 0, 0, 0, time.UTC), got.due)
	assert.Equal(t, -5*time.Hour-30*time.Minute, got.remindOffset)
	assert.Equal(t, 45*time.Minute, got.remindInterval)
	assert.Equal(t, model.RecurOnFinish, got.recurType)
	assert.Equal(t, 84*time.Hour, got.recurInterval)

	for _, raw := range []string{"", "只有名字", "x 明天 -i soon", "x 明天 --colour red", "x someday"} {
		_, err := parseAdd(raw, defaults, ref)
		assert.Error(t, err, raw)
	}
}

func TestMentionedUsers(t *testing.T) {
	t.Parallel()
	msg := &tgbotapi.Message{
		Text: "/assign 倒垃圾 @Alice Carol @bob @alice",
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: 7},
			{Type: "mention", Offset: 12, Length: 6},
			{Type: "text_mention", Offset: 19, Length: 5, User: &tgbotapi.User{ID: 33}},
			{Type: "mention", Offset: 25, Length: 4},
			{Type: "mention", Offset: 30, Length: 6},
			{Type: "mention", Offset: 90, Length: 6},
		},
	}
	assert.Equal(t, []string{"@alice", "33", "@bob"}, mentionedUsers(msg))
}

func TestCallerIDs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"@alice", "11"}, callerIDs(&tgbotapi.User{ID: 11, UserName: "Alice"}))
	assert.Equal(t, []string{"33"}, callerIDs(&tgbotapi.User{ID: 33}))
}

func TestSenderDeliver(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	s := NewSender(fc, 100, zerolog.Nop())

	require.NoError(t, s.Deliver(context.Background(), "-100200300", "<b>hi</b>"))
	assert.Equal(t, int64(-100200300), fc.last(t).ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, fc.last(t).ParseMode)

	assert.Error(t, s.Deliver(context.Background(), "not-a-chat", "hi"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewSender(fc, 1, zerolog.Nop())
	require.NoError(t, slow.Deliver(context.Background(), "1", "first"))
	assert.Error(t, slow.Deliver(ctx, "1", "second"))
}

func TestHTMLFormatter(t *testing.T) {
	t.Parallel()
	f := HTMLFormatter{}
	assert.Equal(t, "@alice", f.Mention("@alice"))
	assert.Equal(t, `<a href="tg://user?id=33">用户33</a>`, f.Mention("33"))
	assert.Equal(t, "a &lt; b", f.Escape("a < b"))
}
