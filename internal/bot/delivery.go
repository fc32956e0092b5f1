package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers HTML messages to chats, throttled to stay under Telegram's
// flood limits. It is also the reminder delivery channel.
type Sender struct {
	client  client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewSender(c client, perSecond float64, log zerolog.Logger) *Sender {
	if perSecond <= 0 {
		perSecond = 20
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Sender{client: c, limiter: rate.NewLimiter(rate.Limit(perSecond), burst), log: log}
}

// Deliver sends text to the chat whose id is scope.
func (s *Sender) Deliver(ctx context.Context, scope, text string) error {
	chatID, err := strconv.ParseInt(scope, 10, 64)
	if err != nil {
		return fmt.Errorf("deliver: invalid scope %q: %w", scope, err)
	}
	return s.send(ctx, chatID, text, nil)
}

func (s *Sender) send(ctx context.Context, chatID int64, text string, markup any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := s.client.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	s.log.Debug().Int64("chat", chatID).Msg("message sent")
	return nil
}

// HTMLFormatter renders task text for Telegram's HTML parse mode. User ids
// starting with @ are usernames; numeric ids become tg:// links.
type HTMLFormatter struct{}

func (HTMLFormatter) Escape(s string) string { return escape(s) }

func (HTMLFormatter) Mention(userID string) string {
	if strings.HasPrefix(userID, "@") {
		return escape(userID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%s">用户%s</a>`, escape(userID), escape(userID))
}

func escape(s string) string {
	return html.EscapeString(s)
}
