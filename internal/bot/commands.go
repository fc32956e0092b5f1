package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"group-reminder/internal/model"
	"group-reminder/internal/repository"
	"group-reminder/internal/service"
	"group-reminder/internal/timeparse"
)

const helpText = "ℹ️ <b>用法</b>\n" +
	"• /add &lt;任务名&gt; &lt;截止时间&gt; [-o 提醒提前量] [-i 提醒间隔] [-t never|onfinish|regular] [-r 重复间隔]\n" +
	"• /rm &lt;任务名&gt; — 删除任务\n" +
	"• /ls — 本群的任务\n" +
	"• /finish [任务名] — 完成任务，不写任务名时完成指派给你的唯一任务\n" +
	"• /skip [任务名] [-n 人数] — 跳过当前负责人\n" +
	"• /due &lt;任务名&gt; -s 时长 | --set 时间 — 推迟或重设截止时间\n" +
	"• /remind &lt;任务名&gt; [-o 时长] [-i 时长] — 修改提醒\n" +
	"• /recur &lt;任务名&gt; [-t 类型] [-i 时长] — 修改重复规则\n" +
	"• /assign &lt;任务名&gt; @成员... — 按顺序加入轮值\n" +
	"• /unassign &lt;任务名&gt; @成员... — 移出轮值\n" +
	"• /now — 立即提醒本群所有任务\n" +
	"• /history &lt;任务名&gt; — 完成记录\n" +
	"时长写作 3d5h、-24h、30m；时间写作 2026-10-20 20:00、明天 20:00、20:00。任务名不能包含空格。"

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message) error {
	ref := b.now().In(b.loc)
	args, err := parseAdd(msg.CommandArguments(), addArgs{
		remindOffset:   b.defaults.RemindOffset,
		remindInterval: b.defaults.RemindInterval,
		recurType:      b.defaults.RecurType,
		recurInterval:  b.defaults.RecurInterval,
	}, ref)
	if err != nil {
		return b.reply(ctx, msg, "用法：/add &lt;任务名&gt; &lt;截止时间&gt; [选项]\n"+escape(err.Error()))
	}

	task, err := b.tasks.Create(ctx, service.TaskInput{
		Name:           args.name,
		Scope:          scopeOf(msg.Chat.ID),
		DueTime:        args.due,
		RemindOffset:   args.remindOffset,
		RemindInterval: args.remindInterval,
		RecurType:      args.recurType,
		RecurInterval:  args.recurInterval,
	})
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	return b.replyDescription(ctx, msg, "🆕 已添加 ", task.ID)
}

func (b *Bot) handleRemove(ctx context.Context, msg *tgbotapi.Message) error {
	name := firstArg(msg)
	if name == "" {
		return b.reply(ctx, msg, "用法：/rm &lt;任务名&gt;")
	}
	id, err := b.tasks.FindOne(ctx, repository.TaskFilter{Name: name, Scope: scopeOf(msg.Chat.ID)})
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	return b.askDeleteConfirmation(ctx, msg.Chat.ID, id, name)
}

func (b *Bot) delete(ctx context.Context, chatID int64, taskID, name string) error {
	if err := b.tasks.Delete(ctx, taskID, b.now()); err != nil {
		return b.send(ctx, chatID, b.errorText(err), nil)
	}
	return b.send(ctx, chatID, fmt.Sprintf("🗑 已删除任务 [%s]", escape(name)), nil)
}

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message) error {
	ids, err := b.tasks.Search(ctx, repository.TaskFilter{Scope: scopeOf(msg.Chat.ID)})
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	if len(ids) == 0 {
		return b.reply(ctx, msg, "本群还没有任务，用 /add 添加一个。")
	}

	now := b.now()
	var (
		sb   strings.Builder
		refs []taskRef
	)
	sb.WriteString("📋 <b>本群任务</b>\n")
	for _, id := range ids {
		task, err := b.tasks.Get(ctx, id)
		if err != nil {
			// Deleted between the search and this read.
			b.log.Warn().Err(err).Str("task", id).Msg("list: load task")
			continue
		}
		text, err := b.describer.DescribeTask(ctx, task, now)
		if err != nil {
			return b.userError(ctx, msg, err)
		}
		sb.WriteString("• ")
		sb.WriteString(text)
		sb.WriteByte('\n')
		refs = append(refs, taskRef{ID: task.ID, Name: task.Name})
	}
	return b.send(ctx, msg.Chat.ID, strings.TrimSpace(sb.String()), taskListKeyboard(refs))
}

func (b *Bot) handleFinish(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := b.resolve(ctx, msg, firstArg(msg))
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	return b.finish(ctx, msg.Chat.ID, id)
}

func (b *Bot) finish(ctx context.Context, chatID int64, taskID string) error {
	task, err := b.tasks.Finish(ctx, taskID, b.now())
	if err != nil {
		return b.send(ctx, chatID, b.errorText(err), nil)
	}
	if task.IsDeleted {
		return b.send(ctx, chatID, fmt.Sprintf("✅ [%s] 已完成，不再重复。", escape(task.Name)), nil)
	}
	text, err := b.describer.Describe(ctx, task.ID, b.now())
	if err != nil {
		return b.send(ctx, chatID, b.errorText(err), nil)
	}
	return b.send(ctx, chatID, "✅ 已完成！下一次："+text, nil)
}

func (b *Bot) handleSkip(ctx context.Context, msg *tgbotapi.Message) error {
	fs := newFlagSet("skip")
	offset := fs.IntP("offset", "n", 1, "how many assignees to pass")
	args, err := parseArgs(fs, msg.CommandArguments())
	if err != nil {
		return b.reply(ctx, msg, "用法：/skip [任务名] [-n 人数]\n"+escape(err.Error()))
	}
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	id, err := b.resolve(ctx, msg, name)
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	skipped, err := b.tasks.Skip(ctx, id, *offset)
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	if !skipped {
		return b.reply(ctx, msg, "少于两人轮值的任务无法跳过。")
	}
	return b.replyAssignees(ctx, msg, id)
}

func (b *Bot) handleDue(ctx context.Context, msg *tgbotapi.Message) error {
	fs := newFlagSet("due")
	var shift time.Duration
	durationFlag(fs, &shift, "shift", "s", "move the due time by a duration")
	set := fs.String("set", "", "new due time")

	const usage = "用法：/due &lt;任务名&gt; -s 时长 | --set 时间"
	args, err := parseArgs(fs, msg.CommandArguments())
	if err != nil || len(args) == 0 {
		return b.reply(ctx, msg, usage)
	}
	patch := map[string]any{}
	switch {
	case fs.Changed("shift"):
		patch[repository.AttrDueTime] = shift
	case fs.Changed("set"):
		raw := strings.Join(append([]string{*set}, args[1:]...), " ")
		due, err := timeparse.ParseDate(raw, b.now().In(b.loc))
		if err != nil {
			return b.reply(ctx, msg, usage+"\n"+escape(err.Error()))
		}
		patch[repository.AttrDueTime] = due
	default:
		return b.reply(ctx, msg, usage)
	}
	return b.patch(ctx, msg, args[0], patch)
}

func (b *Bot) handleRemind(ctx context.Context, msg *tgbotapi.Message) error {
	fs := newFlagSet("remind")
	var offset, interval time.Duration
	durationFlag(fs, &offset, "offset", "o", "remind offset from due time")
	durationFlag(fs, &interval, "interval", "i", "remind interval")

	args, err := parseArgs(fs, msg.CommandArguments())
	if err != nil || len(args) == 0 {
		return b.reply(ctx, msg, "用法：/remind &lt;任务名&gt; [-o 时长] [-i 时长]")
	}
	patch := map[string]any{}
	if fs.Changed("offset") {
		patch[repository.AttrRemindOffset] = offset
	}
	if fs.Changed("interval") {
		patch[repository.AttrRemindInterval] = interval
	}
	return b.patch(ctx, msg, args[0], patch)
}

func (b *Bot) handleRecur(ctx context.Context, msg *tgbotapi.Message) error {
	fs := newFlagSet("recur")
	var kind model.RecurType
	var interval time.Duration
	recurFlag(fs, &kind, "type", "t", "recurrence type")
	durationFlag(fs, &interval, "interval", "i", "recurrence interval")

	args, err := parseArgs(fs, msg.CommandArguments())
	if err != nil || len(args) == 0 {
		return b.reply(ctx, msg, "用法：/recur &lt;任务名&gt; [-t never|onfinish|regular] [-i 时长]")
	}
	patch := map[string]any{}
	if fs.Changed("type") {
		patch[repository.AttrRecurType] = kind
	}
	if fs.Changed("interval") {
		patch[repository.AttrRecurInterval] = interval
	}
	return b.patch(ctx, msg, args[0], patch)
}

func (b *Bot) patch(ctx context.Context, msg *tgbotapi.Message, name string, patch map[string]any) error {
	if len(patch) == 0 {
		return b.reply(ctx, msg, "没有需要修改的内容。")
	}
	id, err := b.tasks.FindOne(ctx, repository.TaskFilter{Name: name, Scope: scopeOf(msg.Chat.ID)})
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	if _, err := b.tasks.Set(ctx, id, patch); err != nil {
		return b.userError(ctx, msg, err)
	}
	return b.replyDescription(ctx, msg, "✏️ 已更新 ", id)
}

func (b *Bot) handleAssign(ctx context.Context, msg *tgbotapi.Message, assign bool) error {
	name := firstArg(msg)
	users := mentionedUsers(msg)
	if name == "" || strings.HasPrefix(name, "@") || len(users) == 0 {
		return b.reply(ctx, msg, "用法：/assign &lt;任务名&gt; @成员...")
	}
	id, err := b.tasks.FindOne(ctx, repository.TaskFilter{Name: name, Scope: scopeOf(msg.Chat.ID)})
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	if assign {
		_, err = b.tasks.Assign(ctx, id, users)
	} else {
		_, err = b.tasks.Unassign(ctx, id, users)
	}
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	return b.replyAssignees(ctx, msg, id)
}

func (b *Bot) handleNow(ctx context.Context, msg *tgbotapi.Message) error {
	n, err := b.reminders.RemindAll(ctx, scopeOf(msg.Chat.ID))
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	if n == 0 {
		return b.reply(ctx, msg, "本群没有需要提醒的任务。")
	}
	return nil
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) error {
	name := firstArg(msg)
	if name == "" {
		return b.reply(ctx, msg, "用法：/history &lt;任务名&gt;")
	}
	id, err := b.tasks.FindOne(ctx, repository.TaskFilter{Name: name, Scope: scopeOf(msg.Chat.ID)})
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	entries, err := b.tasks.History(ctx, id, 10)
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	if len(entries) == 0 {
		return b.reply(ctx, msg, fmt.Sprintf("[%s] 还没有完成记录。", escape(name)))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗂 <b>[%s] 完成记录</b>\n", escape(name))
	for _, e := range entries {
		fmt.Fprintf(&sb, "• %s 到期，%s 完成", e.DueTime.In(b.loc).Format("2006-01-02 15:04"), e.FinishTime.In(b.loc).Format("2006-01-02 15:04"))
		if e.UserID != "" {
			sb.WriteString("，负责人 ")
			sb.WriteString(HTMLFormatter{}.Mention(e.UserID))
		}
		sb.WriteByte('\n')
	}
	return b.reply(ctx, msg, strings.TrimSpace(sb.String()))
}

// resolve finds a task by name in the chat, or the caller's only task there when name is empty.
func (b *Bot) resolve(ctx context.Context, msg *tgbotapi.Message, name string) (string, error) {
	scope := scopeOf(msg.Chat.ID)
	if name != "" {
		return b.tasks.FindOne(ctx, repository.TaskFilter{Name: name, Scope: scope})
	}
	for _, userID := range callerIDs(msg.From) {
		id, err := b.tasks.FindOne(ctx, repository.TaskFilter{Scope: scope, UserID: userID})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		return id, err
	}
	return "", repository.ErrNotFound
}

func (b *Bot) replyDescription(ctx context.Context, msg *tgbotapi.Message, prefix, taskID string) error {
	text, err := b.describer.Describe(ctx, taskID, b.now())
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	return b.reply(ctx, msg, prefix+text)
}

func (b *Bot) replyAssignees(ctx context.Context, msg *tgbotapi.Message, taskID string) error {
	task, err := b.tasks.Get(ctx, taskID)
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	text, err := b.describer.DescribeAssignees(ctx, task)
	if err != nil {
		return b.userError(ctx, msg, err)
	}
	return b.reply(ctx, msg, fmt.Sprintf("[%s] %s", escape(task.Name), text))
}

func firstArg(msg *tgbotapi.Message) string {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
