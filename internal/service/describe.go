package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"group-reminder/internal/model"
	"group-reminder/internal/repository"
	"group-reminder/internal/timeparse"
)

// Formatter adapts rendered text to the chat platform.
type Formatter interface {
	Escape(s string) string
	Mention(userID string) string
}

// PlainFormatter renders mentions as @user and leaves text untouched.
type PlainFormatter struct{}

func (PlainFormatter) Escape(s string) string       { return s }
func (PlainFormatter) Mention(userID string) string { return "@" + userID }

// Describer renders task state as chat text.
type Describer struct {
	tasks       *repository.TaskRepository
	assignments *repository.AssignmentRepository
	format      Formatter
	loc         *time.Location
}

func NewDescriber(tasks *repository.TaskRepository, assignments *repository.AssignmentRepository, format Formatter, loc *time.Location) *Describer {
	if format == nil {
		format = PlainFormatter{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Describer{tasks: tasks, assignments: assignments, format: format, loc: loc}
}

func (d *Describer) DescribeDue(task *model.Task, now time.Time) string {
	return fmt.Sprintf("在%s前完成", timeparse.Humanize(task.DueTime, now.In(d.loc)))
}

func (d *Describer) DescribeRemind(task *model.Task) string {
	var start string
	switch off := task.RemindOffset; {
	case off < 0:
		start = fmt.Sprintf("提前%s开始提醒", timeparse.FormatDuration(-off))
	case off > 0:
		start = fmt.Sprintf("到期后%s开始提醒", timeparse.FormatDuration(off))
	default:
		start = "到期时开始提醒"
	}
	return fmt.Sprintf("%s，每%s提醒一次", start, timeparse.FormatDuration(task.RemindInterval))
}

func (d *Describer) DescribeRecurrence(task *model.Task) string {
	switch task.RecurType {
	case model.RecurOnFinish:
		return fmt.Sprintf("完成%s后重复", timeparse.FormatDuration(task.RecurInterval))
	case model.RecurRegular:
		return fmt.Sprintf("每%s重复", timeparse.FormatDuration(task.RecurInterval))
	default:
		return "不重复"
	}
}

// DescribeAssignees lists the rotation in order and names whose turn it is.
func (d *Describer) DescribeAssignees(ctx context.Context, task *model.Task) (string, error) {
	userIDs, err := d.assignments.UserIDs(ctx, task.ID)
	if err != nil {
		return "", err
	}
	if len(userIDs) == 0 {
		return "无指派", nil
	}
	var b strings.Builder
	b.WriteString("依次由 ")
	for _, id := range userIDs {
		b.WriteString(d.format.Mention(id))
		b.WriteByte(' ')
	}
	b.WriteString("完成")
	if current, ok := currentUser(task, userIDs); ok {
		b.WriteString("，当前轮到 ")
		b.WriteString(d.format.Mention(current))
	}
	return b.String(), nil
}

// Describe renders a one-line summary of the task, including soft-deleted ones.
func (d *Describer) Describe(ctx context.Context, taskID string, now time.Time) (string, error) {
	task, err := d.tasks.Get(ctx, taskID, true)
	if err != nil {
		return "", err
	}
	return d.DescribeTask(ctx, task, now)
}

// DescribeTask is Describe for a task the caller already loaded.
func (d *Describer) DescribeTask(ctx context.Context, task *model.Task, now time.Time) (string, error) {
	name := d.format.Escape(task.Name)
	if task.IsDeleted {
		return fmt.Sprintf("[%s] 已被删除", name), nil
	}
	assignees, err := d.DescribeAssignees(ctx, task)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s，%s，%s，%s", name,
		d.DescribeDue(task, now), d.DescribeRemind(task), d.DescribeRecurrence(task), assignees), nil
}

// Notification is the reminder sentence, addressed to the current assignee if any.
func (d *Describer) Notification(ctx context.Context, task *model.Task, now time.Time) (string, error) {
	userIDs, err := d.assignments.UserIDs(ctx, task.ID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if current, ok := currentUser(task, userIDs); ok {
		b.WriteString(d.format.Mention(current))
		b.WriteByte(' ')
	}
	name := d.format.Escape(task.Name)
	if now.Before(task.DueTime) {
		fmt.Fprintf(&b, "请记得%s%s", d.DescribeDue(task, now), name)
	} else {
		fmt.Fprintf(&b, "%s应%s哦", name, d.DescribeDue(task, now))
	}
	return b.String(), nil
}

func currentUser(task *model.Task, userIDs []string) (string, bool) {
	if task.CurrentOrder == nil {
		return "", false
	}
	i := *task.CurrentOrder
	if i < 0 || i >= len(userIDs) {
		return "", false
	}
	return userIDs[i], true
}
