package timeparse

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// Humanize renders target relative to today: 今天/明天/后天/昨天/前天 with a clock,
// 本/下/上 plus weekday within a week either way, 两周后的/两周前的 plus weekday
// within two, and a plain date beyond that.
func Humanize(target, today time.Time) string {
	target = target.In(today.Location())
	clock := target.Format("15:04")

	switch calendarDays(target, today) {
	case 0:
		return "今天" + clock
	case 1:
		return "明天" + clock
	case 2:
		return "后天" + clock
	case -1:
		return "昨天" + clock
	case -2:
		return "前天" + clock
	}

	weekday := weekdayNames[target.Weekday()]
	switch int(target.Sub(today) / (7 * day)) {
	case 0:
		return "本" + weekday + clock
	case 1:
		return "下" + weekday + clock
	case 2:
		return "两周后的" + weekday + clock
	case -1:
		return "上" + weekday + clock
	case -2:
		return "两周前的" + weekday + clock
	}
	return target.Format("2006-01-02 15:04")
}

func calendarDays(target, today time.Time) int {
	ty, tm, td := target.Date()
	ny, nm, nd := today.Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b) / day)
}

// FormatDuration renders d with Chinese units, e.g. "1天3小时", "30分钟".
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0分钟"
	}
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	parts := []struct {
		unit time.Duration
		name string
	}{
		{day, "天"},
		{time.Hour, "小时"},
		{time.Minute, "分钟"},
		{time.Second, "秒"},
	}
	for _, p := range parts {
		if n := d / p.unit; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, p.name)
			d -= n * p.unit
		}
	}
	if out := b.String(); out != "" && out != "-" {
		return out
	}
	return "0秒"
}
