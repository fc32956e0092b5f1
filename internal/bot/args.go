package bot

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/pflag"

	"group-reminder/internal/model"
	"group-reminder/internal/timeparse"
)

// durationValue is a pflag.Value accepting the 3d5h style durations.
type durationValue struct{ d *time.Duration }

func (v durationValue) String() string {
	if v.d == nil {
		return ""
	}
	return v.d.String()
}

func (v durationValue) Set(s string) error {
	d, err := timeparse.ParseDuration(s)
	if err != nil {
		return err
	}
	*v.d = d
	return nil
}

func (durationValue) Type() string { return "duration" }

type recurValue struct{ r *model.RecurType }

func (v recurValue) String() string {
	if v.r == nil {
		return ""
	}
	return v.r.String()
}

func (v recurValue) Set(s string) error {
	r, err := model.ParseRecurType(s)
	if err != nil {
		return err
	}
	*v.r = r
	return nil
}

func (recurValue) Type() string { return "recurrence" }

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	return fs
}

func durationFlag(fs *pflag.FlagSet, d *time.Duration, name, short, usage string) {
	fs.VarP(durationValue{d}, name, short, usage)
}

func recurFlag(fs *pflag.FlagSet, r *model.RecurType, name, short, usage string) {
	fs.VarP(recurValue{r}, name, short, usage)
}

// parseArgs splits command arguments and parses fs over them, returning the positional ones.
func parseArgs(fs *pflag.FlagSet, raw string) ([]string, error) {
	if err := fs.Parse(strings.Fields(raw)); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

type addArgs struct {
	name           string
	due            time.Time
	remindOffset   time.Duration
	remindInterval time.Duration
	recurType      model.RecurType
	recurInterval  time.Duration
}

func parseAdd(raw string, defaults addArgs, ref time.Time) (addArgs, error) {
	out := defaults
	fs := newFlagSet("add")
	durationFlag(fs, &out.remindInterval, "interval", "i", "remind interval")
	durationFlag(fs, &out.remindOffset, "offset", "o", "remind offset from due time")
	recurFlag(fs, &out.recurType, "type", "t", "recurrence type")
	durationFlag(fs, &out.recurInterval, "recur", "r", "recurrence interval")

	args, err := parseArgs(fs, raw)
	if err != nil {
		return out, err
	}
	if len(args) < 2 {
		return out, fmt.Errorf("需要任务名和截止时间")
	}
	out.name = args[0]
	if out.due, err = timeparse.ParseDate(strings.Join(args[1:], " "), ref); err != nil {
		return out, err
	}
	return out, nil
}

// mentionedUsers returns the users mentioned in msg: numeric ids for
// text mentions and @usernames for plain mentions.
func mentionedUsers(msg *tgbotapi.Message) []string {
	var (
		users []string
		text  []uint16
		seen  = map[string]bool{}
	)
	for _, e := range msg.Entities {
		var id string
		switch e.Type {
		case "text_mention":
			if e.User == nil {
				continue
			}
			id = strconv.FormatInt(e.User.ID, 10)
		case "mention":
			if text == nil {
				text = utf16.Encode([]rune(msg.Text))
			}
			if e.Offset < 0 || e.Offset+e.Length > len(text) {
				continue
			}
			id = strings.ToLower(string(utf16.Decode(text[e.Offset : e.Offset+e.Length])))
		default:
			continue
		}
		if !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	return users
}

// callerIDs lists the identities a sender may be assigned under.
func callerIDs(u *tgbotapi.User) []string {
	ids := make([]string, 0, 2)
	if u.UserName != "" {
		ids = append(ids, "@"+strings.ToLower(u.UserName))
	}
	return append(ids, strconv.FormatInt(u.ID, 10))
}
