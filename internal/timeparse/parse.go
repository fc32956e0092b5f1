package timeparse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

const day = 24 * time.Hour

var (
	ErrEmpty      = errors.New("empty value")
	ErrOutOfRange = errors.New("duration out of range")

	reDuration = regexp.MustCompile(`(?i)^(?:(-?\d+)d)?(?:(-?\d+)h)?(?:(-?\d+)m)?(?:(-?\d+)s)?$`)
)

var durationUnits = [...]time.Duration{day, time.Hour, time.Minute, time.Second}

// ParseDuration parses a signed human duration such as "3d5h19m1s" or "-24h".
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrEmpty
	}
	m := reDuration.FindStringSubmatch(s)
	if m == nil || m[0] == "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return d, nil
	}
	var total time.Duration
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		unit := int64(durationUnits[i])
		if n > math.MaxInt64/unit || n < math.MinInt64/unit {
			return 0, fmt.Errorf("%w: %q", ErrOutOfRange, raw)
		}
		v := time.Duration(n * unit)
		if (v > 0 && total > math.MaxInt64-v) || (v < 0 && total < math.MinInt64-v) {
			return 0, fmt.Errorf("%w: %q", ErrOutOfRange, raw)
		}
		total += v
	}
	return total, nil
}

var relativeDays = []struct {
	word   string
	offset int
}{
	{"tomorrow", 1},
	{"today", 0},
	{"明天", 1},
	{"后天", 2},
	{"今天", 0},
}

// ParseDate parses an absolute date/time in ref's location. Missing date parts
// are taken from ref; a relative day word without a clock keeps ref's clock.
func ParseDate(raw string, ref time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrEmpty
	}

	lower := strings.ToLower(s)
	for _, rel := range relativeDays {
		if !strings.HasPrefix(lower, rel.word) {
			continue
		}
		base := ref.AddDate(0, 0, rel.offset)
		rest := strings.TrimSpace(s[len(rel.word):])
		if rest == "" {
			return base.Truncate(time.Minute), nil
		}
		clock, err := now.New(base).Parse(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q", raw)
		}
		return time.Date(base.Year(), base.Month(), base.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, ref.Location()), nil
	}

	t, err := now.New(ref).Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return t, nil
}
