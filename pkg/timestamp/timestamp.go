// Package timestamp converts the date inputs accepted on the command line
// into the YYYYMMDDHHmm form the search API expects.
package timestamp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	errs "fasearch/pkg/errors"

	"github.com/araddon/dateparse"
	"k8s.io/utils/clock"
)

const (
	// MinuteLayout is the request timestamp format, YYYYMMDDHHmm
	MinuteLayout = "200601021504"
	// SecondLayout is the file name timestamp format, YYYYMMDDHHmmss
	SecondLayout = "20060102150405"
)

// Normalizer resolves relative inputs against its clock
type Normalizer struct {
	clock clock.PassiveClock
}

// NewNormalizer returns a Normalizer reading "now" from clk, or the wall
// clock when clk is nil.
func NewNormalizer(clk clock.PassiveClock) *Normalizer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Normalizer{clock: clk}
}

// Normalize accepts, in order of precedence:
//
//	30m, 2h, 14d          relative to now (fractions allowed, case-insensitive)
//	201310180600          returned unchanged
//	2013-10-18 06:00      any 16 characters; non-alphanumerics removed
//	2013-10-18T06:00:00Z  anything longer, parsed as a date and reformatted
//
// Anything else yields ErrUnrecognizedTimestamp.
func (n *Normalizer) Normalize(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("%w: empty input", errs.ErrUnrecognizedTimestamp)
	}

	if unit, ok := relativeUnit(input); ok {
		amount, err := strconv.ParseFloat(input[:len(input)-1], 64)
		if err != nil || amount < 0 {
			return "", fmt.Errorf("%w: %q", errs.ErrUnrecognizedTimestamp, input)
		}
		offset := time.Duration(amount * float64(unit))
		return FormatMinute(n.clock.Now().Add(-offset)), nil
	}

	switch {
	case len(input) == 12 && isDigits(input):
		return input, nil
	case len(input) == 16:
		return stripNonAlphanumeric(input), nil
	case len(input) > 16:
		t, err := dateparse.ParseIn(input, time.Local)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", errs.ErrUnrecognizedTimestamp, input, err)
		}
		return FormatMinute(t), nil
	}

	return "", fmt.Errorf("%w: %q", errs.ErrUnrecognizedTimestamp, input)
}

// Normalize runs input through a wall-clock Normalizer
func Normalize(input string) (string, error) {
	return NewNormalizer(nil).Normalize(input)
}

// FormatMinute renders t as YYYYMMDDHHmm
func FormatMinute(t time.Time) string {
	return t.Format(MinuteLayout)
}

// FormatSecond renders t as YYYYMMDDHHmmss
func FormatSecond(t time.Time) string {
	return t.Format(SecondLayout)
}

// ParseRecordTime parses the time carried by a result record: a counts
// bucket's YYYYMMDDHHmm timePeriod or an activity's postedTime.
func ParseRecordTime(value string) (time.Time, error) {
	if len(value) == 12 && isDigits(value) {
		return time.ParseInLocation(MinuteLayout, value, time.UTC)
	}
	t, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable record time %q: %w", value, err)
	}
	return t, nil
}

// Describe renders a request window for humans. A missing start means the
// API's default of thirty days back.
func Describe(from, to string) string {
	switch {
	case from == "" && to == "":
		return "last 30 days"
	case from == "":
		return "30 days ago to " + to
	case to == "":
		return from + " to now"
	default:
		return from + " to " + to
	}
}

func relativeUnit(input string) (time.Duration, bool) {
	switch unicode.ToLower(rune(input[len(input)-1])) {
	case 'm':
		return time.Minute, true
	case 'h':
		return time.Hour, true
	case 'd':
		return 24 * time.Hour, true
	}
	return 0, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func stripNonAlphanumeric(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
