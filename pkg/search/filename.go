package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode"

	"fasearch/pkg/timestamp"
)

const ruleNameLength = 10

// recordTime holds whichever timestamp a record carries: counts buckets
// have timePeriod, activities have postedTime.
type recordTime struct {
	TimePeriod string `json:"timePeriod"`
	PostedTime string `json:"postedTime"`
}

// FileName names a page after the time span it covers and its query:
// {rule}_{start}_{end}, where start is the last (oldest) record's time and end
// the first (newest), both YYYYMMDDHHmmss, and rule is the query with
// non-alphanumerics removed, cut to ten characters.
func FileName(rule string, results []json.RawMessage) (string, error) {
	if len(results) == 0 {
		return "", errors.New("cannot name an empty page")
	}

	end, err := recordTimestamp(results[0])
	if err != nil {
		return "", err
	}
	start, err := recordTimestamp(results[len(results)-1])
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s_%s_%s", sanitizeRule(rule), start, end), nil
}

func recordTimestamp(raw json.RawMessage) (string, error) {
	var rt recordTime
	if err := json.Unmarshal(raw, &rt); err != nil {
		return "", fmt.Errorf("decode record: %w", err)
	}

	value := rt.TimePeriod
	if value == "" {
		value = rt.PostedTime
	}
	if value == "" {
		return "", errors.New("record has neither timePeriod nor postedTime")
	}

	t, err := timestamp.ParseRecordTime(value)
	if err != nil {
		return "", err
	}
	return timestamp.FormatSecond(t), nil
}

func sanitizeRule(rule string) string {
	out := make([]rune, 0, ruleNameLength)
	for _, r := range rule {
		if len(out) == ruleNameLength {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return string(out)
}
