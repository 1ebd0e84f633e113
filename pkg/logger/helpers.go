package logger

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// LogRequest logs a completed search API call. Status codes outside 2xx are
// raised to warn (4xx) or error (5xx).
func LogRequest(log Logger, method, url string, statusCode int, bytes int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"size":        humanize.Bytes(uint64(bytes)),
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		log.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		log.WarnWithFields("HTTP request client error", fields)
	default:
		log.DebugWithFields("HTTP request completed", fields)
	}
}

// LogPage logs a dispatched page
func LogPage(log Logger, rule string, page, records int, hasNext bool) {
	log.DebugWithFields("Page dispatched", map[string]interface{}{
		"rule":     rule,
		"page":     page,
		"records":  records,
		"has_next": hasNext,
	})
}

// LogThrottle logs a wait imposed by the request throttle
func LogThrottle(log Logger, wait time.Duration) {
	log.DebugWithFields("Throttling request", map[string]interface{}{
		"wait_ms": wait.Milliseconds(),
	})
}

// LogRunSummary logs the end of one rule's pagination
func LogRunSummary(log Logger, mode, rule string, pages, records int, elapsed time.Duration) {
	log.InfoWithFields("Rule complete", map[string]interface{}{
		"mode":    mode,
		"rule":    rule,
		"pages":   pages,
		"records": humanize.Comma(int64(records)),
		"elapsed": elapsed.Round(time.Millisecond).String(),
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
