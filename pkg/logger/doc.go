// Package logger provides a structured logging interface for the search client.
//
// It wraps zerolog with:
//   - leveled logging with per-call or inherited fields
//   - colored console output on stderr, leaving stdout to record output
//   - an optional JSON log file rotated by lumberjack
//   - a global logger for commands, and injectable instances for packages
//
// Basic usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger().WithField("rule", rule.Value)
//	log.InfoWithFields("Retrieving data", map[string]interface{}{"from": from})
//
// Tests use NewTestLogger to capture and assert on messages, or NewNopLogger
// to discard them.
package logger
