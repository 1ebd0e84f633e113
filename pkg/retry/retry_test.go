package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "fasearch/pkg/errors"
	"fasearch/pkg/logger"
)

func networkError() error {
	return &errs.Error{Type: errs.ErrorTypeNetwork, Message: "connection refused"}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, test := range tests {
		if delay := backoff.NextDelay(test.attempt); delay != test.expected {
			t.Errorf("attempt %d: expected %v, got %v", test.attempt, test.expected, delay)
		}
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		if delay < 140*time.Millisecond || delay > 260*time.Millisecond {
			t.Errorf("jittered delay %v outside ±30%% of 200ms", delay)
		}
	}
}

func TestConstantBackoff(t *testing.T) {
	backoff := &ConstantBackoff{Delay: 5 * time.Second}
	if backoff.NextDelay(0) != 0 {
		t.Error("attempt 0 should not wait")
	}
	for attempt := 1; attempt <= 3; attempt++ {
		if backoff.NextDelay(attempt) != 5*time.Second {
			t.Errorf("attempt %d should wait 5s", attempt)
		}
	}
}

func TestRetryFailThenSucceed(t *testing.T) {
	attempts := 0
	var retried []int

	cfg := &Config{
		MaxAttempts: 2,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		OnRetry:     func(attempt int, err error, delay time.Duration) { retried = append(retried, attempt) },
		Logger:      logger.NewTestLogger(),
	}

	err := Do(func() error {
		attempts++
		if attempts == 1 {
			return networkError()
		}
		return nil
	}, cfg)

	if err != nil {
		t.Errorf("Expected success after retry, got: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Errorf("Expected one retry after attempt 1, got %v", retried)
	}
}

func TestRetryFailTwiceIsFatal(t *testing.T) {
	attempts := 0
	log := logger.NewTestLogger()
	cfg := NewConfig(context.Background(), 2, 10*time.Millisecond, 1, log)

	start := time.Now()
	err := Do(func() error {
		attempts++
		return networkError()
	}, cfg)

	if err == nil {
		t.Fatal("Expected error when max attempts exceeded")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
	if errs.TypeOf(err) != errs.ErrorTypeNetwork {
		t.Errorf("cause should stay classified, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("only one delay expected, took %v", elapsed)
	}
	if len(log.GetMessagesByLevel("WARN")) != 1 {
		t.Errorf("Expected one retry warning, got:\n%s", log.String())
	}
	if !log.HasMessage("max retry attempts exceeded") {
		t.Error("Expected exhaustion to be logged")
	}
}

func TestRetryWithNonRetryableError(t *testing.T) {
	attempts := 0
	statusError := &errs.Error{Type: errs.ErrorTypeStatus, Message: "Forbidden", Code: 403}

	err := Do(func() error {
		attempts++
		return statusError
	}, &Config{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: 10 * time.Millisecond}})

	if err != statusError {
		t.Errorf("Expected status error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryPlainErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	err := Do(func() error {
		attempts++
		return errors.New("decode failed")
	}, &Config{MaxAttempts: 3})

	if err == nil || attempts != 1 {
		t.Errorf("Expected a single failing attempt, got %d attempts, err %v", attempts, err)
	}
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 100 * time.Millisecond},
		Context:     ctx,
	}

	err := Do(func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return networkError()
	}, cfg)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancellation, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts before cancellation, got %d", attempts)
	}
}

func TestNewConfigSelectsBackoff(t *testing.T) {
	constant := NewConfig(context.Background(), 2, 5*time.Second, 1, nil)
	if _, ok := constant.Backoff.(*ConstantBackoff); !ok {
		t.Errorf("multiplier 1 should give constant backoff, got %T", constant.Backoff)
	}

	exponential := NewConfig(context.Background(), 4, time.Second, 2, nil)
	eb, ok := exponential.Backoff.(*ExponentialBackoff)
	if !ok {
		t.Fatalf("multiplier 2 should give exponential backoff, got %T", exponential.Backoff)
	}
	if eb.NextDelay(3) != 4*time.Second {
		t.Errorf("Expected 4s on attempt 3, got %v", eb.NextDelay(3))
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", networkError()
		}
		return "page", nil
	}, &Config{MaxAttempts: 2, Backoff: &ConstantBackoff{Delay: time.Millisecond}})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "page" {
		t.Errorf("Expected result 'page', got %q", result)
	}
}
