package ratelimit

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow records a request and reports whether it was within the limit
	Allow() bool
	// Wait blocks until a request is allowed, records it, and returns how
	// long it blocked
	Wait() time.Duration
	// Reset forgets all recorded requests
	Reset()
}

// Interval enforces a minimum gap between consecutive requests. One Interval
// is shared by every rule of a session so the gap also holds across rules.
type Interval struct {
	clock   clock.Clock
	minimum time.Duration
	last    time.Time
	mu      sync.Mutex
}

// NewInterval creates a limiter that spaces requests at least minimum apart
func NewInterval(minimum time.Duration, clk clock.Clock) *Interval {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Interval{clock: clk, minimum: minimum}
}

// Allow records the request if the minimum gap has passed
func (iv *Interval) Allow() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	if !iv.last.IsZero() && iv.clock.Since(iv.last) < iv.minimum {
		return false
	}
	iv.last = iv.clock.Now()
	return true
}

// Wait sleeps for whatever remains of the minimum gap since the last request
func (iv *Interval) Wait() time.Duration {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	var waited time.Duration
	if !iv.last.IsZero() {
		if elapsed := iv.clock.Since(iv.last); elapsed < iv.minimum {
			waited = iv.minimum - elapsed
			iv.clock.Sleep(waited)
		}
	}
	iv.last = iv.clock.Now()
	return waited
}

// Reset forgets the last request time
func (iv *Interval) Reset() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.last = time.Time{}
}

// LastRequest returns when the last request was recorded
func (iv *Interval) LastRequest() time.Time {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.last
}

// SlidingWindow caps the number of requests within a moving time window
type SlidingWindow struct {
	clock       clock.Clock
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration, clk clock.Clock) *SlidingWindow {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SlidingWindow{
		clock:       clk,
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.tryRecord()
}

// Wait blocks until the oldest request in a full window ages out
func (sw *SlidingWindow) Wait() time.Duration {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	var waited time.Duration
	for !sw.tryRecord() {
		pause := sw.windowSize - sw.clock.Since(sw.requests[0])
		if pause <= 0 {
			pause = time.Millisecond
		}
		sw.clock.Sleep(pause)
		waited += pause
	}
	return waited
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

// tryRecord drops expired requests and records a new one if there is room.
// Callers hold mu.
func (sw *SlidingWindow) tryRecord() bool {
	now := sw.clock.Now()
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.requests = append(sw.requests[:0], sw.requests[i:]...)
	}

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}
	return false
}

// Chain applies several limiters in order
type Chain []Limiter

// Allow reports whether every limiter allows the request
func (c Chain) Allow() bool {
	for _, l := range c {
		if !l.Allow() {
			return false
		}
	}
	return true
}

// Wait waits on each limiter in turn and returns the total time blocked
func (c Chain) Wait() time.Duration {
	var total time.Duration
	for _, l := range c {
		total += l.Wait()
	}
	return total
}

// Reset resets every limiter
func (c Chain) Reset() {
	for _, l := range c {
		l.Reset()
	}
}
