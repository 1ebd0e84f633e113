// Package ratelimit throttles calls to the search API.
//
// Interval is the default limiter: it guarantees a minimum gap (one second
// by default) between consecutive requests of a session, sleeping only for
// the remainder of the gap. SlidingWindow optionally caps requests per
// minute on top of it; Chain applies both in order.
//
// All limiters take a k8s.io/utils/clock.Clock so tests can drive time with
// a FakeClock instead of sleeping.
//
//	limiter := ratelimit.Chain{
//		ratelimit.NewInterval(time.Second, nil),
//		ratelimit.NewSlidingWindow(60, time.Minute, nil),
//	}
//	waited := limiter.Wait()
package ratelimit
