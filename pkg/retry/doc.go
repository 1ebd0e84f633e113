// Package retry re-runs operations that fail with a transport error.
//
// The search API policy is a single retry after a fixed five second pause:
// a second consecutive failure is returned to the caller, which treats it as
// fatal for the current rule. Only errors classified as network errors by
// fasearch/pkg/errors are retried; HTTP status and API errors are the
// server's answer and are returned immediately.
//
//	cfg := retry.NewConfig(ctx, 2, 5*time.Second, 1, log)
//	resp, err := retry.DoWithResult(func() (*transport.Response, error) {
//		return client.Post(ctx, body)
//	}, cfg)
package retry
