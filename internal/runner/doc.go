// Package runner provides the Dispatcher, the execution engine of a volley run.
//
// A run's total request count is split into sequential batches of size
// Concurrency; the last batch holds the remainder. Every request of a batch
// runs in its own goroutine and the Dispatcher waits for the whole batch
// before starting the next, so at most Concurrency requests are in flight.
// The cancellation flag of the [loadtest.RunState] is checked before each
// batch; a batch that has started always completes.
//
// # Pacing
//
// Before issuing each request the Dispatcher waits
//
//	1 / (Rate × Concurrency)
//
// seconds. Rate therefore bounds how fast requests are issued, not how fast
// they complete. No other limiter is applied.
//
// # Requester Interface
//
//	type Requester interface {
//		Do(ctx context.Context) (int, error)
//	}
//
// Any HTTP response is a completed exchange and yields a successful
// [loadtest.Outcome], even for 4xx and 5xx codes. An error yields a failed
// Outcome carrying the error message. Failed attempts are not retried.
//
// # Middleware
//
//   - [WithLogging]: log transport failures
//   - [WithTracing]: one OpenTelemetry client span per attempt
package runner
