// Package retry provides the generic retry driver that internal/session
// runs its calls in, retrying a transient failure against a Policy's
// backoff schedule, and the two retryability predicates (syncfs and pkg/b2
// also pass IsRetryableUpload to the emerge executor).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// Policy configures the backoff schedule used by Do. The zero value is not
// valid; use one of the presets below or construct explicitly.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	// Jitter is the width, in seconds, of the uniform [0, Jitter) term added
	// to every computed backoff. spec.md §4.3 specifies 1 full second.
	Jitter float64
}

// DataPolicy is the N=20 budget spec.md §4.3 mandates for upload/download
// data-plane calls: wait starts at 1s, multiplies by 1.5 each step, caps at
// 64s plus up to one second of jitter.
var DataPolicy = Policy{
	MaxAttempts: 20,
	Base:        1 * time.Second,
	Factor:      1.5,
	Max:         64 * time.Second,
	Jitter:      1.0,
}

// MetadataPolicy is the N=5 budget spec.md §4.3 mandates for metadata/HEAD
// calls (bucket/file listing, get_file_info, and similar control-plane
// operations) — the same schedule, a shorter attempt budget.
var MetadataPolicy = Policy{
	MaxAttempts: 5,
	Base:        1 * time.Second,
	Factor:      1.5,
	Max:         64 * time.Second,
	Jitter:      1.0,
}

// ErrMaxAttemptsExceeded wraps the final error once a Policy's attempt
// budget is exhausted. Causes holds every attempt's error in order, oldest
// first, so diagnostics can see the full retry history rather than just the
// last failure.
type ErrMaxAttemptsExceeded struct {
	Attempts int
	Causes   []error
}

func (e *ErrMaxAttemptsExceeded) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("retry: exceeded %d attempts", e.Attempts)
	}

	return fmt.Sprintf("retry: exceeded %d attempts, last error: %v", e.Attempts, e.Causes[len(e.Causes)-1])
}

// Unwrap exposes every attempt's error to errors.Is/As, newest last.
func (e *ErrMaxAttemptsExceeded) Unwrap() []error { return e.Causes }

// sleepFunc is swapped out in tests so backoff delays never actually
// elapse under `go test`.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Driver runs operations under a Policy. New builds one that sleeps on the
// real clock; tests replace its sleep function to run instantly. The zero
// Driver has no sleep function and no policy, and is not usable.
type Driver struct {
	policy Policy
	sleep  sleepFunc
	log    *slog.Logger
}

// New builds a Driver for policy using the real clock.
func New(policy Policy) *Driver {
	return &Driver{policy: policy, sleep: defaultSleep, log: slog.Default()}
}

// WithLogger attaches a structured logger used to report each retry
// attempt at debug level.
func (d *Driver) WithLogger(log *slog.Logger) *Driver {
	d.log = log
	return d
}

// withSleep overrides the sleep function; it is unexported, so only this
// package's tests can call it and it is never part of the public API.
func (d *Driver) withSleep(fn sleepFunc) *Driver {
	d.sleep = fn
	return d
}

// Do runs op, retrying while the returned error is retryable according to
// IsRetryable, up to the Driver's policy.MaxAttempts. Backoff follows
// spec.md §4.3: base * factor^attempt, capped at Max, plus uniform
// [0, Jitter) seconds. A Classifiable error's own Retry-After, when present,
// overrides the computed backoff for that attempt — spec.md requires the
// server's explicit guidance take priority over the local schedule.
func Do[T any](ctx context.Context, d *Driver, isRetryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero   T
		causes []error
	)

	for attempt := 0; attempt < d.policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		causes = append(causes, err)

		if !isRetryable(err) {
			return zero, err
		}

		if attempt == d.policy.MaxAttempts-1 {
			break
		}

		wait := d.backoffFor(attempt, err)
		if d.log != nil {
			d.log.Debug("retrying after error",
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()))
		}

		if sleepErr := d.sleep(ctx, wait); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, &ErrMaxAttemptsExceeded{Attempts: d.policy.MaxAttempts, Causes: causes}
}

// backoffFor computes the delay before the next attempt, honoring a
// *b2api.Error's explicit Retry-After over the computed schedule — spec.md
// §4.3 requires the server's explicit guidance take priority.
func (d *Driver) backoffFor(attempt int, err error) time.Duration {
	var apiErr *b2api.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter != nil {
		return *apiErr.RetryAfter
	}

	backoff := float64(d.policy.Base) * math.Pow(d.policy.Factor, float64(attempt))
	if backoff > float64(d.policy.Max) {
		backoff = float64(d.policy.Max)
	}

	jitter := rand.Float64() * d.policy.Jitter * float64(time.Second) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(backoff + jitter)
}

// IsRetryableHTTP and IsRetryableUpload are the two IsRetryable predicates
// Do's callers pass, matching the two retryability flags spec.md §4.2
// attaches to every classified error. The session's metadata calls use
// IsRetryableHTTP; its data-plane calls, and the emerge executor as called
// from syncfs and pkg/b2, use IsRetryableUpload, which also tolerates
// upload-token contention.
func IsRetryableHTTP(err error) bool {
	var apiErr *b2api.Error
	return errors.As(err, &apiErr) && apiErr.RetryableHTTP
}

// IsRetryableUpload is the data-plane counterpart of IsRetryableHTTP.
func IsRetryableUpload(err error) bool {
	var apiErr *b2api.Error
	return errors.As(err, &apiErr) && apiErr.RetryableUpload
}
