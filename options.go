package gitvfs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gitvfs/gitvfs/remote"
)

// DefaultBranch is the tracked branch when none is configured.
const DefaultBranch = "main"

// OpenOptions configures a VFS.
type OpenOptions struct {
	Remote Remote
	Branch string
	Logger *slog.Logger
	Retry  RetryPolicy
	Now    func() time.Time
}

// OpenOption is a functional option for configuring Open.
type OpenOption func(*OpenOptions)

func defaultOptions() *OpenOptions {
	return &OpenOptions{
		Branch: DefaultBranch,
		Logger: slog.Default(),
		Retry:  remote.DefaultPolicy(),
		Now:    time.Now,
	}
}

// WithRemote attaches a hosting-provider adapter. Without one, Pull returns
// ErrNoRemote (PullSnapshot still works) and Push returns ErrNoRemote unless
// the change set is empty.
func WithRemote(adapter Remote) OpenOption {
	return func(o *OpenOptions) { o.Remote = adapter }
}

// WithBranch sets the tracked branch.
func WithBranch(branch string) OpenOption {
	return func(o *OpenOptions) {
		if branch != "" {
			o.Branch = branch
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(o *OpenOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithRetryPolicy overrides the retry/backoff policy for remote calls.
func WithRetryPolicy(policy RetryPolicy) OpenOption {
	return func(o *OpenOptions) { o.Retry = policy }
}

// WithClock overrides the timestamp source. Tests use this to make
// UpdatedAt deterministic.
func WithClock(now func() time.Time) OpenOption {
	return func(o *OpenOptions) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithSleep overrides the retry sleep function.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) OpenOption {
	return func(o *OpenOptions) { o.Retry.Sleep = sleep }
}
