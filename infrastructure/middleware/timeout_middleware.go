package middleware

import (
	"context"
	"time"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.Executable = (*TimeoutExecutable)(nil)

// TimeoutExecutable bounds the run time of the executable it wraps.
// Workflow containers check the context between stages, so a run that
// exceeds the deadline fails at the next stage boundary with
// context.DeadlineExceeded.
type TimeoutExecutable struct {
	next    ports.Executable
	timeout time.Duration
}

// Timeout returns a middleware that runs executables under a deadline of d.
// A non-positive d returns nil, which Chain skips.
func Timeout(d time.Duration) ports.ExecutableMiddleware {
	if d <= 0 {
		return nil
	}
	return func(next ports.Executable) ports.Executable {
		return &TimeoutExecutable{next: next, timeout: d}
	}
}

// ID returns the wrapped executable's ID.
func (te *TimeoutExecutable) ID() string { return te.next.ID() }

// Unwrap returns the wrapped executable.
func (te *TimeoutExecutable) Unwrap() ports.Executable { return te.next }

// Execute runs the wrapped executable with a derived deadline. An earlier
// deadline already on ctx wins.
func (te *TimeoutExecutable) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, cancel := context.WithTimeout(ctx, te.timeout)
	defer cancel()
	return te.next.Execute(ctx, state)
}
