package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.Executable = (*SizeGuard)(nil)

// Limits caps the inputs a reconciliation may accept.
type Limits struct {
	// MaxObjects limits the number of distinct objects across both
	// rankings. Zero means unlimited.
	MaxObjects int
}

// SizeObserver provides observability hooks for size enforcement.
// Implementations can add tracing, metrics, and logging without
// coupling observability concerns to the guard itself.
type SizeObserver interface {
	// PreCheck is called before the limit is enforced. The returned context
	// is passed to the wrapped executable and to PostCheck.
	PreCheck(ctx context.Context, size int, limits Limits) context.Context

	// PostCheck is called once the request was rejected or executed.
	PostCheck(ctx context.Context, size int, limits Limits, elapsed time.Duration, err error)
}

// SizeGuard rejects states whose universe exceeds the configured cap
// before any relation is built. It holds no mutable state and is safe for
// concurrent use.
type SizeGuard struct {
	limits   Limits
	next     ports.Executable
	observer SizeObserver
}

// NewSizeGuard wraps next with the given limits and optional observer.
func NewSizeGuard(limits Limits, next ports.Executable, observer SizeObserver) *SizeGuard {
	if next == nil {
		panic("size guard: next executable is required")
	}
	return &SizeGuard{limits: limits, next: next, observer: observer}
}

// SizeLimit returns NewSizeGuard as a middleware.
func SizeLimit(limits Limits, observer SizeObserver) ports.ExecutableMiddleware {
	return func(next ports.Executable) ports.Executable {
		return NewSizeGuard(limits, next, observer)
	}
}

// ID returns the wrapped executable's ID.
func (sg *SizeGuard) ID() string { return sg.next.ID() }

// Unwrap returns the wrapped executable.
func (sg *SizeGuard) Unwrap() ports.Executable { return sg.next }

// Validate checks that the limits are usable.
func (sg *SizeGuard) Validate() error {
	if sg.limits.MaxObjects < 0 {
		return fmt.Errorf("size guard: max_objects cannot be negative, got %d", sg.limits.MaxObjects)
	}
	return nil
}

// Execute enforces the object cap and then runs the wrapped executable.
// The universe is read from the state, or derived from the two rankings
// when the state does not carry one yet.
func (sg *SizeGuard) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	size := universeSize(state)

	if sg.observer != nil {
		ctx = sg.observer.PreCheck(ctx, size, sg.limits)
	}

	start := time.Now()
	var (
		out = state
		err = sg.check(size)
	)
	if err == nil {
		out, err = sg.next.Execute(ctx, state)
	}

	if sg.observer != nil {
		sg.observer.PostCheck(ctx, size, sg.limits, time.Since(start), err)
	}
	return out, err
}

func (sg *SizeGuard) check(size int) error {
	if sg.limits.MaxObjects > 0 && size > sg.limits.MaxObjects {
		return domain.NewSizeLimitError(sg.limits.MaxObjects, size)
	}
	return nil
}

func universeSize(state domain.State) int {
	if u, ok := domain.Get(state, domain.KeyUniverse); ok {
		return u.Size()
	}
	a, _ := domain.Get(state, domain.KeyRankingA)
	b, _ := domain.Get(state, domain.KeyRankingB)
	return domain.NewUniverse(a, b).Size()
}

// IsSizeLimit reports whether err is a size limit rejection.
func IsSizeLimit(err error) bool {
	var sizeErr *domain.SizeLimitError
	return errors.As(err, &sizeErr)
}
