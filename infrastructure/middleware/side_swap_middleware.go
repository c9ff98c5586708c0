package middleware

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.Executable = (*SideSwapVerifier)(nil)

// ErrAsymmetricResult is returned when reconciling (B, A) disagrees with
// reconciling (A, B).
var ErrAsymmetricResult = errors.New("reconciliation is not symmetric")

// SideSwapVerifier executes the wrapped workflow twice, once with the
// rankings swapped, and fails unless both runs report the same kernel and
// group objects into the same consensus clusters. The first run's state
// is returned.
type SideSwapVerifier struct {
	next    ports.Executable
	tracer  trace.Tracer
	metrics ports.MetricsCollector
}

// SideSwap returns a middleware that verifies symmetry of the wrapped
// workflow. Either argument may be nil.
func SideSwap(tp trace.TracerProvider, metrics ports.MetricsCollector) ports.ExecutableMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)
	return func(next ports.Executable) ports.Executable {
		return &SideSwapVerifier{next: next, tracer: tracer, metrics: metrics}
	}
}

// ID returns the wrapped executable's ID.
func (sv *SideSwapVerifier) ID() string { return sv.next.ID() }

// Unwrap returns the wrapped executable.
func (sv *SideSwapVerifier) Unwrap() ports.Executable { return sv.next }

// Execute runs both orientations and compares them.
func (sv *SideSwapVerifier) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := sv.tracer.Start(ctx, "SideSwapVerifier.Execute")
	defer span.End()

	a, _ := domain.Get(state, domain.KeyRankingA)
	b, _ := domain.Get(state, domain.KeyRankingB)

	first, err := sv.run(ctx, state, 0)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return state, fmt.Errorf("first execution failed: %w", err)
	}

	swapped := state.WithMultiple(map[string]any{
		domain.KeyRankingA.Name(): b,
		domain.KeyRankingB.Name(): a,
	})
	second, err := sv.run(ctx, swapped, 1)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return state, fmt.Errorf("swapped execution failed: %w", err)
	}

	if err := compareResults(first, second); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sv.record("asymmetric")
		return state, err
	}

	span.AddEvent("symmetry_verified")
	span.SetStatus(codes.Ok, "")
	sv.record("ok")
	return first, nil
}

func (sv *SideSwapVerifier) run(ctx context.Context, state domain.State, runIndex int) (domain.State, error) {
	ctx, span := sv.tracer.Start(ctx, fmt.Sprintf("SideSwapVerifier.Run%d", runIndex),
		trace.WithAttributes(attribute.Int("run_index", runIndex)))
	defer span.End()

	out, err := sv.next.Execute(ctx, state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}
	return out, nil
}

func (sv *SideSwapVerifier) record(status string) {
	if sv.metrics != nil {
		sv.metrics.RecordCounter(MetricSymmetryChecks, 1, map[string]string{"status": status})
	}
}

// compareResults checks that two result states carry the same kernel and
// the same consensus ranking, cluster order included.
func compareResults(first, second domain.State) error {
	k1, err := domain.MustGet(first, domain.KeyKernel)
	if err != nil {
		return err
	}
	k2, err := domain.MustGet(second, domain.KeyKernel)
	if err != nil {
		return err
	}
	if !slices.Equal(k1, k2) {
		return fmt.Errorf("%w: kernels differ: %v vs %v", ErrAsymmetricResult, k1, k2)
	}

	c1, err := domain.MustGet(first, domain.KeyConsensus)
	if err != nil {
		return err
	}
	c2, err := domain.MustGet(second, domain.KeyConsensus)
	if err != nil {
		return err
	}
	if !slices.EqualFunc(c1, c2, func(x, y domain.Cluster) bool { return slices.Equal(x, y) }) {
		return fmt.Errorf("%w: consensus rankings differ: %v vs %v", ErrAsymmetricResult, c1, c2)
	}
	return nil
}
