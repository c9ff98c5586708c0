package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var (
	_ ports.Unit                 = (*KernelUnit)(nil)
	_ ports.ParameterUnmarshaler = (*KernelUnit)(nil)
)

// DetectKernel returns the contradiction kernel of two precedence
// matrices over u: the pairs on which neither direction is supported by
// both rankings.
//
// Pairs are reported as identifiers with Lo < Hi in ascending (Lo, Hi)
// order; callers rely on that order. The result is never nil. Both
// matrices must be sized to u.
func DetectKernel(a, b *domain.Relation, u domain.Universe) []domain.Pair {
	n := u.Size()
	kernel := make([]domain.Pair, 0)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			fwd := a.Get(i, j) && b.Get(i, j)
			bwd := a.Get(j, i) && b.Get(j, i)
			if !fwd && !bwd {
				kernel = append(kernel, domain.NewPair(u.ID(i), u.ID(j)))
			}
		}
	}
	return kernel
}

// KernelUnit detects the contradiction kernel between the two precedence
// matrices in the state. It takes no parameters.
//
// Concurrency: KernelUnit is stateless and safe for concurrent execution.
type KernelUnit struct {
	name   string
	config KernelConfig
	tracer trace.Tracer
}

// KernelConfig is empty; any parameter is rejected.
type KernelConfig struct{}

// NewKernelUnit creates a KernelUnit.
func NewKernelUnit(name string, config KernelConfig) (*KernelUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &KernelUnit{name: name, config: config, tracer: newTracer()}, nil
}

// Name returns the unique identifier for this unit instance.
func (ku *KernelUnit) Name() string { return ku.name }

// Execute computes the kernel of domain.KeyPrecedenceA and
// domain.KeyPrecedenceB and stores it under domain.KeyKernel.
func (ku *KernelUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := ku.tracer.Start(ctx, "KernelUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", TypeKernel),
			attribute.String("unit.id", ku.name),
		),
	)
	defer span.End()

	fail := func(err error) (domain.State, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	universe, err := domain.MustGet(state, domain.KeyUniverse)
	if err != nil {
		return fail(err)
	}
	a, err := domain.MustGet(state, domain.KeyPrecedenceA)
	if err != nil {
		return fail(err)
	}
	b, err := domain.MustGet(state, domain.KeyPrecedenceB)
	if err != nil {
		return fail(err)
	}
	if err := requireSize(universe, a, b); err != nil {
		return fail(err)
	}

	kernel := DetectKernel(a, b, universe)
	span.SetAttributes(attribute.Int("kernel.size", len(kernel)))

	return domain.With(state, domain.KeyKernel, kernel), nil
}

// Validate verifies the unit is properly configured and ready for execution.
func (ku *KernelUnit) Validate() error {
	if ku.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// UnmarshalParameters rejects every parameter; the kernel has none.
func (ku *KernelUnit) UnmarshalParameters(params yaml.Node) error {
	var config KernelConfig
	if err := decodeNode(params, &config); err != nil {
		return err
	}
	ku.config = config
	return nil
}

// NewKernelFromConfig creates a KernelUnit from a configuration map.
func NewKernelFromConfig(id string, config map[string]any) (ports.Unit, error) {
	var cfg KernelConfig
	if err := decodeParams(config, &cfg); err != nil {
		return nil, fmt.Errorf("kernel unit %q: %w", id, err)
	}
	unit, err := NewKernelUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
