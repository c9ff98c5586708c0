// Package units provides the reconciliation stages as implementations of
// the ports.Unit interface. Each unit wraps one pure function of this
// package, reading its inputs from and writing its output to a
// domain.State.
package units

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
)

// Unit type names used in workflow configurations.
const (
	TypePrecedence = "precedence"
	TypeKernel     = "kernel"
	TypeCompose    = "compose"
	TypeClosure    = "closure"
	TypeOrder      = "order"
)

// Common errors returned by the stage units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrKernelOutsideUniverse is returned when a kernel pair names an
	// object the universe does not contain.
	ErrKernelOutsideUniverse = errors.New("kernel pair outside universe")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// tracerName is the instrumentation scope shared by every stage unit.
const tracerName = "github.com/ahrav/go-concord/infrastructure/units"

func newTracer() trace.Tracer { return otel.Tracer(tracerName) }

// decodeParams overlays a parameter map onto cfg. Unknown keys are
// rejected so that a typo in a workflow file fails at compile time rather
// than being silently ignored.
func decodeParams(params map[string]any, cfg any) error {
	if len(params) == 0 {
		return nil
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// decodeNode is the yaml.Node counterpart of decodeParams. An absent or
// null node leaves cfg untouched; anything but a mapping is rejected.
func decodeNode(node yaml.Node, cfg any) error {
	switch {
	case node.Kind == 0, node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		return nil
	case node.Kind != yaml.MappingNode:
		return fmt.Errorf("failed to decode parameters: expected a mapping")
	}
	data, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	return nil
}

// requireSize checks that every relation is square over the universe.
func requireSize(u domain.Universe, rels ...*domain.Relation) error {
	for _, r := range rels {
		if r == nil {
			return fmt.Errorf("%w: nil relation", domain.ErrInvalidState)
		}
		if r.Size() != u.Size() {
			return fmt.Errorf("%w: relation is %dx%d, universe has %d objects",
				domain.ErrDimensionMismatch, r.Size(), r.Size(), u.Size())
		}
	}
	return nil
}
