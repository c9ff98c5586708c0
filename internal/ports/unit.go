// Package ports holds the interfaces shared by the domain, application and
// infrastructure layers: units and their registry, workflow graph nodes,
// the reconciler contract and the metrics sink.
package ports

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
)

// Unit is one stage of the reconciliation workflow.
// It reads its inputs from the State and returns a new State carrying its
// output, so stages never share mutable data. A Unit keeps no per-call
// state and may run concurrently.
type Unit interface {
	// Name is the unit's workflow identifier, used in logs, spans and
	// error messages.
	Name() string

	// Execute returns a State extended with the unit's output. The input
	// State is left untouched and failures are returned, not panicked.
	//
	//	next, err := unit.Execute(ctx, state)
	//	if err != nil {
	//	    return state, fmt.Errorf("unit %s: %w", unit.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks the unit's parameters. Workflows call it at compile
	// time, before any reconciliation runs.
	Validate() error
}

// ParameterUnmarshaler is implemented by units that decode the parameters
// block of their workflow entry themselves. The workflow loader creates
// such units with default settings and then hands them the raw node.
// On error the unit's configuration is left unchanged.
type ParameterUnmarshaler interface {
	UnmarshalParameters(params yaml.Node) error
}

// UnitFactory creates a unit from its workflow identifier and the decoded
// parameters of its configuration block.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry resolves unit types named in workflow configurations to
// factories.
type UnitRegistry interface {
	// CreateUnit instantiates a unit of unitType.
	// It returns an error for unknown types or invalid parameters.
	CreateUnit(unitType string, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory adds or replaces the factory for unitType.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// GetSupportedTypes lists the registered unit types in ascending order.
	GetSupportedTypes() []string
}
