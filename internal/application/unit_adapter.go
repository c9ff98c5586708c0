package application

import (
	"context"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.Executable = (*UnitAdapter)(nil)

// UnitAdapter lets a reconciliation stage participate in pipelines, layers
// and graphs by exposing a ports.Unit as a ports.Executable.
type UnitAdapter struct {
	unit ports.Unit
	// id is the workflow node ID, which may differ from the unit's name.
	id string
}

// NewUnitAdapter wraps unit under the node identifier id.
func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	return &UnitAdapter{unit: unit, id: id}
}

// Execute delegates to the wrapped unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return ua.unit.Execute(ctx, state)
}

// ID returns the node identifier.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
