package application

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-concord/infrastructure/units"
	"github.com/ahrav/go-concord/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// typeFolder normalizes unit type names so that "Kernel" and "kernel"
// resolve to the same factory.
var typeFolder = cases.Fold()

// maxSuggestionDistance bounds the edit distance of "did you mean" hints.
const maxSuggestionDistance = 3

// DefaultUnitRegistry maps unit type names to factories. It comes with the
// five reconciliation stages registered.
type DefaultUnitRegistry struct {
	factories map[string]ports.UnitFactory
	mu        sync.RWMutex
}

// NewDefaultUnitRegistry creates a registry with the built-in stage types.
func NewDefaultUnitRegistry() *DefaultUnitRegistry {
	r := &DefaultUnitRegistry{factories: make(map[string]ports.UnitFactory)}
	r.factories[units.TypePrecedence] = units.NewPrecedenceFromConfig
	r.factories[units.TypeKernel] = units.NewKernelFromConfig
	r.factories[units.TypeCompose] = units.NewComposeFromConfig
	r.factories[units.TypeClosure] = units.NewClosureFromConfig
	r.factories[units.TypeOrder] = units.NewOrderFromConfig
	return r
}

func normalizeType(unitType string) string {
	return typeFolder.String(strings.TrimSpace(unitType))
}

// CreateUnit builds a unit of the given type. Unknown types produce an
// error wrapping ports.ErrUnknownUnitType, with a suggestion when a
// registered type is close enough.
func (r *DefaultUnitRegistry) CreateUnit(
	unitType string,
	id string,
	config map[string]any,
) (ports.Unit, error) {
	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	key := normalizeType(unitType)
	r.mu.RLock()
	factory, exists := r.factories[key]
	r.mu.RUnlock()

	if !exists {
		if s := r.suggest(key); s != "" {
			return nil, fmt.Errorf("%w: %q (did you mean %q?)", ports.ErrUnknownUnitType, unitType, s)
		}
		return nil, fmt.Errorf("%w: %q", ports.ErrUnknownUnitType, unitType)
	}

	if config == nil {
		config = make(map[string]any)
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, key, err)
	}
	return unit, nil
}

// RegisterUnitFactory adds or replaces the factory for unitType.
func (r *DefaultUnitRegistry) RegisterUnitFactory(
	unitType string,
	factory ports.UnitFactory,
) error {
	key := normalizeType(unitType)
	if key == "" {
		return fmt.Errorf("unit type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[key] = factory
	return nil
}

// GetSupportedTypes returns the registered type names in ascending order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// suggest returns the registered type closest to the normalized key, or
// "" when none is within a small edit distance.
func (r *DefaultUnitRegistry) suggest(key string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, t := range r.GetSupportedTypes() {
		if d := levenshtein.ComputeDistance(key, t); d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}
