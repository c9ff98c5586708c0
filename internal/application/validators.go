package application

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/ports"
)

var (
	semverPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)
	nodeIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,99}$`)
)

// newValidator returns a validator with the configuration rules used by
// workflow and batch documents registered.
func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, err
	}
	return v, nil
}

// registerCustomValidators adds the semver and nodeid tags and the
// RankingSource struct rule to v.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("nodeid", validateNodeID); err != nil {
		return fmt.Errorf("failed to register nodeid validator: %w", err)
	}
	v.RegisterStructValidation(validateRankingSource, RankingSource{})
	return nil
}

// validateSemver accepts MAJOR.MINOR.PATCH with optional pre-release and
// build suffixes.
func validateSemver(fl validator.FieldLevel) bool {
	return semverPattern.MatchString(fl.Field().String())
}

// validateNodeID accepts identifiers that start with a letter and continue
// with letters, digits, underscores or hyphens.
func validateNodeID(fl validator.FieldLevel) bool {
	return nodeIDPattern.MatchString(fl.Field().String())
}

// validateRankingSource requires exactly one of File and Inline.
func validateRankingSource(sl validator.StructLevel) {
	rs := sl.Current().Interface().(RankingSource)
	hasFile, hasInline := rs.File != "", rs.HasInline()
	switch {
	case !hasFile && !hasInline:
		sl.ReportError(rs.File, "File", "file", "rankingsource", "")
	case hasFile && hasInline:
		sl.ReportError(rs.File, "File", "file", "rankingsource_exclusive", "")
	}
}

// ValidateUnitParameters checks that params are acceptable for a unit of
// the given type by building one through registry.
func ValidateUnitParameters(registry ports.UnitRegistry, unitType string, params yaml.Node) error {
	_, err := newUnit(registry, unitType, "validation", params)
	return err
}

// newUnit builds and validates a unit of unitType from its parameters
// node. Units implementing ports.ParameterUnmarshaler are created with
// defaults and decode the node themselves; factories of other units get
// the parameters as a map.
func newUnit(registry ports.UnitRegistry, unitType, id string, params yaml.Node) (ports.Unit, error) {
	unit, err := registry.CreateUnit(unitType, id, nil)
	if errors.Is(err, ports.ErrUnknownUnitType) {
		return nil, err
	}

	pu, direct := unit.(ports.ParameterUnmarshaler)
	if err != nil || !direct {
		config, derr := decodeParameters(params)
		if derr != nil {
			return nil, derr
		}
		if unit, err = registry.CreateUnit(unitType, id, config); err != nil {
			return nil, err
		}
	} else if err := pu.UnmarshalParameters(params); err != nil {
		return nil, fmt.Errorf("failed to configure unit %s of type %s: %w", id, unitType, err)
	}

	if err := unit.Validate(); err != nil {
		return nil, fmt.Errorf("unit %s: %w", id, err)
	}
	return unit, nil
}

// decodeParameters converts a unit's parameters node to the map form
// accepted by unit factories. An absent or null node yields an empty map.
func decodeParameters(params yaml.Node) (map[string]any, error) {
	out := make(map[string]any)
	if params.Kind == 0 || (params.Kind == yaml.ScalarNode && params.Tag == "!!null") {
		return out, nil
	}
	if params.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to decode parameters: expected a mapping, got %s", nodeKindName(params.Kind))
	}
	if err := params.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return out, nil
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
