package application

import (
	"fmt"
	"reflect"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.MergeStrategy = KeyUnionMerge{}

// ErrMergeConflict is returned when two parallel branches write different
// values under the same state key.
var ErrMergeConflict = fmt.Errorf("%w: conflicting parallel writes", domain.ErrInvalidState)

// KeyUnionMerge combines parallel branch states by taking, from every
// branch, the keys it added or changed relative to the base state. Two
// branches writing the same key must agree on its value.
type KeyUnionMerge struct{}

// Merge implements ports.MergeStrategy. Branches are visited in slice
// order.
func (KeyUnionMerge) Merge(base domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return base, nil
	}

	updates := make(map[string]any)
	for _, s := range states {
		for _, key := range s.Keys() {
			value, _ := s.GetRaw(key)
			if prev, ok := base.GetRaw(key); ok && reflect.DeepEqual(prev, value) {
				continue
			}
			if prev, ok := updates[key]; ok {
				if !reflect.DeepEqual(prev, value) {
					return base, fmt.Errorf("%w: key %q", ErrMergeConflict, key)
				}
				continue
			}
			updates[key] = value
		}
	}

	if len(updates) == 0 {
		return base, nil
	}
	return base.WithMultiple(updates), nil
}
