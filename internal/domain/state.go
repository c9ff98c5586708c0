// Package domain contains pure, dependency-free domain models and types
// for the reconciliation engine.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the string form of the key as stored in State.
func (k Key[T]) Name() string { return k.name }

// Side names one of the two rankings being reconciled.
type Side string

// The two inputs of a reconciliation.
const (
	SideA Side = "a"
	SideB Side = "b"
)

// Predefined state keys used by the reconciliation stages.
// Each key is strongly typed to ensure type safety at compile time.
var (
	// KeyRankingA stores the first input ranking.
	KeyRankingA = Key[ClusterRanking]{"ranking.a"}

	// KeyRankingB stores the second input ranking.
	KeyRankingB = Key[ClusterRanking]{"ranking.b"}

	// KeyUniverse stores the shared object universe of both rankings.
	KeyUniverse = Key[Universe]{"universe"}

	// KeyPrecedenceA stores the precedence matrix of the first ranking.
	KeyPrecedenceA = Key[*Relation]{"precedence.a"}

	// KeyPrecedenceB stores the precedence matrix of the second ranking.
	KeyPrecedenceB = Key[*Relation]{"precedence.b"}

	// KeyKernel stores the contradiction kernel.
	KeyKernel = Key[[]Pair]{"kernel"}

	// KeyConsensusRelation stores the composed consensus relation C.
	KeyConsensusRelation = Key[*Relation]{"consensus.relation"}

	// KeyEquivalence stores the closed equivalence relation E*.
	KeyEquivalence = Key[*Relation]{"equivalence"}

	// KeyClusters stores the equivalence classes in discovery order.
	KeyClusters = Key[[]Cluster]{"clusters"}

	// KeyConsensus stores the final ordered consensus ranking.
	KeyConsensus = Key[ClusterRanking]{"consensus"}

	// Execution context keys for tracking metadata across graph traversal.

	// KeyWorkflowID stores the name of the workflow being executed.
	KeyWorkflowID = Key[string]{"execution.workflow_id"}

	// KeyExecutionID stores a unique identifier for this specific execution
	// instance, useful for tracing and correlation.
	KeyExecutionID = Key[string]{"execution.execution_id"}
)

// RankingKey returns the state key holding the ranking of side s.
func RankingKey(s Side) (Key[ClusterRanking], error) {
	switch s {
	case SideA:
		return KeyRankingA, nil
	case SideB:
		return KeyRankingB, nil
	default:
		return Key[ClusterRanking]{}, fmt.Errorf("%w: unknown side %q", ErrInvalidState, s)
	}
}

// PrecedenceKey returns the state key holding the precedence matrix of side s.
func PrecedenceKey(s Side) (Key[*Relation], error) {
	switch s {
	case SideA:
		return KeyPrecedenceA, nil
	case SideB:
		return KeyPrecedenceB, nil
	default:
		return Key[*Relation]{}, fmt.Errorf("%w: unknown side %q", ErrInvalidState, s)
	}
}

// cloner is implemented by domain types whose unexported fields the
// reflective copy below cannot reach.
type cloner interface {
	clone() any
}

// deepCopyValue creates a deep copy of a value to ensure true immutability.
// It handles slices, maps, and other reference types that would otherwise
// allow external modification of State data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	if c, ok := value.(cloner); ok {
		if v := reflect.ValueOf(value); v.Kind() == reflect.Ptr && v.IsNil() {
			return value
		}
		return c.clone()
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			copied := deepCopyValue(v.Index(i).Interface())
			if copied == nil {
				continue
			}
			newSlice.Index(i).Set(reflect.ValueOf(copied))
		}
		return newSlice.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		newMap := reflect.MakeMapWithSize(v.Type(), v.Len())
		for _, key := range v.MapKeys() {
			copiedKey := deepCopyValue(key.Interface())
			copiedValue := deepCopyValue(v.MapIndex(key).Interface())
			if copiedValue == nil {
				newMap.SetMapIndex(reflect.ValueOf(copiedKey), reflect.Zero(v.Type().Elem()))
				continue
			}
			newMap.SetMapIndex(reflect.ValueOf(copiedKey), reflect.ValueOf(copiedValue))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return v.Interface()
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(reflect.ValueOf(deepCopyValue(v.Elem().Interface())))
		return newPtr.Interface()

	case reflect.Struct:
		// Unexported fields are left zero; types that need them copied
		// implement cloner.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				copied := deepCopyValue(v.Field(i).Interface())
				if copied == nil {
					continue
				}
				newStruct.Field(i).Set(reflect.ValueOf(copied))
			}
		}
		return newStruct.Interface()

	default:
		// Primitive types are returned as-is since they are copied by value.
		return value
	}
}

// State represents an immutable collection of reconciliation data that
// flows through the workflow. It uses copy-on-write semantics to ensure
// thread-safety and prevent unintended mutations. State is the primary
// data structure for passing information between Units.
type State struct {
	// data holds the key-value pairs that make up the state.
	// It is unexported to maintain immutability guarantees.
	data map[string]any
}

// NewState creates a new empty State.
// The returned State is ready to use and can be safely shared across
// goroutines.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a deep
// copy to maintain immutability.
//
// Example:
//
//	kernel, ok := Get(state, KeyKernel)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// MustGet is Get that reports a missing or mistyped key as a *StateError.
func MustGet[T any](s State, key Key[T]) (T, error) {
	var zero T
	raw, exists := s.data[key.name]
	if !exists {
		return zero, NewStateError(key.name, "get", ErrKeyNotFound)
	}
	if _, ok := raw.(T); !ok {
		return zero, NewStateError(key.name, "get",
			fmt.Errorf("%w: have %T", ErrTypeMismatch, raw))
	}
	val, _ := Get(s, key)
	return val, nil
}

// GetRaw is a method version of Get that uses a string key.
// For type safety, use the generic Get function instead.
func (s State) GetRaw(keyName string) (any, bool) {
	value, exists := s.data[keyName]
	if !exists {
		return nil, false
	}
	return deepCopyValue(value), true
}

// With creates a new State with the specified key-value pair added or
// updated. It implements copy-on-write semantics, returning a new State
// instance while leaving the original unchanged. This function is the
// primary way to add or update data in a State.
//
// Example:
//
//	newState := With(state, KeyKernel, pairs)
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any)
	}
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added
// or updated. It is more efficient than chaining multiple With calls as
// it performs a single clone operation.
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State in ascending order.
// The returned slice is safe to modify without affecting the original State.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.Keys())
}

// ExecutionContext contains metadata about the current reconciliation
// that flows through the State during graph traversal. It provides
// consistent access to execution metadata for middleware and observability.
type ExecutionContext struct {
	// WorkflowID is the name of the workflow being executed.
	WorkflowID string

	// ExecutionID is a unique identifier for this specific execution instance,
	// useful for tracing and log correlation.
	ExecutionID string
}

// WithExecutionContext creates a new State with execution context metadata
// included. It should be called at the beginning of workflow execution.
func (s State) WithExecutionContext(ctx ExecutionContext) State {
	return s.WithMultiple(map[string]any{
		KeyWorkflowID.name:  ctx.WorkflowID,
		KeyExecutionID.name: ctx.ExecutionID,
	})
}

// GetExecutionContext extracts execution context metadata from the State.
// It returns the execution context and a boolean indicating whether all
// required context fields are present.
func (s State) GetExecutionContext() (ExecutionContext, bool) {
	workflowID, ok1 := Get(s, KeyWorkflowID)
	executionID, ok2 := Get(s, KeyExecutionID)

	if !ok1 || !ok2 {
		return ExecutionContext{}, false
	}

	return ExecutionContext{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}, true
}
