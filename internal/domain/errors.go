package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during reconciliation.
var (
	// ErrInvalidState indicates that a State operation received invalid input.
	ErrInvalidState = errors.New("invalid state")

	// ErrKeyNotFound indicates that a requested state key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTypeMismatch indicates that a value's type doesn't match the expected type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrMalformedRanking indicates a ranking element that is neither an
	// object identifier nor a non-empty list of identifiers.
	ErrMalformedRanking = errors.New("malformed ranking")

	// ErrMissingRanking indicates that a ranking document was absent.
	ErrMissingRanking = errors.New("missing ranking")

	// ErrInvalidObjectID indicates a non-positive object identifier.
	ErrInvalidObjectID = errors.New("invalid object identifier")

	// ErrDuplicateObject indicates that an object appears in more than one
	// level of the same ranking.
	ErrDuplicateObject = errors.New("duplicate object")

	// ErrUniverseTooLarge indicates that the union of both rankings exceeds
	// the configured object cap.
	ErrUniverseTooLarge = errors.New("universe too large")

	// ErrDimensionMismatch indicates relations of different sizes were combined.
	ErrDimensionMismatch = errors.New("relation dimension mismatch")

	// ErrCyclicConsensus indicates that the cluster order graph contains a
	// cycle. Valid inputs never produce one.
	ErrCyclicConsensus = errors.New("consensus cluster graph is cyclic")
)

// StateError represents an error that occurred during State operations.
// It provides context about which key and operation caused the error.
type StateError struct {
	// Key is the name of the state key involved in the failed operation.
	Key string

	// Operation describes what operation was being performed when the error occurred.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("state error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a new StateError with the given details.
func NewStateError(key, operation string, err error) *StateError {
	return &StateError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// RankingError reports an input-validation failure in one of the two
// rankings handed to the engine.
type RankingError struct {
	// Side names the offending input ("a" or "b"); empty when unknown.
	Side string

	// Position is the zero-based level index, or -1 for whole-document errors.
	Position int

	// Err is the underlying validation error.
	Err error
}

// Error implements the error interface for RankingError.
func (e *RankingError) Error() string {
	side := e.Side
	if side == "" {
		side = "?"
	}
	if e.Position < 0 {
		return fmt.Sprintf("ranking error: side=%s, err=%v", side, e.Err)
	}
	return fmt.Sprintf("ranking error: side=%s, position=%d, err=%v", side, e.Position, e.Err)
}

// Unwrap returns the underlying error.
func (e *RankingError) Unwrap() error { return e.Err }

// NewRankingError creates a new RankingError with the given details.
func NewRankingError(side string, position int, err error) *RankingError {
	return &RankingError{
		Side:     side,
		Position: position,
		Err:      err,
	}
}

// AttributeSide returns err with the side of any *RankingError it carries
// set to side. Other errors are returned unchanged.
func AttributeSide(err error, side Side) error {
	var re *RankingError
	if !errors.As(err, &re) {
		return err
	}
	if re.Side != "" {
		return err
	}
	return NewRankingError(string(side), re.Position, re.Err)
}

// SizeLimitError reports a reconciliation whose universe exceeds the
// configured object cap.
type SizeLimitError struct {
	// Limit is the configured maximum number of distinct objects.
	Limit int

	// Size is the number of distinct objects actually seen.
	Size int
}

// Error implements the error interface for SizeLimitError.
func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("universe too large: %d objects exceeds limit of %d", e.Size, e.Limit)
}

// Unwrap returns ErrUniverseTooLarge so callers can match with errors.Is.
func (e *SizeLimitError) Unwrap() error { return ErrUniverseTooLarge }

// NewSizeLimitError creates a SizeLimitError.
func NewSizeLimitError(limit, size int) *SizeLimitError {
	return &SizeLimitError{Limit: limit, Size: size}
}
