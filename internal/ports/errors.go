package ports

import (
	"errors"
	"fmt"
	"io/fs"
)

// Errors reported while loading workflow and batch documents or recording
// metrics.
var (
	// ErrConfigNotFound indicates that a workflow or batch document does
	// not exist.
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrUnknownUnitType indicates a workflow referenced a unit type that no
	// factory is registered for.
	ErrUnknownUnitType = errors.New("unknown unit type")

	// ErrUnknownMetric indicates a metric name the collector does not export.
	ErrUnknownMetric = errors.New("unknown metric")
)

// MetricsError reports a metric that could not be registered or recorded.
type MetricsError struct {
	// Metric is the metric name.
	Metric string
	// Operation is the collector method or step that failed.
	Operation string
	Err       error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a MetricsError.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{Metric: metric, Operation: operation, Err: err}
}

// ConfigError ties a loading failure to the document it came from.
type ConfigError struct {
	// Path is the file the document was read from.
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError for the document at path.
func NewConfigError(path string, err error) *ConfigError {
	return &ConfigError{Path: path, Err: err}
}

// ReadConfigError wraps a failure to read the document at path. Missing
// files also match ErrConfigNotFound.
func ReadConfigError(path string, err error) *ConfigError {
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfigError(path, fmt.Errorf("failed to read file: %w: %w", ErrConfigNotFound, err))
	}
	return NewConfigError(path, fmt.Errorf("failed to read file: %w", err))
}
