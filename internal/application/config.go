package application

import (
	"time"

	"gopkg.in/yaml.v3"
)

// WorkflowConfig describes the stage graph an Engine executes. It is the
// document read by WorkflowLoader.
type WorkflowConfig struct {
	// Version is the configuration schema version (semantic versioning).
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata names and describes the workflow.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Units declares the stage instances used by the graph.
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
	// Graph wires the units into pipelines, layers and edges.
	Graph GraphTopology `yaml:"graph" validate:"required"`
}

// Metadata provides descriptive information about a workflow or batch.
type Metadata struct {
	// Name is the human-readable identifier of the document.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description explains the document's purpose.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs.
	Labels map[string]string `yaml:"labels" validate:"max=50"`
}

// UnitConfig declares one stage instance.
type UnitConfig struct {
	// ID is the node identifier referenced by pipelines, layers and edges.
	ID string `yaml:"id" validate:"required,nodeid"`
	// Type selects the stage implementation from the unit registry.
	Type string `yaml:"type" validate:"required,min=1,max=100"`
	// Parameters holds type-specific settings, validated by the unit.
	Parameters yaml.Node `yaml:"parameters"`
}

// GraphTopology specifies how units are grouped and ordered.
type GraphTopology struct {
	// Pipelines are sequential chains of units.
	Pipelines []PipelineConfig `yaml:"pipelines" validate:"dive"`
	// Layers are groups of independent units that run concurrently.
	Layers []LayerConfig `yaml:"layers" validate:"dive"`
	// Edges order nodes (units, pipelines or layers) relative to each other.
	Edges []EdgeConfig `yaml:"edges" validate:"dive"`
}

// PipelineConfig defines a sequential chain of units.
type PipelineConfig struct {
	ID    string   `yaml:"id" validate:"required,nodeid"`
	Units []string `yaml:"units" validate:"required,min=1,dive,nodeid"`
}

// LayerConfig defines a group of units that execute in parallel on the same
// input state.
type LayerConfig struct {
	ID    string   `yaml:"id" validate:"required,nodeid"`
	Units []string `yaml:"units" validate:"required,min=2,dive,nodeid"`
	// Concurrency bounds the number of units running at once; 0 uses the
	// layer default.
	Concurrency int `yaml:"concurrency" validate:"min=0,max=256"`
}

// EdgeConfig makes To run after From.
type EdgeConfig struct {
	From string `yaml:"from" validate:"required,nodeid"`
	To   string `yaml:"to" validate:"required,nodeid,nefield=From"`
}

// BatchConfig describes a set of reconciliations run by BatchRunner.
type BatchConfig struct {
	Version  string       `yaml:"version" validate:"required,semver"`
	Metadata Metadata     `yaml:"metadata" validate:"required"`
	Options  BatchOptions `yaml:"options"`
	Jobs     []JobConfig  `yaml:"jobs" validate:"required,min=1,dive"`
}

// BatchOptions controls how a batch is executed.
type BatchOptions struct {
	// Concurrency is the number of jobs reconciled at once. Zero means one.
	Concurrency int `yaml:"concurrency" validate:"omitempty,min=1,max=256"`
	// MaxObjects caps the universe size of every job. Zero disables the cap.
	MaxObjects int `yaml:"max_objects" validate:"min=0"`
	// RateLimit bounds how many jobs start per second. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	// Timeout bounds each job's reconciliation, e.g. "30s". Zero disables it.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// FailFast aborts the batch at the first failed job.
	FailFast bool `yaml:"fail_fast"`
	// VerifySymmetry reconciles every job a second time with its inputs
	// swapped and fails the job if the results differ.
	VerifySymmetry bool `yaml:"verify_symmetry"`
}

// JobConfig is one pair of rankings to reconcile.
type JobConfig struct {
	ID string        `yaml:"id" validate:"required,min=1,max=100"`
	A  RankingSource `yaml:"a"`
	B  RankingSource `yaml:"b"`
}

// RankingSource locates one ranking: either a JSON document on disk or a
// ranking written inline in YAML. Exactly one of the two must be set;
// registerCustomValidators enforces this at struct level.
type RankingSource struct {
	// File is the path of a JSON ranking document. Relative paths resolve
	// against the batch file's directory.
	File string `yaml:"file"`
	// Inline is a ranking written as a YAML sequence.
	Inline yaml.Node `yaml:"inline"`
}

// HasInline reports whether the source carries an inline ranking.
func (rs RankingSource) HasInline() bool { return rs.Inline.Kind != 0 }
