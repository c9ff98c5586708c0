package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/infrastructure/middleware"
	"github.com/ahrav/go-concord/internal/ports"
)

//go:embed default_workflow.yaml
var defaultWorkflowYAML []byte

// DefaultWorkflow returns a copy of the embedded default workflow document.
func DefaultWorkflow() []byte { return bytes.Clone(defaultWorkflowYAML) }

// Workflow is a compiled, ready-to-execute workflow.
//
// Workflows returned by WorkflowLoader are shared through its cache and
// MUST NOT be mutated.
type Workflow struct {
	// Name is the workflow's metadata name.
	Name string
	// Hash is the SHA-256 of the normalized configuration.
	Hash string
	// Config is the parsed and validated configuration.
	Config *WorkflowConfig
	// Graph is the executable stage graph.
	Graph *Graph
}

// WorkflowLoader parses, validates and compiles workflow documents into
// executable graphs, caching the result by configuration hash.
type WorkflowLoader struct {
	validator    *validator.Validate
	unitRegistry ports.UnitRegistry
	// stageMiddleware wraps every unit node; the first entry is outermost.
	stageMiddleware []ports.ExecutableMiddleware

	cache   map[string]*Workflow
	cacheMu sync.RWMutex
	// sf collapses concurrent compilations of the same configuration.
	sf singleflight.Group
}

// LoaderOption configures a WorkflowLoader.
type LoaderOption func(*WorkflowLoader)

// WithStageMiddleware wraps every compiled unit with mws.
func WithStageMiddleware(mws ...ports.ExecutableMiddleware) LoaderOption {
	return func(wl *WorkflowLoader) {
		wl.stageMiddleware = append(wl.stageMiddleware, mws...)
	}
}

// NewWorkflowLoader creates a loader that instantiates units through
// unitRegistry. A nil registry uses NewDefaultUnitRegistry.
func NewWorkflowLoader(unitRegistry ports.UnitRegistry, opts ...LoaderOption) (*WorkflowLoader, error) {
	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	if unitRegistry == nil {
		unitRegistry = NewDefaultUnitRegistry()
	}

	wl := &WorkflowLoader{
		validator:    v,
		unitRegistry: unitRegistry,
		cache:        make(map[string]*Workflow),
	}
	for _, opt := range opts {
		opt(wl)
	}
	return wl, nil
}

// LoadDefault compiles the embedded default workflow.
func (wl *WorkflowLoader) LoadDefault(ctx context.Context) (*Workflow, error) {
	return wl.Load(ctx, defaultWorkflowYAML)
}

// LoadFromFile compiles the workflow document at path.
func (wl *WorkflowLoader) LoadFromFile(ctx context.Context, path string) (*Workflow, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, ports.ReadConfigError(path, err)
	}
	wf, err := wl.Load(ctx, data)
	if err != nil {
		return nil, ports.NewConfigError(path, err)
	}
	return wf, nil
}

// LoadFromReader compiles the workflow document read from r.
func (wl *WorkflowLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return wl.Load(ctx, data)
}

// Load parses, validates and compiles a workflow document. Documents that
// normalize to the same configuration share one compiled Workflow.
func (wl *WorkflowLoader) Load(ctx context.Context, data []byte) (*Workflow, error) {
	config, err := parseWorkflowYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := configHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := wl.sf.Do(hash, func() (any, error) {
		if wf, ok := wl.cached(hash); ok {
			return wf, nil
		}

		if err := wl.Validate(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		graph, err := wl.buildGraph(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}

		wf := &Workflow{Name: config.Metadata.Name, Hash: hash, Config: config, Graph: graph}
		wl.store(hash, wf)
		return wf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workflow), nil
}

// parseWorkflowYAML decodes data strictly: unknown fields are errors.
func parseWorkflowYAML(data []byte) (*WorkflowConfig, error) {
	var config WorkflowConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// Validate runs struct-tag validation and the semantic checks that tags
// cannot express.
func (wl *WorkflowLoader) Validate(config *WorkflowConfig) error {
	if err := wl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := wl.validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validateSemantics enforces globally unique node IDs, reference
// integrity, single placement of units and valid unit parameters.
func (wl *WorkflowLoader) validateSemantics(config *WorkflowConfig) error {
	allNodeIDs := make(map[string]string) // ID -> node kind
	unitIDs := make(map[string]struct{})

	for _, unit := range config.Units {
		if kind, exists := allNodeIDs[unit.ID]; exists {
			return fmt.Errorf("duplicate ID %q: already used by %s", unit.ID, kind)
		}
		allNodeIDs[unit.ID] = "unit"
		unitIDs[unit.ID] = struct{}{}

		if err := ValidateUnitParameters(wl.unitRegistry, unit.Type, unit.Parameters); err != nil {
			return fmt.Errorf("unit %s parameter validation failed: %w", unit.ID, err)
		}
	}

	placed := make(map[string]string) // unit ID -> container ID
	place := func(container, kind string, members []string) error {
		if prev, exists := allNodeIDs[container]; exists {
			return fmt.Errorf("duplicate ID %q: already used by %s", container, prev)
		}
		allNodeIDs[container] = kind
		for _, unitID := range members {
			if _, exists := unitIDs[unitID]; !exists {
				return fmt.Errorf("%s %s references non-existent unit: %s", kind, container, unitID)
			}
			if prev, exists := placed[unitID]; exists {
				return fmt.Errorf("unit %s is placed in both %s and %s", unitID, prev, container)
			}
			placed[unitID] = container
		}
		return nil
	}

	for _, p := range config.Graph.Pipelines {
		if err := place(p.ID, "pipeline", p.Units); err != nil {
			return err
		}
	}
	for _, l := range config.Graph.Layers {
		if err := place(l.ID, "layer", l.Units); err != nil {
			return err
		}
	}

	for _, edge := range config.Graph.Edges {
		for _, end := range []string{edge.From, edge.To} {
			if _, exists := allNodeIDs[end]; !exists {
				return fmt.Errorf("edge %s->%s references non-existent node: %s", edge.From, edge.To, end)
			}
			if container, inside := placed[end]; inside {
				return fmt.Errorf("edge %s->%s references unit %s inside %s", edge.From, edge.To, end, container)
			}
		}
	}
	return nil
}

// buildGraph instantiates every unit through the registry and assembles
// pipelines, layers, standalone units and edges in declaration order.
func (wl *WorkflowLoader) buildGraph(ctx context.Context, config *WorkflowConfig) (*Graph, error) {
	graph := NewGraph()

	stages := make(map[string]ports.Executable, len(config.Units))
	for _, uc := range config.Units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exec, err := wl.createStage(uc)
		if err != nil {
			return nil, fmt.Errorf("failed to create unit %s: %w", uc.ID, err)
		}
		stages[uc.ID] = exec
	}

	placed := make(map[string]struct{})

	for _, pc := range config.Graph.Pipelines {
		pipeline := NewPipeline(pc.ID)
		for _, unitID := range pc.Units {
			if err := pipeline.Add(stages[unitID]); err != nil {
				return nil, fmt.Errorf("failed to add unit to pipeline: %w", err)
			}
			placed[unitID] = struct{}{}
		}
		if err := graph.AddNode(pipeline); err != nil {
			return nil, fmt.Errorf("failed to add pipeline to graph: %w", err)
		}
	}

	for _, lc := range config.Graph.Layers {
		layer := NewLayer(lc.ID)
		if lc.Concurrency > 0 {
			layer.SetConcurrencyLimit(lc.Concurrency)
		}
		for _, unitID := range lc.Units {
			if err := layer.Add(stages[unitID]); err != nil {
				return nil, fmt.Errorf("failed to add unit to layer: %w", err)
			}
			placed[unitID] = struct{}{}
		}
		if err := graph.AddNode(layer); err != nil {
			return nil, fmt.Errorf("failed to add layer to graph: %w", err)
		}
	}

	for _, uc := range config.Units {
		if _, isPlaced := placed[uc.ID]; isPlaced {
			continue
		}
		if err := graph.AddNode(stages[uc.ID]); err != nil {
			return nil, fmt.Errorf("failed to add unit to graph: %w", err)
		}
	}

	for _, edge := range config.Graph.Edges {
		if err := graph.AddEdge(edge.From, edge.To); err != nil {
			return nil, fmt.Errorf("failed to add edge: %w", err)
		}
	}
	return graph, nil
}

// createStage builds one unit and wraps it in the stage middleware.
func (wl *WorkflowLoader) createStage(uc UnitConfig) (ports.Executable, error) {
	unit, err := newUnit(wl.unitRegistry, uc.Type, uc.ID, uc.Parameters)
	if err != nil {
		return nil, err
	}
	return middleware.Chain(NewUnitAdapter(unit, uc.ID), wl.stageMiddleware...), nil
}

// configHash is the SHA-256 of config re-encoded with fixed formatting,
// so that whitespace and comments do not affect caching.
func configHash(config *WorkflowConfig) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func (wl *WorkflowLoader) cached(hash string) (*Workflow, bool) {
	wl.cacheMu.RLock()
	defer wl.cacheMu.RUnlock()

	wf, ok := wl.cache[hash]
	return wf, ok
}

func (wl *WorkflowLoader) store(hash string, wf *Workflow) {
	wl.cacheMu.Lock()
	defer wl.cacheMu.Unlock()

	wl.cache[hash] = wf
}
