package application

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/infrastructure/codec"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// JobResult is the outcome of one batch job. Exactly one of
// Reconciliation and Err is set, except for jobs skipped after a
// fail-fast abort, which carry the cancellation error.
type JobResult struct {
	ID             string
	Reconciliation *domain.Reconciliation
	Err            error
}

// ParseBatchConfig decodes and validates a batch document. Unknown fields
// are rejected.
func ParseBatchConfig(data []byte) (*BatchConfig, error) {
	var cfg BatchConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse batch YAML: %w", err)
	}
	if err := ValidateBatchConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadBatchConfig reads and parses the batch document at path.
func LoadBatchConfig(path string) (*BatchConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, ports.ReadConfigError(path, err)
	}
	cfg, err := ParseBatchConfig(data)
	if err != nil {
		return nil, ports.NewConfigError(path, err)
	}
	return cfg, nil
}

// ValidateBatchConfig checks struct tags, ranking sources and job ID
// uniqueness.
func ValidateBatchConfig(cfg *BatchConfig) error {
	v, err := newValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("batch validation failed: %w", err)
	}
	seen := make(map[string]struct{}, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		if _, dup := seen[job.ID]; dup {
			return fmt.Errorf("batch validation failed: duplicate job ID %q", job.ID)
		}
		seen[job.ID] = struct{}{}
	}
	return nil
}

// BatchRunner reconciles the jobs of a BatchConfig concurrently.
type BatchRunner struct {
	logger     *zap.Logger
	engineOpts []EngineOption
	// baseDir resolves relative ranking file paths.
	baseDir string
}

// NewBatchRunner creates a runner. engineOpts configure the engine built
// for every Run; batch options override the object cap, the timeout and
// the symmetry check when the batch sets them. A nil logger discards output.
func NewBatchRunner(logger *zap.Logger, baseDir string, engineOpts ...EngineOption) *BatchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{logger: logger, engineOpts: engineOpts, baseDir: baseDir}
}

// Run reconciles every job and returns the results in job order. Without
// fail_fast a failing job only records its error and Run returns a nil
// error; with fail_fast the first failure cancels the remaining jobs and
// is returned.
func (br *BatchRunner) Run(ctx context.Context, cfg *BatchConfig) ([]JobResult, error) {
	if err := ValidateBatchConfig(cfg); err != nil {
		return nil, err
	}

	opts := append([]EngineOption{WithLogger(br.logger)}, br.engineOpts...)
	if cfg.Options.MaxObjects > 0 {
		opts = append(opts, WithMaxObjects(cfg.Options.MaxObjects))
	}
	if cfg.Options.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Options.Timeout))
	}
	if cfg.Options.VerifySymmetry {
		opts = append(opts, WithSymmetryCheck(true))
	}
	engine, err := NewEngine(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", cfg.Metadata.Name, err)
	}

	concurrency := cfg.Options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	var limiter *rate.Limiter
	if cfg.Options.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Options.RateLimit), 1)
	}

	br.logger.Info("batch started",
		zap.String("batch", cfg.Metadata.Name),
		zap.Int("jobs", len(cfg.Jobs)),
		zap.Int("concurrency", concurrency),
		zap.Float64("rate_limit", cfg.Options.RateLimit),
		zap.Bool("fail_fast", cfg.Options.FailFast),
	)
	start := time.Now()

	results := make([]JobResult, len(cfg.Jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range cfg.Jobs {
		results[i].ID = job.ID
		g.Go(func() error {
			rec, err := br.runJob(gctx, engine, limiter, job)
			results[i].Reconciliation, results[i].Err = rec, err
			if err != nil {
				br.logger.Warn("batch job failed", zap.String("job", job.ID), zap.Error(err))
				if cfg.Options.FailFast {
					return fmt.Errorf("job %s: %w", job.ID, err)
				}
			}
			return nil
		})
	}
	runErr := g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	br.logger.Info("batch finished",
		zap.String("batch", cfg.Metadata.Name),
		zap.Int("jobs", len(results)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, runErr
}

func (br *BatchRunner) runJob(
	ctx context.Context,
	engine *Engine,
	limiter *rate.Limiter,
	job JobConfig,
) (*domain.Reconciliation, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a, err := br.loadRanking(job.A)
	if err != nil {
		return nil, domain.AttributeSide(err, domain.SideA)
	}
	b, err := br.loadRanking(job.B)
	if err != nil {
		return nil, domain.AttributeSide(err, domain.SideB)
	}
	return engine.Reconcile(ctx, a, b)
}

// loadRanking reads a ranking from a file or from its inline YAML form.
func (br *BatchRunner) loadRanking(src RankingSource) (domain.ClusterRanking, error) {
	if src.HasInline() {
		return codec.RankingFromYAML(&src.Inline)
	}

	path := src.File
	if !filepath.IsAbs(path) && br.baseDir != "" {
		path = filepath.Join(br.baseDir, path)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read ranking %s: %w", src.File, err)
	}
	return codec.DecodeRanking(data)
}
