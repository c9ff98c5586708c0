package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ahrav/go-concord/infrastructure/middleware"
	"github.com/ahrav/go-concord/internal/application"
)

// session carries the logger and metrics registry of one command run.
type session struct {
	logger      *zap.Logger
	registry    *prometheus.Registry
	metrics     *middleware.PrometheusMetrics
	metricsFile string
	opts        *globalOptions
}

func newSession(opts *globalOptions) (*session, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if opts.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s := &session{logger: logger, metricsFile: opts.metricsFile, opts: opts}
	if opts.metricsFile != "" {
		s.registry = prometheus.NewRegistry()
		s.metrics, err = middleware.NewPrometheusMetrics(s.registry, middleware.WithErrorHandler(func(err error) {
			logger.Warn("metric dropped", zap.Error(err))
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}
	return s, nil
}

// engineOptions translates the global flags into engine options.
func (s *session) engineOptions() []application.EngineOption {
	opts := []application.EngineOption{
		application.WithLogger(s.logger),
		application.WithMaxObjects(s.opts.maxObjects),
		application.WithTimeout(s.opts.timeout),
		application.WithSymmetryCheck(s.opts.verifySymmetry),
	}
	if s.metrics != nil {
		opts = append(opts, application.WithMetrics(s.metrics))
	}
	if s.opts.workflow != "" {
		opts = append(opts, application.WithWorkflowFile(s.opts.workflow))
	}
	return opts
}

// close flushes the logger and writes the metrics file, if requested.
func (s *session) close() error {
	_ = s.logger.Sync()
	if s.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(s.metricsFile, s.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
