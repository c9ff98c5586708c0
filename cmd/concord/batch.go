package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-concord/infrastructure/codec"
	"github.com/ahrav/go-concord/internal/application"
)

func newBatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <batch.yaml>",
		Short: "Reconcile every job of a batch file",
		Long: `Reconcile every job listed in a batch file and print one JSON line per
job, in job order. Ranking files are resolved relative to the batch file.

Batch options override --max-objects and --verify-symmetry when set. The
command exits non-zero if any job failed.

Example batch file:

  version: "1.0.0"
  metadata:
    name: nightly
  options:
    concurrency: 4
    rate_limit: 100
  jobs:
    - id: first
      a: {file: rankings/a.json}
      b: {inline: [[1, 2], 3]}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := application.LoadBatchConfig(args[0])
			if err != nil {
				return err
			}

			s, err := newSession(opts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close()) }()

			runner := application.NewBatchRunner(s.logger, filepath.Dir(args[0]), s.engineOptions()...)
			results, runErr := runner.Run(cmd.Context(), cfg)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
				line, err := codec.EncodeRecord(r.ID, r.Reconciliation, r.Err)
				if err != nil {
					return fmt.Errorf("failed to encode job %s: %w", r.ID, err)
				}
				if err := writeLine(cmd, line); err != nil {
					return err
				}
			}

			if runErr != nil {
				return runErr
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(results))
			}
			return nil
		},
	}
}
