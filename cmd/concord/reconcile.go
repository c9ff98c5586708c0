package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-concord/infrastructure/codec"
	"github.com/ahrav/go-concord/internal/application"
)

func newReconcileCmd(opts *globalOptions) *cobra.Command {
	var (
		inlineA   string
		inlineB   string
		withStats     bool
		consensusOnly bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile [A.json B.json]",
		Short: "Reconcile two ranking documents",
		Long: `Reconcile two ranking documents and print the contradiction kernel and
the consensus ranking as JSON.

Examples:
  # Reconcile two files
  concord reconcile a.json b.json

  # Read the first ranking from stdin
  cat a.json | concord reconcile - b.json

  # Pass rankings inline
  concord reconcile --a '[1,[2,3],4]' --b '[[1,2],3,4]'

  # Include the reconciliation ID and statistics
  concord reconcile --stats a.json b.json

  # Print only the consensus, as a ranking document
  concord reconcile --consensus-only a.json b.json > consensus.json`,
		Args: func(cmd *cobra.Command, args []string) error {
			inline := inlineA != "" || inlineB != ""
			switch {
			case withStats && consensusOnly:
				return errors.New("--stats and --consensus-only are mutually exclusive")
			case inline && len(args) > 0:
				return errors.New("use either two files or --a and --b, not both")
			case inline && (inlineA == "" || inlineB == ""):
				return errors.New("--a and --b must be given together")
			case !inline && len(args) != 2:
				return fmt.Errorf("accepts 2 ranking files, received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			docA, docB := []byte(inlineA), []byte(inlineB)
			if len(args) == 2 {
				if args[0] == "-" && args[1] == "-" {
					return errors.New("only one ranking can be read from stdin")
				}
				if docA, err = readDocument(cmd, args[0]); err != nil {
					return err
				}
				if docB, err = readDocument(cmd, args[1]); err != nil {
					return err
				}
			}

			s, err := newSession(opts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close()) }()

			engine, err := application.NewEngine(cmd.Context(), s.engineOptions()...)
			if err != nil {
				return err
			}
			rec, err := engine.ReconcileDocuments(cmd.Context(), docA, docB)
			if err != nil {
				return err
			}

			var out []byte
			switch {
			case withStats:
				out, err = codec.EncodeRecord(rec.ID, rec, nil)
			case consensusOnly:
				out, err = codec.EncodeRanking(rec.Consensus)
			default:
				out, err = codec.EncodeResult(rec)
			}
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			return writeLine(cmd, out)
		},
	}

	cmd.Flags().StringVar(&inlineA, "a", "", "first ranking as inline JSON")
	cmd.Flags().StringVar(&inlineB, "b", "", "second ranking as inline JSON")
	cmd.Flags().BoolVar(&withStats, "stats", false, "include the reconciliation ID and statistics")
	cmd.Flags().BoolVar(&consensusOnly, "consensus-only", false, "print only the consensus ranking document")
	return cmd
}

// readDocument reads a ranking document from path, or from stdin when path
// is "-".
func readDocument(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}
