// Package main implements the concord CLI, which reconciles pairs of
// cluster-rankings into a contradiction kernel and a consensus ranking.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	verbose        bool
	maxObjects     int
	timeout        time.Duration
	workflow       string
	verifySymmetry bool
	metricsFile    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "concord",
		Short: "Reconcile two rankings with ties into a consensus ranking",
		Long: `concord compares two rankings of the same objects, where each ranking
is a list of levels and objects sharing a level are tied. It reports the
pairs the rankings order in opposite directions (the contradiction
kernel) and a consensus ranking that groups contested objects together.

Rankings are JSON arrays whose elements are object identifiers or arrays
of tied identifiers, for example [1,[2,3],4].`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable development logging at debug level")
	pf.IntVar(&opts.maxObjects, "max-objects", 0, "reject reconciliations with more distinct objects (0 = unlimited)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "abort a reconciliation that runs longer than this (0 = no limit)")
	pf.StringVar(&opts.workflow, "workflow", "", "path to a custom workflow YAML file")
	pf.BoolVar(&opts.verifySymmetry, "verify-symmetry", false, "reconcile again with the inputs swapped and fail on any difference")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")

	root.AddCommand(newReconcileCmd(opts))
	root.AddCommand(newBatchCmd(opts))
	root.AddCommand(newWorkflowCmd())
	return root
}

// writeLine writes b followed by a newline to the command's output.
func writeLine(cmd *cobra.Command, b []byte) error {
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(b)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
