package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-concord/internal/application"
)

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and validate reconciliation workflows",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <workflow.yaml|->",
		Short: "Validate a workflow file",
		Long: `Parse, validate and compile a workflow file without running it. Unit
types, parameters, references and the stage graph are all checked. Use "-"
to read the workflow from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := application.NewWorkflowLoader(nil)
			if err != nil {
				return err
			}
			var wf *application.Workflow
			if args[0] == "-" {
				wf, err = loader.LoadFromReader(cmd.Context(), cmd.InOrStdin())
			} else {
				wf, err = loader.LoadFromFile(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid\n  hash:  %s\n  nodes: %s\n",
				wf.Name, wf.Hash, strings.Join(wf.Graph.NodeIDs(), ", "))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the built-in workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(application.DefaultWorkflow())
			return err
		},
	})

	return cmd
}
