package main

import (
	"fmt"

	"github.com/iti/flowsim"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var template string
	dfltLatency := flowsim.DefaultSimConfig().DefaultLatencyMs

	cmd := &cobra.Command{
		Use:   "validate [diagram-file]",
		Short: "Check a diagram and report the routes its clients can take",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dgm *flowsim.Diagram
			var err error
			switch {
			case len(args) == 1:
				dgm, err = flowsim.ReadDiagram(args[0], flowsim.UseYAML(args[0]), []byte{})
			case len(template) > 0:
				dgm, err = flowsim.Template(template)
			default:
				return fmt.Errorf("name a diagram file or --template")
			}
			if err != nil {
				return err
			}
			if err := dgm.Validate(); err != nil {
				return fmt.Errorf("diagram %s: %w", dgm.Name, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "diagram %s: %d nodes, %d edges\n", dgm.Name, len(dgm.Nodes), len(dgm.Edges))
			for _, warning := range dgm.Check() {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			for _, line := range flowsim.Analyze(dgm, dfltLatency).Report(dgm) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "built-in diagram to check")
	cmd.Flags().Float64Var(&dfltLatency, "default-latency", dfltLatency, "latency in ms of nodes that set none")
	return cmd
}
