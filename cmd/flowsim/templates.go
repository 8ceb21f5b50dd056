package main

import (
	"fmt"

	"github.com/iti/flowsim"
	"github.com/spf13/cobra"
)

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the built-in diagrams, or export one to a file to edit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range flowsim.TemplateNames() {
				dgm, err := flowsim.Template(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-13s %s\n", name, dgm.Difficulty, dgm.Title)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export name file",
		Short: "Write a built-in diagram to a yaml or json file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dgm, err := flowsim.Template(args[0])
			if err != nil {
				return err
			}
			if err := dgm.WriteToFile(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s written to %s\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}
