package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	canPromoteCmd = &cobra.Command{
		Use:   "can-promote <commit> <from-env> <to-env>",
		Short: "Check whether a commit may be promoted between environments",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := services.Gate.CanPromote(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if err := printJSON(decision); err != nil {
				return err
			}
			if !decision.Allowed {
				return fmt.Errorf("promotion denied: %s", decision.Denial)
			}
			return nil
		},
	}
)
