package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/rollback"
)

var (
	deployEnvironment string
	deployRegion      string
	statusMessage     string

	createDeploymentCmd = &cobra.Command{
		Use:   "create-deployment <deployment-id> <commit>",
		Short: "Record a deployment attempt and create its deployment tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deployEnvironment == "" {
				return fmt.Errorf("--environment is required")
			}
			if !components.Config.KnownEnvironment(deployEnvironment) {
				return fmt.Errorf("unknown environment %q (configured: %v)", deployEnvironment, components.Config.Tags.Environments)
			}

			rec, err := services.Recorder.CreateRecord(cmd.Context(), args[0], deployEnvironment, deployRegion, args[1])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status [deployment-id] [new-status]",
		Short: "Summarize deployments, show one record, or transition its status",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare status: latest record per configured environment.
			if len(args) == 0 {
				summary := make(map[string]interface{})
				for _, env := range components.Config.Tags.Environments {
					records, err := services.Recorder.ListByEnvironment(cmd.Context(), env, 1)
					if err != nil {
						return err
					}
					if len(records) > 0 {
						summary[env] = records[0]
					}
				}
				return printJSON(summary)
			}

			if len(args) == 1 {
				rec, err := services.Recorder.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(rec)
			}

			status, err := models.ParseStatus(args[1])
			if err != nil {
				return err
			}
			rec, err := services.Recorder.SetStatus(cmd.Context(), args[0], status, statusMessage)
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback <deployment-id> <strategy>",
		Short: "Roll back a deployment (previous_tag, git_revert, blue_green_switchback, emergency_rollback, manual_intervention)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := rollback.ParseStrategy(args[1])
			if err != nil {
				return err
			}

			outcome, err := services.Rollback.Rollback(cmd.Context(), args[0], strategy)
			if outcome != nil {
				if perr := printJSON(outcome); perr != nil {
					return perr
				}
			}
			return err
		},
	}
)

func init() {
	createDeploymentCmd.Flags().StringVar(&deployEnvironment, "environment", "", "target environment (required)")
	createDeploymentCmd.Flags().StringVar(&deployRegion, "region", "", "deployment region")
	statusCmd.Flags().StringVarP(&statusMessage, "message", "m", "", "status message")
}
