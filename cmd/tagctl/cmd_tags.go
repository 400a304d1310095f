package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shipstream/tagkeeper/common/mover"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

var (
	tagMessage   string
	deploymentID string
	region       string
	movedBy      string
	forceMove    bool
	historyLimit int
	pushRemote   string

	createVersionCmd = &cobra.Command{
		Use:   "create-version <name> <target>",
		Short: "Create an immutable version tag at a commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateOrMove(cmd, args[0], taxonomy.ClassVersion, args[1], "")
		},
	}

	moveEnvironmentCmd = &cobra.Command{
		Use:   "move-environment <environment> <target>",
		Short: "Move an environment tag to a new commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := args[0]
			if !components.Config.KnownEnvironment(env) {
				return fmt.Errorf("unknown environment %q (configured: %v)", env, components.Config.Tags.Environments)
			}
			return runCreateOrMove(cmd, taxonomy.EnvironmentTag(env), taxonomy.ClassEnvironment, args[1], env)
		},
	}

	createStateCmd = &cobra.Command{
		Use:   "create-state <name> <target>",
		Short: "Create or move a state tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateOrMove(cmd, args[0], taxonomy.ClassState, args[1], "")
		},
	}

	getEnvironmentCmd = &cobra.Command{
		Use:   "get-environment <environment>",
		Short: "Show which commit an environment tag points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := services.TagRepo.Get(cmd.Context(), taxonomy.EnvironmentTag(args[0]))
			if err != nil {
				return err
			}
			return printJSON(tag)
		},
	}

	historyCmd = &cobra.Command{
		Use:   "history <tag>",
		Short: "Show the movement history of a tag, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			moves, err := services.MovementRepo.History(cmd.Context(), args[0], historyLimit)
			if err != nil {
				return err
			}
			return printJSON(moves)
		},
	}

	// With no argument, validate runs the full consistency check; with a
	// tag name it checks the name against its class format.
	validateCmd = &cobra.Command{
		Use:   "validate [tag]",
		Short: "Check tag-graph consistency, or validate one tag name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				report, err := services.Checker.Validate(cmd.Context())
				if err != nil {
					return err
				}
				if err := printJSON(report); err != nil {
					return err
				}
				if !report.Ok() {
					return fmt.Errorf("consistency check found %d errors", len(report.Errors))
				}
				return nil
			}

			class, err := taxonomy.Parse(args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"name":    args[0],
				"class":   class,
				"movable": class.IsMovable(),
			})
		},
	}

	pushCmd = &cobra.Command{
		Use:   "push [pattern]",
		Short: "Publish tags matching a glob pattern to a remote (default: all tags)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if services.Publisher == nil {
				return fmt.Errorf("remote publication is disabled (redis not configured)")
			}

			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			remote := pushRemote
			if remote == "" {
				remote = components.Config.Tags.DefaultRemote
			}

			count, err := services.Publisher.Push(cmd.Context(), pattern, remote)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"pattern": pattern,
				"remote":  remote,
				"pushed":  count,
			})
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{createVersionCmd, moveEnvironmentCmd, createStateCmd} {
		cmd.Flags().StringVarP(&tagMessage, "message", "m", "", "annotation message")
		cmd.Flags().StringVar(&deploymentID, "deployment-id", "", "deployment context for the audit trail")
		cmd.Flags().StringVar(&region, "region", "", "region context for the audit trail")
		cmd.Flags().StringVar(&movedBy, "moved-by", "", "actor recorded in the movement log")
	}
	moveEnvironmentCmd.Flags().BoolVar(&forceMove, "force", false, "permit repointing an immutable tag (audited as OVERRIDE)")
	createVersionCmd.Flags().BoolVar(&forceMove, "force", false, "permit repointing an immutable tag (audited as OVERRIDE)")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "return only the most recent N movements")
	pushCmd.Flags().StringVar(&pushRemote, "remote", "", "remote name (default from config)")
}

func runCreateOrMove(cmd *cobra.Command, name string, class taxonomy.Class, target, env string) error {
	commit, err := services.Mover.CreateOrMove(cmd.Context(), mover.Request{
		Name:         name,
		Class:        class,
		Target:       target,
		Message:      tagMessage,
		Force:        forceMove,
		DeploymentID: deploymentID,
		Environment:  env,
		Region:       region,
		MovedBy:      movedBy,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"tag":    name,
		"class":  class,
		"commit": commit,
	})
}
