// tagctl is the operator CLI for the tag coordination service. Diagnostics
// go to stderr; stdout carries machine-readable JSON only.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/common/bootstrap"
	"github.com/shipstream/tagkeeper/common/db"
	"github.com/shipstream/tagkeeper/common/logger"
)

var (
	logLevel string

	components *bootstrap.Components
	services   *container.Container

	rootCmd = &cobra.Command{
		Use:           "tagctl",
		Short:         "Manage deployment tags, promotion gates and rollbacks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var err error
			components, err = bootstrap.Setup(ctx, "tagctl",
				bootstrap.WithCustomLogger(logger.NewCLI(logLevel)),
				bootstrap.WithoutTelemetry(),
				bootstrap.WithDBInitHook(func(d *db.DB) error {
					return db.Migrate(ctx, d)
				}),
			)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			services, err = container.NewContainer(components)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if services != nil {
				services.Close()
			}
			if components != nil {
				return components.Shutdown(cmd.Context())
			}
			return nil
		},
	}
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tagctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		createVersionCmd,
		moveEnvironmentCmd,
		createStateCmd,
		getEnvironmentCmd,
		historyCmd,
		validateCmd,
		pushCmd,
		createDeploymentCmd,
		statusCmd,
		rollbackCmd,
		canPromoteCmd,
	)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
