package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark3labs/cmdtree/internal/cmdtree"
	"github.com/mark3labs/cmdtree/internal/logging"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate ARTIFACT",
		Short: "Check a command tree artifact for duplicate names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), verbose, "cmdtree")

			tree, err := cmdtree.Load(args[0])
			if err != nil {
				return wrapUsage(err, "", "validate: %v", err)
			}
			logger.Debug("loaded command tree", "path", args[0], "endpoint", tree.Endpoint, "version", tree.Version)
			if err := tree.Validate(); err != nil {
				return fmt.Errorf("validate %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok (version %d, endpoint %s)\n", args[0], tree.Version, tree.Endpoint)
			printSummary(out, tree)
			return nil
		},
	}
}
