package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newDeprecateCmd() *cobra.Command {
	var propagate bool
	cmd := &cobra.Command{
		Use:   "deprecate kind:id",
		Short: "Mark an entity deprecated, optionally propagating downstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFullID(args[0])
			if err != nil {
				return err
			}

			ctx := context.Background()
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			return conn.sys.MarkDeprecated(ctx, id, propagate)
		},
	}
	cmd.Flags().BoolVar(&propagate, "propagate", false, "also mark every downstream entity deprecated")
	return cmd
}
