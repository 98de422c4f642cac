package cli

import (
	"context"

	"github.com/spf13/cobra"

	"rmscore.evalgo.org/model"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete kind:id [kind:id ...]",
		Short: "Delete entities, failing with DependencyBreak if any has live dependents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]model.FullID, len(args))
			for i, a := range args {
				id, err := parseFullID(a)
				if err != nil {
					return err
				}
				ids[i] = id
			}

			ctx := context.Background()
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			return conn.sys.Delete(ctx, ids...)
		},
	}
	return cmd
}
