package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPipesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipes",
		Short: "List every pipe registered in the Catalog Store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			pipes, err := conn.sys.ListPipes(ctx)
			if err != nil {
				return err
			}
			for _, p := range pipes {
				det := "deterministic"
				if !p.IsDeterministic {
					det = "non-deterministic"
				}
				fmt.Printf("%s  %s.%s  %s\n", p.ID, p.ModuleName, p.FuncName, det)
			}
			return nil
		},
	}
	return cmd
}
