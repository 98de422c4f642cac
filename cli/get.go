package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get kind:id",
		Short: "Fetch one entity's catalog record as JSON",
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

			e, err := conn.sys.Get(ctx, id, false)
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(e, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	return cmd
}
