package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks pid",
		Short: "List every Task recorded against a pipe id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			tasks, err := conn.sys.FindTasksByPipe(ctx, []string{args[0]})
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Printf("%s  ran %s, took %s\n", t.ID, humanize.Time(t.EndTime), t.EndTime.Sub(t.BeginTime))
			}
			return nil
		},
	}
	return cmd
}
