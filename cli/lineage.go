package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"rmscore.evalgo.org/model"
	"rmscore.evalgo.org/rms"
)

func newLineageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Walk the provenance graph from one or more seeds",
	}
	cmd.AddCommand(
		newLineageDirCmd("upstream", (*rms.System).FindUpstreamObjs),
		newLineageDirCmd("downstream", (*rms.System).FindDownstreamObjs),
		newLineageDirCmd("connected", (*rms.System).FindConnectedObjs),
	)
	return cmd
}

type traversalFunc func(*rms.System, context.Context, []model.FullID, int, rms.Predicate, rms.Predicate, map[model.FullID]bool) ([]model.FullID, error)

func newLineageDirCmd(name string, traverse traversalFunc) *cobra.Command {
	var distance int
	cmd := &cobra.Command{
		Use:   name + " kind:id [kind:id ...]",
		Short: fmt.Sprintf("Find every entity %s of the given seeds", name),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds := make([]model.FullID, len(args))
			for i, a := range args {
				id, err := parseFullID(a)
				if err != nil {
					return err
				}
				seeds[i] = id
			}

			ctx := context.Background()
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			found, err := traverse(conn.sys, ctx, seeds, distance, nil, nil, nil)
			if err != nil {
				return err
			}
			for _, id := range found {
				fmt.Printf("%s:%s\n", id.Kind, id.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&distance, "distance", -1, "maximum traversal depth (-1 for unlimited)")
	return cmd
}
