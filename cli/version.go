package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rmscore.evalgo.org/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rmsctl build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.GetKernelVersion())
			return nil
		},
	}
}
