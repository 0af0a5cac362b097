package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tanq16/refetch/internal/output"
	"github.com/tanq16/refetch/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Remove leftover " + utils.PartSuffix + " staging files",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := runtimeConfig.TargetDir
			if len(args) == 1 {
				dir = args[0]
			}
			removed, err := utils.CleanPartials(afero.NewOsFs(), dir)
			for _, path := range removed {
				output.PrintDetail(fmt.Sprintf("Removed %s", path))
			}
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning %s: %v", dir, err))
				os.Exit(1)
			}
			if len(removed) == 0 {
				output.PrintInfo(fmt.Sprintf("No staging files in %s", dir))
				return
			}
			output.PrintSuccess(fmt.Sprintf("Cleaned %d staging file(s) in %s", len(removed), dir))
		},
	}
}
