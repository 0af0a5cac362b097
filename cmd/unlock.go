package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tanq16/refetch/internal/fileguard"
	"github.com/tanq16/refetch/internal/output"
)

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock [PATH]",
		Short: "Show which processes hold a file and try to release stale handles",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := args[0]
			guard := fileguard.New(afero.NewOsFs())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			holders, err := fileguard.Holders(ctx, path)
			if err != nil {
				output.PrintWarning(fmt.Sprintf("Could not list processes holding %s: %v", path, err))
			}
			for _, h := range holders {
				output.PrintDetail(fmt.Sprintf("%s (pid %d) has %s open", h.Name, h.PID, path))
			}

			if err := guard.Unlock(path); err != nil {
				output.PrintError(fmt.Sprintf("Unlock failed: %v", err))
				os.Exit(1)
			}
			if guard.IsLocked(path) {
				output.PrintWarning(fmt.Sprintf("%s is still locked", path))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("%s is free", path))
		},
	}
}
