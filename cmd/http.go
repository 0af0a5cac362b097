package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/refetch/internal/config"
	"github.com/tanq16/refetch/internal/engine"
	"github.com/tanq16/refetch/internal/output"
)

func newHTTPCmd() *cobra.Command {
	var targetDir string
	var deleteDelay int
	var onConflict string

	cmd := &cobra.Command{
		Use:   "http [URL] [--output DIR] [--delete-after SECONDS]",
		Short: "Download a file via HTTP/HTTPS, optionally deleting and re-downloading it on a timer",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := runtimeConfig
			if len(args) == 1 {
				cfg.URL = args[0]
			}
			if cmd.Flags().Changed("output") {
				cfg.TargetDir = targetDir
			}
			if cmd.Flags().Changed("delete-after") {
				cfg.DeleteDelay = deleteDelay
			}
			if cmd.Flags().Changed("on-conflict") {
				cfg.OnConflict = onConflict
			}
			if err := cfg.Validate(); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := cfg.ValidateURL(); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}

			console := output.NewConsole(os.Stdout)
			resolver := policyFor(cfg.OnConflict)
			if cfg.OnConflict == config.ConflictAsk {
				prompter := output.NewPrompter(console)
				go func() {
					for line := range readLines(os.Stdin) {
						prompter.Offer(line)
					}
					prompter.Close()
				}()
				resolver = prompter
			}
			eng := buildEngine(cfg, console, resolver)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				eng.Stop()
			}()

			if err := eng.Start(cfg.Download()); err != nil {
				os.Exit(1)
			}
			eng.Wait()
			if eng.State().Phase == engine.Stopped {
				os.Exit(130)
			}
		},
	}

	cmd.Flags().StringVarP(&targetDir, "output", "o", ".", "Directory to download into")
	cmd.Flags().IntVarP(&deleteDelay, "delete-after", "d", 0, "Delete the file this many seconds after it completes and download it again (0 disables, max 86400)")
	cmd.Flags().StringVar(&onConflict, "on-conflict", config.ConflictOverwrite, "What to do when the file already exists: overwrite, abort or ask")
	return cmd
}
