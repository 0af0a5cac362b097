package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tanq16/refetch/internal/config"
	"github.com/tanq16/refetch/internal/engine"
	"github.com/tanq16/refetch/internal/output"
	"github.com/tanq16/refetch/internal/utils"
)

func newMenuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu to set the URL, folder and deletion delay and to start or stop downloads",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := runtimeConfig
			if err := cfg.Validate(); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			console := output.NewConsole(os.Stdout)
			prompter := output.NewPrompter(console)
			m := &menu{
				cfg:      cfg,
				eng:      buildEngine(cfg, console, prompter),
				console:  console,
				prompter: prompter,
				lines:    readLines(os.Stdin),
				fs:       afero.NewOsFs(),
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			defer signal.Stop(sigCh)
			go func() {
				for range sigCh {
					m.eng.Stop()
				}
			}()
			m.run()
		},
	}
}

type menu struct {
	cfg      config.Config
	eng      *engine.Engine
	console  *output.Console
	prompter *output.Prompter
	lines    <-chan string
	fs       afero.Fs
}

func (m *menu) run() {
	for {
		m.show()
		choice, ok := m.read("Choose an option (1-6): ")
		if !ok {
			m.quit()
			return
		}
		switch choice {
		case "1":
			m.setURL()
		case "2":
			m.setTargetDir()
		case "3":
			m.setDelay()
		case "4":
			if m.cfg.URL == "" {
				m.console.Print(utils.StatusWarning, "Set a URL first")
				continue
			}
			if err := m.eng.Start(m.cfg.Download()); err == nil {
				m.console.Print(utils.StatusPending, "Download started")
			}
		case "5":
			if !m.eng.State().Phase.Active() {
				m.console.Print(utils.StatusInfo, "Nothing is running")
				continue
			}
			m.eng.Stop()
		case "6":
			m.quit()
			return
		case "":
		default:
			m.console.Print(utils.StatusError, "Unknown option, choose 1-6")
		}
	}
}

func (m *menu) show() {
	url := m.cfg.URL
	if url == "" {
		url = "not set"
	}
	hline := strings.Repeat(output.StyleSymbols["hline"], 50)
	fmt.Println()
	fmt.Println(output.FDebug(hline))
	output.PrintHeader("  Refetch")
	fmt.Println(output.FDebug(hline))
	fmt.Printf("  1. URL            %s\n", output.FDetail(url))
	fmt.Printf("  2. Folder         %s\n", output.FDetail(m.cfg.TargetDir))
	fmt.Printf("  3. Delete after   %s\n", output.FDetail(fmt.Sprintf("%d seconds (0 keeps the file)", m.cfg.DeleteDelay)))
	fmt.Println("  4. Start download")
	fmt.Println("  5. Stop download")
	fmt.Println("  6. Exit")
	fmt.Println(output.FDebug(hline))
	m.console.State(m.eng.State())
}

// read asks question and returns the next line that did not answer a
// pending overwrite prompt. ok is false once input ends.
func (m *menu) read(question string) (string, bool) {
	m.console.Ask(question)
	for line := range m.lines {
		if m.prompter.Offer(line) {
			m.console.Ask(question)
			continue
		}
		return strings.TrimSpace(line), true
	}
	m.prompter.Close()
	return "", false
}

func (m *menu) setURL() {
	raw, ok := m.read("Download URL: ")
	if !ok {
		return
	}
	if !utils.ValidateURL(raw) {
		m.console.Print(utils.StatusError, "Invalid URL, use an http or https link")
		return
	}
	m.cfg.URL = raw
}

func (m *menu) setTargetDir() {
	dir, ok := m.read(fmt.Sprintf("Download folder (currently %s): ", m.cfg.TargetDir))
	if !ok || dir == "" {
		return
	}
	if exists, _ := afero.DirExists(m.fs, dir); !exists {
		if err := m.fs.MkdirAll(dir, 0755); err != nil {
			log.Error().Str("op", "cmd/menu").Err(err).Msgf("Creating %s failed", dir)
			m.console.Print(utils.StatusError, fmt.Sprintf("Could not create %s: %v", dir, err))
			return
		}
		m.console.Print(utils.StatusSuccess, fmt.Sprintf("Created %s", dir))
	}
	m.cfg.TargetDir = dir
}

func (m *menu) setDelay() {
	raw, ok := m.read(fmt.Sprintf("Delete after how many seconds (0-%d): ", utils.MaxDeleteDelay))
	if !ok {
		return
	}
	delay, err := strconv.Atoi(raw)
	if err != nil {
		m.console.Print(utils.StatusError, "Enter a whole number")
		return
	}
	next := m.cfg
	next.DeleteDelay = delay
	if err := next.Validate(); err != nil {
		m.console.Print(utils.StatusError, err.Error())
		return
	}
	m.cfg = next
}

func (m *menu) quit() {
	m.eng.Stop()
	// a cycle blocked on the overwrite question would never drain otherwise
	m.prompter.Close()
	m.eng.Wait()
	m.console.Print(utils.StatusInfo, "Bye")
}
