// Command pyopencode is a local, terminal-driven coding agent: a durable
// loop that drives an LLM through iterative tool use against a project
// tree.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/waysongjiang/pyopencode/internal/config"
)

func main() {
	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to setup logging: %v\n", err)
	}

	root := &cobra.Command{
		Use:           "pyopencode",
		Short:         "Local modular coding agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newReplCmd(),
		newCmdCmd(),
		newContinueRunCmd(),
		newReplayCmd(),
		newReplayExecCmd(),
		newEventsCmd(),
		newStatsCmd(),
		newCommandsCmd(),
		newMCPCmd(),
		newUndoCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logDir, err := config.LogsDir()
	if err != nil {
		return err
	}
	file, err := os.OpenFile(filepath.Join(logDir, "agent.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	log.Logger = log.Output(file)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return nil
}
