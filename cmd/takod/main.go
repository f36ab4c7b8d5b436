// Command takod is a stand-in for the tako deployment agent, built for
// integration tests that need the agent's control socket without a real
// agent behind it.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lilienblum/tako/internal/config"
	"github.com/lilienblum/tako/internal/server"
	"github.com/lilienblum/tako/internal/state"
)

var (
	socketPath string
	stateDir   string
	logFile    string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "takod",
	Short: "takod - tako deployment agent emulator",
	Long: `takod answers the tako agent's control socket with deterministic
emulated state: it lists the routes file, records deploy requests verbatim,
and keeps a per-app deploy journal for status queries. Integration tests
drive a full deployment flow against it without a real agent.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Apply viper configuration if flags weren't explicitly set.
		// Priority: flags > env vars > config file > defaults.
		if !cmd.Flags().Changed("socket") {
			socketPath = config.GetString("socket")
		}
		if !cmd.Flags().Changed("state-dir") {
			stateDir = config.GetString("state-dir")
		}
		if !cmd.Flags().Changed("log-file") {
			logFile = config.GetString("log-file")
		}
		if !cmd.Flags().Changed("debug") {
			debug = config.GetBool("debug")
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

// runServer serves the control socket until the process is terminated.
// There is no shutdown path: the harness kills the process, and the next
// start reclaims the socket.
func runServer() {
	logger := setupLogger(logFile, debug)

	store := state.NewStore(stateDir)

	// A journal that cannot be opened is not fatal; the emulator serves
	// without recorded app state.
	journal, err := state.OpenJournal(stateDir)
	if err != nil {
		logger.Warn("journal unavailable", "error", err)
	}

	srv := server.New(socketPath, store, journal, logger)

	go func() {
		<-srv.WaitReady()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s takod %s serving on %s\n", green("✓"), Version, socketPath)
	}()

	if err := srv.Start(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s takod: %v\n", red("✗"), err)
		os.Exit(1)
	}
}

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", server.DefaultSocketPath, "control socket path")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", server.DefaultStateDir, "directory holding the routes file, last deploy, and journal")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file with rotation (default: stderr)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
