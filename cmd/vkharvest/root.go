package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"vkharvest/pkg/config"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/ui"
)

var (
	// Version information
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFile    string
	dataDir    string
	noColor    bool
	quiet      bool
)

// Process exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitIncomplete = 3
)

// exitError ends the process with a specific code
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vkharvest",
	Short: "Collect VK profile, group and wall features for bot scoring",
	Long: `vkharvest collects profile, community and wall data for a list of VK user
identifiers and stores per-user feature rows in a local SQLite database.

Runs are resumable: every checkpoint round is committed before the next one is
planned, so an interrupted run picks up where it stopped. Several credentials
and egress proxies can be combined; a credential that hits the provider's rate
limit is retired for that method and the work is re-split across the rest.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
		if quiet {
			ui.SetQuietMode(true)
		}
	},
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			ui.PrintWarning(ee.msg)
		}
		return ee.code
	}
	ui.PrintError("vkharvest", err)
	return exitFailure
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./vkharvest.yaml or ~/.config/vkharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this rotated file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the database and run manifest")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`vkharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the global flags with extra command flags and sets up the
// global logger. Only commands that contact the provider need validation.
func loadConfig(extra map[string]interface{}, validate bool) (*config.Config, error) {
	flags := map[string]interface{}{
		"data-dir":  dataDir,
		"log-level": logLevel,
		"log-file":  logFile,
	}
	for k, v := range extra {
		flags[k] = v
	}

	load := config.Read
	if validate {
		load = config.Load
	}
	cfg, err := load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
