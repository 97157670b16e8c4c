package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vkharvest/pkg/auth"
	"vkharvest/pkg/config"
	"vkharvest/pkg/schedule"
	"vkharvest/pkg/ui"
)

const defaultConfigName = "vkharvest.yaml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage vkharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (VKHARVEST_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created in the current directory as '` + defaultConfigName + `'
unless a different path is given with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source.

Literal tokens and proxy passwords are masked. Credential references such as
env:NAME or keyring:NAME are shown as written.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the merged configuration and print the derived round sizes.

Credential references are not resolved; run does that at start-up.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# vkharvest configuration file
#
# Every option can also be set with an environment variable prefixed with
# VKHARVEST_, for example VKHARVEST_CREDENTIALS or VKHARVEST_DATA_DIR.

api:
  base_url: "https://api.vk.com/method"
  version: "5.199"
  # Timeout of one HTTP request
  timeout: 30s
  # Methods to run, in this order: users, groups, walls
  methods: [users, groups, walls]
  # Cap on parallel workers; 0 uses one per CPU
  max_workers: 0

pacing:
  # Minimum time between two requests of one worker
  min_interval: 400ms
  # chain waits for the previous request to finish before pacing the next;
  # spacer paces request starts only
  strategy: chain

# Credential references, one worker per credential and proxy:
#   TOKEN, env:NAME, keyring:NAME, file:PATH#NAME
credentials:
  - env:VK_TOKEN

proxies:
  # One egress address per worker; leave empty to connect directly
  list: []
  #  - address: "proxy1.example.net:3128"
  #    username: ""
  #    password: ""
  # Add a direct binding next to the proxies
  use_original_address: false

storage:
  data_dir: "./data"
  database: "harvest.db"
  # Retries of a round commit while the database is locked
  commit_attempts: 5

checkpoint:
  # Upper bound on the duration of one round
  interval: 120s
  # Keep run.json in the data directory up to date
  manifest: true
  # Stop after this many passes; 0 repeats until coverage is complete
  max_passes: 0

metrics:
  enabled: false
  listen: ":9464"

logging:
  # debug, info, warn, error
  level: "info"
  # auto, console, json
  format: "auto"
  # Rotated log file; empty logs to stderr only
  file: ""
  max_size: 5
  max_backups: 3
  max_age: 30
  compress: true
`

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigName
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.Println()
	ui.Println("Next steps:")
	ui.Println("1. Add your credential references")
	ui.Println("2. Run 'vkharvest config validate' to check the configuration")
	ui.Println("3. Start with 'vkharvest run --ids users.txt'")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(nil, false)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(masked(cfg))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current configuration")
	ui.Println()
	ui.Println(strings.TrimRight(string(data), "\n"))
	return nil
}

// masked returns a copy of cfg safe to print
func masked(cfg *config.Config) *config.Config {
	out := *cfg
	out.Credentials = make([]string, len(cfg.Credentials))
	for i, ref := range cfg.Credentials {
		out.Credentials[i] = maskReference(ref)
	}
	out.Proxies.List = make([]config.Proxy, len(cfg.Proxies.List))
	for i, p := range cfg.Proxies.List {
		if p.Password != "" {
			p.Password = "********"
		}
		out.Proxies.List[i] = p
	}
	return &out
}

func maskReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if scheme, _, ok := strings.Cut(ref, ":"); ok {
		switch scheme {
		case "env", "keyring", "file":
			return ref
		}
	}
	return auth.Mask(ref)
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(nil, true)
	if err != nil {
		return err
	}
	ms, err := cfg.Methods()
	if err != nil {
		return err
	}

	ui.PrintSuccess("Configuration is valid")
	rows := [][2]string{
		{"credentials", strconv.Itoa(len(cfg.Credentials))},
		{"bindings", strconv.Itoa(len(cfg.Bindings()))},
		{"checkpoint", cfg.Checkpoint.Interval.String()},
		{"min interval", cfg.Pacing.MinInterval.String()},
		{"database", cfg.Storage.Path()},
	}
	for _, m := range ms {
		size, err := schedule.RoundSize(cfg.Checkpoint.Interval, m.Latency(), cfg.Pacing.MinInterval)
		if err != nil {
			return err
		}
		rows = append(rows, [2]string{m.String(), fmt.Sprintf(
			"%d batches of %d per round", size, m.BatchSize())})
	}
	ui.PrintTable("Summary", rows)
	return nil
}
