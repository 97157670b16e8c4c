package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vkharvest/internal/orchestrator"
	"vkharvest/pkg/auth"
	"vkharvest/pkg/checkpoint"
	"vkharvest/pkg/collector"
	"vkharvest/pkg/config"
	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/metrics"
	"vkharvest/pkg/ratelimit"
	"vkharvest/pkg/schedule"
	"vkharvest/pkg/ui"
	"vkharvest/pkg/vkapi"
)

const passphraseEnv = "VKHARVEST_PASSPHRASE"

var (
	// Run command flags
	idsFile       string
	methods       []string
	credentials   []string
	checkpointDur time.Duration
	maxWorkers    int
	maxPasses     int
	pacing        string
	metricsListen string
	progressEvery time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect features for every identifier in a file",
	Long: `Collect profile, group and wall features for the identifiers listed in a file.

Identifiers already stored are skipped, so the same command resumes an
interrupted run. Passes repeat until every identifier is covered or no
credential is left for the remaining work.

Credentials are references resolved at start-up:
  TOKEN            a literal access token
  env:NAME         the environment variable NAME
  keyring:NAME     the system keychain entry NAME (service "vkharvest")
  file:PATH#NAME   entry NAME of an encrypted token file; the passphrase is read
                   from ` + passphraseEnv + ` or prompted for

Exit status is 0 when coverage is complete, 3 when identifiers are left for a
later run and 1 on error.`,
	Example: `  # Collect everything with two credentials from the keychain
  vkharvest run --ids users.txt --credential keyring:main --credential keyring:spare

  # Profiles only, bounded to three passes, with Prometheus metrics
  vkharvest run --ids users.txt --methods users --max-passes 3 --metrics-listen :9464`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&idsFile, "ids", "i", "", "file of user identifiers, one per line or comma separated")
	runCmd.Flags().StringSliceVarP(&methods, "methods", "m", nil, "methods to run (users, groups, walls)")
	runCmd.Flags().StringArrayVar(&credentials, "credential", nil, "credential reference, repeatable")
	runCmd.Flags().DurationVar(&checkpointDur, "checkpoint", 0, "checkpoint interval bounding each round")
	runCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "cap on parallel workers")
	runCmd.Flags().IntVar(&maxPasses, "max-passes", 0, "stop after this many passes (0 repeats until complete)")
	runCmd.Flags().StringVar(&pacing, "pacing", "", "request pacing strategy (chain, spacer)")
	runCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")
	runCmd.Flags().DurationVar(&progressEvery, "progress-every", 30*time.Second, "minimum time between progress log lines")
	_ = runCmd.MarkFlagRequired("ids")
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(map[string]interface{}{
		"methods":        methods,
		"credential":     credentials,
		"checkpoint":     checkpointDur,
		"max-workers":    maxWorkers,
		"max-passes":     maxPasses,
		"pacing":         pacing,
		"metrics-listen": metricsListen,
	}, true)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	ids, err := readIdentifierFile(idsFile)
	if err != nil {
		return err
	}
	universe := schedule.Universe(ids)
	runMethods, err := cfg.Methods()
	if err != nil {
		return err
	}

	tokens, err := resolveCredentials(cfg.Credentials)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	clients, closeClients, err := buildClients(cfg, log)
	if err != nil {
		return err
	}
	defer closeClients()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
				log.WithError(err).Error("metrics listener stopped")
			}
		}()
	}

	deps := orchestrator.Deps{
		Clients:     clients,
		Credentials: tokens,
		Store:       st,
		Metrics:     m,
		Logger:      log,
	}
	if cfg.Checkpoint.Manifest {
		manifest, err := checkpoint.NewManager(cfg.Storage.DataDir, len(universe), log)
		if err != nil {
			return err
		}
		deps.Journal = manifest
	}

	o, err := orchestrator.New(orchestrator.Config{
		Universe:      universe,
		Methods:       runMethods,
		MaxWorkers:    cfg.API.MaxWorkers,
		MaxPasses:     cfg.Checkpoint.MaxPasses,
		Checkpoint:    cfg.Checkpoint.Interval,
		MinInterval:   cfg.Pacing.MinInterval,
		Pacing:        ratelimit.Strategy(cfg.Pacing.Strategy),
		ProgressEvery: progressEvery,
	}, deps)
	if err != nil {
		return err
	}

	ui.PrintBanner()
	ui.PrintInfo("Identifiers", len(universe))
	ui.PrintInfo("Methods", joinMethods(runMethods))
	ui.PrintInfo("Workers", o.Workers())
	ui.PrintInfo("Database", cfg.Storage.Path())

	report, err := o.Run(ctx)
	printReport(report)
	if err != nil {
		return err
	}
	if report.Incomplete {
		return &exitError{code: exitIncomplete, msg: "coverage incomplete, run again once credentials recover"}
	}
	ui.PrintSuccess("coverage complete")
	return nil
}

// resolveCredentials turns configured references into tokens, prompting for
// the token file passphrase when it is needed and not in the environment
func resolveCredentials(refs []string) ([]string, error) {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" && needsPassphrase(refs) {
		p, err := promptPassphrase()
		if err != nil {
			return nil, err
		}
		passphrase = p
	}

	tokens, err := auth.NewResolver(passphrase).Resolve(refs)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, "resolve credentials", err)
	}
	if len(tokens) == 0 {
		return nil, errs.New(errs.ErrorTypeConfig, "no usable credentials")
	}
	return tokens, nil
}

func needsPassphrase(refs []string) bool {
	for _, r := range refs {
		if strings.HasPrefix(strings.TrimSpace(r), "file:") {
			return true
		}
	}
	return false
}

func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errs.Newf(errs.ErrorTypeConfig, "token file needs a passphrase; set %s", passphraseEnv)
	}
	fmt.Fprint(os.Stderr, "Token file passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(pass), nil
}

// buildClients creates one API client per egress binding
func buildClients(cfg *config.Config, log logger.Logger) ([]collector.APIClient, func(), error) {
	var built []*vkapi.Client
	closeAll := func() {
		for _, c := range built {
			c.Close()
		}
	}

	for i, b := range cfg.Bindings() {
		proxy, err := b.URL()
		if err != nil {
			closeAll()
			return nil, nil, errs.Wrap(errs.ErrorTypeConfig, "proxy binding", err)
		}
		built = append(built, vkapi.NewClient(vkapi.Options{
			BaseURL: cfg.API.BaseURL,
			Version: cfg.API.Version,
			Timeout: cfg.API.Timeout,
			Proxy:   proxy,
		}, log.WithField("binding", i)))
	}

	clients := make([]collector.APIClient, len(built))
	for i, c := range built {
		clients[i] = c
	}
	return clients, closeAll, nil
}

func joinMethods(ms []schedule.Method) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}

func printReport(r orchestrator.Report) {
	ui.Println()
	ui.PrintInfo("Passes", r.Passes)

	var rows [][2]string
	for _, m := range schedule.Order {
		t, ok := r.Totals[m]
		if !ok {
			continue
		}
		rows = append(rows, [2]string{m.String(), fmt.Sprintf(
			"rounds %d, stored %d, limited %d, failed %d, rows %d, purged %d, remaining %d",
			t.Rounds, t.Stored, t.Limited, t.Failed, t.Written, t.Purged, r.Remaining[m])})
	}
	ui.PrintTable("Methods", rows)

	masked := make([]string, 0, len(r.Exhaustion))
	for c := range r.Exhaustion {
		masked = append(masked, c)
	}
	sort.Strings(masked)
	rows = rows[:0]
	for _, c := range masked {
		var spent []string
		for _, m := range schedule.Order {
			if r.Exhaustion[c][m] {
				spent = append(spent, m.String())
			}
		}
		state := "available"
		if len(spent) > 0 {
			state = "exhausted for " + strings.Join(spent, ", ")
		}
		rows = append(rows, [2]string{c, state})
	}
	ui.PrintTable("Credentials", rows)
}
