package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vkharvest/pkg/checkpoint"
	"vkharvest/pkg/config"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/schedule"
	"vkharvest/pkg/store"
	"vkharvest/pkg/ui"
)

var statusIDs string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the database holds and how the last run ended",
	Long: `Show row counts of the harvest database, the identifiers still waiting for
group and wall data, and the manifest of the latest run.

With --ids the coverage of that identifier list is shown per method.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusIDs, "ids", "i", "", "identifier file to measure coverage against")
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*store.Store, error) {
	return store.Open(ctx, cfg.Storage.Path(), store.Options{
		CommitAttempts: cfg.Storage.CommitAttempts,
		Logger:         log,
	})
}

// openExistingStore refuses to create an empty database for read-only commands
func openExistingStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	path := cfg.Storage.Path()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no harvest database at %s", path)
		}
		return nil, err
	}
	return openStore(ctx, cfg, logger.GetLogger())
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(nil, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}

	ui.PrintInfo("Database", st.Path())
	ui.PrintTable("Store", [][2]string{
		{"users", strconv.Itoa(stats.Users)},
		{"deactivated", strconv.Itoa(stats.Deactivated)},
		{"closed", strconv.Itoa(stats.Closed)},
		{"profile_detail_open", strconv.Itoa(stats.DetailOpen)},
		{"profile_detail_closed", strconv.Itoa(stats.DetailClosed)},
		{"group_summary", strconv.Itoa(stats.GroupSummary)},
		{"wall_summary", strconv.Itoa(stats.WallSummary)},
		{"results", strconv.Itoa(stats.Results)},
		{"pending groups", strconv.Itoa(stats.PendingGroups)},
		{"pending walls", strconv.Itoa(stats.PendingWalls)},
	})

	if statusIDs != "" {
		ids, err := readIdentifierFile(statusIDs)
		if err != nil {
			return err
		}
		universe := schedule.Universe(ids)
		ui.PrintHighlight("Coverage")
		for _, m := range schedule.Order {
			left, err := st.Remaining(ctx, m, universe)
			if err != nil {
				return err
			}
			ui.PrintCoverage(m.String(), len(universe)-len(left), len(universe))
		}
	}

	manifest, err := checkpoint.Load(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	if manifest == nil {
		ui.PrintWarning("no run manifest in " + cfg.Storage.DataDir)
		return nil
	}
	printManifest(manifest)
	return nil
}

func printManifest(m *checkpoint.Manifest) {
	state := "running or interrupted"
	switch {
	case m.Finished() && m.Incomplete:
		state = "finished, coverage incomplete"
	case m.Finished():
		state = "finished, coverage complete"
	}

	rows := [][2]string{
		{"run", m.RunID},
		{"state", state},
		{"identifiers", strconv.Itoa(m.Identifiers)},
		{"pass", strconv.Itoa(m.Pass)},
		{"started", m.StartedAt.Local().Format(time.DateTime)},
		{"updated", m.UpdatedAt.Local().Format(time.DateTime)},
	}
	for _, method := range schedule.Order {
		p, ok := m.Methods[method.String()]
		if !ok {
			continue
		}
		rows = append(rows, [2]string{method.String(), fmt.Sprintf(
			"rounds %d, stored %d, limited %d, failed %d", p.Rounds, p.Stored, p.Limited, p.Failed)})
	}

	creds := make([]string, 0, len(m.Exhaustion))
	for c := range m.Exhaustion {
		creds = append(creds, c)
	}
	sort.Strings(creds)
	for _, c := range creds {
		if spent := m.Exhaustion[c]; len(spent) > 0 {
			rows = append(rows, [2]string{c, fmt.Sprintf("exhausted for %v", spent)})
		}
	}
	ui.PrintTable("Last run", rows)
}
