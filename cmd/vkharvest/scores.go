package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vkharvest/pkg/store"
	"vkharvest/pkg/ui"
)

const scoreChunk = 1000

// importScoresCmd represents the import-scores command
var importScoresCmd = &cobra.Command{
	Use:   "import-scores <file>",
	Short: "Store bot probabilities produced by the scoring model",
	Long: `Read user_id,bot_prob pairs from a CSV file and store them in the results
table. A header row is optional. Scores for an identifier that already has one
replace the old value.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportScores,
}

func init() {
	rootCmd.AddCommand(importScoresCmd)
}

func runImportScores(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	scores, err := readScores(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	for start := 0; start < len(scores); start += scoreChunk {
		end := min(start+scoreChunk, len(scores))
		if err := st.SaveScores(ctx, scores[start:end]); err != nil {
			return err
		}
	}
	ui.PrintSuccess(fmt.Sprintf("stored %d scores", len(scores)))
	return nil
}

// readScores parses user_id,bot_prob records; probabilities must lie in [0, 1]
func readScores(r io.Reader) ([]store.Score, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var scores []store.Score
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		id, idErr := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if idErr != nil && line == 1 {
			continue
		}
		if idErr != nil || id <= 0 {
			return nil, fmt.Errorf("line %d: bad user id %q", line, record[0])
		}
		prob, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil || prob < 0 || prob > 1 {
			return nil, fmt.Errorf("line %d: bad probability %q", line, record[1])
		}
		scores = append(scores, store.Score{ID: id, BotProb: prob})
	}
	return scores, nil
}
