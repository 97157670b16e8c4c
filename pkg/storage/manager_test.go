package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vkharvest/pkg/features"
	"vkharvest/pkg/store"
)

type fakeSource struct {
	rows   []features.Row
	scores []store.Score
	err    error
}

func (f *fakeSource) DetailBatches(_ context.Context, _ features.Variant, _ int, fn func([]features.Row) error) error {
	if f.err != nil {
		return f.err
	}
	for i := 0; i < len(f.rows); i += 2 {
		end := min(i+2, len(f.rows))
		if err := fn(f.rows[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) Scores(context.Context) ([]store.Score, error) {
	return f.scores, f.err
}

func closedRows(ids ...int64) []features.Row {
	width := len(features.ProfileColumns(features.Closed))
	out := make([]features.Row, len(ids))
	for i, id := range ids {
		values := make([]float64, width)
		values[0] = 1
		values[width-1] = 0.25
		out[i] = features.Row{ID: id, Values: values}
	}
	return out
}

func TestExportDetailCSV(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	path, rows, err := manager.ExportDetail(context.Background(), &fakeSource{rows: closedRows(3, 8, 11)}, features.Closed, FormatCSV)
	if err != nil {
		t.Fatalf("ExportDetail() error = %v", err)
	}
	if rows != 3 {
		t.Errorf("rows = %d, want 3", rows)
	}
	if filepath.Base(path) != "profile_detail_closed.csv" {
		t.Errorf("unexpected path %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header plus 3 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "user_id,") {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "3,1,") || !strings.HasSuffix(lines[1], ",0.25") {
		t.Errorf("first row = %s", lines[1])
	}
	if !manager.Exists("profile_detail_closed.csv") {
		t.Error("export not indexed")
	}
}

func TestExportScoresJSONLines(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{scores: []store.Score{{ID: 1, BotProb: 0.9}, {ID: 2, BotProb: 0.1}}}

	path, n, err := manager.ExportScores(context.Background(), src, FormatJSON)
	if err != nil {
		t.Fatalf("ExportScores() error = %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d", n)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []map[string]float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var obj map[string]float64
		if err := json.Unmarshal(sc.Bytes(), &obj); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, obj)
	}
	if len(got) != 2 || got[0]["user_id"] != 1 || got[0]["bot_prob"] != 0.9 {
		t.Errorf("decoded = %v", got)
	}
}

func TestFailedExportKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := manager.Save("results.csv", func(w io.Writer) error {
		_, err := io.WriteString(w, "user_id,bot_prob\n1,0.5\n")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	_, _, err = manager.ExportScores(context.Background(), &fakeSource{err: errors.New("db gone")}, FormatCSV)
	if err == nil {
		t.Fatal("expected error")
	}
	_, _, err = manager.ExportDetail(context.Background(), &fakeSource{err: errors.New("db gone")}, features.Open, FormatCSV)
	if err == nil {
		t.Fatal("expected error")
	}

	content, err := os.ReadFile(filepath.Join(dir, "results.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "1,0.5") {
		t.Error("previous export was replaced")
	}
	if _, err := os.Stat(filepath.Join(dir, "profile_detail_open.csv.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestScanExistingExports(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"group_summary.csv", "notes.txt", "results.jsonl"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	files := manager.Files()
	if len(files) != 2 || files[0] != "group_summary.csv" || files[1] != "results.jsonl" {
		t.Errorf("Files() = %v", files)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": FormatCSV, "JSON": FormatJSON, "jsonl": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}
