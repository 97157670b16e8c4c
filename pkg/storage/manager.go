package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"vkharvest/pkg/features"
	"vkharvest/pkg/store"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "jsonl"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// DetailSource streams detail rows in identifier order
type DetailSource interface {
	DetailBatches(ctx context.Context, v features.Variant, size int, fn func([]features.Row) error) error
}

// ScoreSource lists the stored bot probabilities
type ScoreSource interface {
	Scores(ctx context.Context) ([]store.Score, error)
}

// Manager writes export files into one directory
type Manager struct {
	outputDir string
	exported  map[string]bool
	mu        sync.RWMutex
}

// NewManager creates the output directory and indexes the exports already in it
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		exported:  make(map[string]bool),
	}
	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return manager, nil
}

func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch Format(strings.TrimPrefix(filepath.Ext(entry.Name()), ".")) {
		case FormatCSV, FormatJSON:
			m.exported[entry.Name()] = true
		}
	}
	return nil
}

// FileName returns the export name of a dataset
func FileName(dataset string, f Format) string {
	return dataset + "." + string(f)
}

// Exists reports whether name is already in the output directory
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exported[name]
}

// Files lists the exports in the output directory
func (m *Manager) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.exported))
	for name := range m.exported {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Save writes name through a temporary file and renames it into place, so a
// failed export never replaces a good one
func (m *Manager) Save(name string, write func(io.Writer) error) (string, error) {
	filename := filepath.Join(m.outputDir, name)
	tempFile := filename + ".tmp"

	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	err = write(out)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.exported[name] = true
	m.mu.Unlock()
	return filename, nil
}

// ExportDetail writes every detail row of variant v. The header is user_id
// followed by the variant's feature columns.
func (m *Manager) ExportDetail(ctx context.Context, src DetailSource, v features.Variant, f Format) (string, int, error) {
	columns := append([]string{"user_id"}, features.ProfileColumns(v)...)
	rows := 0

	path, err := m.Save(FileName(store.DetailTable(v), f), func(w io.Writer) error {
		enc, err := newEncoder(w, f, columns)
		if err != nil {
			return err
		}
		err = src.DetailBatches(ctx, v, 0, func(batch []features.Row) error {
			for _, row := range batch {
				if err := enc.row(row.ID, row.Values); err != nil {
					return err
				}
				rows++
			}
			return nil
		})
		if err != nil {
			return err
		}
		return enc.close()
	})
	return path, rows, err
}

// ExportScores writes the stored bot probabilities
func (m *Manager) ExportScores(ctx context.Context, src ScoreSource, f Format) (string, int, error) {
	scores, err := src.Scores(ctx)
	if err != nil {
		return "", 0, err
	}

	path, err := m.Save(FileName("results", f), func(w io.Writer) error {
		enc, err := newEncoder(w, f, []string{"user_id", "bot_prob"})
		if err != nil {
			return err
		}
		for _, s := range scores {
			if err := enc.row(s.ID, []float64{s.BotProb}); err != nil {
				return err
			}
		}
		return enc.close()
	})
	return path, len(scores), err
}

type encoder struct {
	columns []string
	csv     *csv.Writer
	json    *json.Encoder
}

func newEncoder(w io.Writer, f Format, columns []string) (*encoder, error) {
	enc := &encoder{columns: columns}
	switch f {
	case FormatCSV:
		enc.csv = csv.NewWriter(w)
		if err := enc.csv.Write(columns); err != nil {
			return nil, err
		}
	case FormatJSON:
		enc.json = json.NewEncoder(w)
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
	return enc, nil
}

func (e *encoder) row(id int64, values []float64) error {
	if len(values)+1 != len(e.columns) {
		return fmt.Errorf("row %d has %d values, want %d", id, len(values), len(e.columns)-1)
	}
	if e.csv != nil {
		record := make([]string, 0, len(e.columns))
		record = append(record, strconv.FormatInt(id, 10))
		for _, v := range values {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		return e.csv.Write(record)
	}

	obj := make(map[string]any, len(e.columns))
	obj[e.columns[0]] = id
	for i, v := range values {
		obj[e.columns[i+1]] = v
	}
	return e.json.Encode(obj)
}

func (e *encoder) close() error {
	if e.csv != nil {
		e.csv.Flush()
		return e.csv.Error()
	}
	return nil
}
