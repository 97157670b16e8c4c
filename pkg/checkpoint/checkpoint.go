package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"vkharvest/pkg/logger"
)

// FileName is the manifest's name inside the data directory
const FileName = "run.json"

const manifestVersion = 1

// MethodProgress counts the committed rounds of one method
type MethodProgress struct {
	Rounds  int `json:"rounds"`
	Stored  int `json:"stored"`
	Limited int `json:"limited"`
	Failed  int `json:"failed"`
}

// Manifest is the observable summary of the latest run
type Manifest struct {
	RunID       string                     `json:"run_id"`
	Identifiers int                        `json:"identifiers"`
	StartedAt   time.Time                  `json:"started_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	FinishedAt  *time.Time                 `json:"finished_at,omitempty"`
	Pass        int                        `json:"pass"`
	Methods     map[string]*MethodProgress `json:"methods"`
	// Exhaustion lists the spent methods per masked credential
	Exhaustion map[string][]string `json:"exhaustion,omitempty"`
	Incomplete bool                `json:"incomplete"`
	Version    int                 `json:"version"`
}

// Finished reports whether the run reached its end
func (m *Manifest) Finished() bool {
	return m.FinishedAt != nil
}

// Manager keeps the manifest of one run on disk. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	path     string
	manifest *Manifest
	logger   logger.Logger
}

// NewManager prepares a fresh manifest for a run over the given number of
// identifiers. Nothing is written until the first pass begins.
func NewManager(dataDir string, identifiers int, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	now := time.Now().UTC()
	return &Manager{
		path: filepath.Join(dataDir, FileName),
		manifest: &Manifest{
			RunID:       uuid.NewString(),
			Identifiers: identifiers,
			StartedAt:   now,
			UpdatedAt:   now,
			Methods:     make(map[string]*MethodProgress),
			Incomplete:  true,
			Version:     manifestVersion,
		},
		logger: log,
	}, nil
}

// Path returns the manifest location
func (m *Manager) Path() string {
	return m.path
}

// RunID identifies the run
func (m *Manager) RunID() string {
	return m.manifest.RunID
}

// BeginPass records the start of a pass
func (m *Manager) BeginPass(pass int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest.Pass = pass
	return m.save()
}

// RecordRound adds one committed round to the method's counters
func (m *Manager) RecordRound(method string, stored, limited, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.manifest.Methods[method]
	if !ok {
		p = &MethodProgress{}
		m.manifest.Methods[method] = p
	}
	p.Rounds++
	p.Stored += stored
	p.Limited += limited
	p.Failed += failed
	return m.save()
}

// Finish records the final exhaustion map and coverage outcome
func (m *Manager) Finish(exhaustion map[string][]string, incomplete bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.manifest.FinishedAt = &now
	m.manifest.Exhaustion = exhaustion
	m.manifest.Incomplete = incomplete
	if err := m.save(); err != nil {
		return err
	}

	m.logger.InfoWithFields("run manifest finalized", map[string]interface{}{
		"run_id":     m.manifest.RunID,
		"path":       m.path,
		"incomplete": incomplete,
	})
	return nil
}

// save writes the manifest atomically; callers hold mu
func (m *Manager) save() error {
	m.manifest.UpdatedAt = time.Now().UTC()

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary manifest file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m.manifest); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync manifest file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close manifest file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace manifest file: %w", err)
	}

	m.logger.DebugWithFields("manifest saved", map[string]interface{}{
		"run_id": m.manifest.RunID,
		"pass":   m.manifest.Pass,
	})
	return nil
}

// Load reads the manifest in dataDir. A missing manifest yields nil, nil.
func Load(dataDir string) (*Manifest, error) {
	file, err := os.Open(filepath.Join(dataDir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var manifest Manifest
	if err := json.NewDecoder(file).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &manifest, nil
}
