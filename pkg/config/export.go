package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/hootspot/pkg/document"
)

const (
	// SectionIDExport is the identifier for the export settings section
	SectionIDExport = "export"

	defaultExportTimeout = 2 * time.Minute
	defaultOutputDir     = "hootspot-exports"
)

// ExportSection holds defaults for export runs.
type ExportSection struct {
	Engine    string        `json:"engine"`
	Paper     string        `json:"paper"`
	Timeout   time.Duration `json:"timeout"`
	OutputDir string        `json:"output_dir"`
	mu        sync.RWMutex
}

// NewExportSection creates an export section with default settings.
func NewExportSection() *ExportSection {
	s := &ExportSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *ExportSection) ID() string {
	return SectionIDExport
}

// Title returns the section title.
func (s *ExportSection) Title() string {
	return "Export"
}

// Description returns the section description.
func (s *ExportSection) Description() string {
	return "Document engine, paper size, timeout and output directory used when exporting reports."
}

// Data returns the current configuration data.
func (s *ExportSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"engine":     s.Engine,
		"paper":      s.Paper,
		"timeout":    s.Timeout.String(),
		"output_dir": s.OutputDir,
	}
}

// SetData updates the configuration from the provided data.
func (s *ExportSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "engine", "paper", "output_dir":
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
			}
			switch key {
			case "engine":
				s.Engine = str
			case "paper":
				s.Paper = str
			default:
				s.OutputDir = str
			}

		case "timeout":
			d, err := parseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			s.Timeout = d
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *ExportSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := document.ParseEngine(s.Engine); err != nil {
		return err
	}
	if _, err := document.ParsePaper(s.Paper); err != nil {
		return err
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ExportSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Engine = string(document.DefaultEngine)
	s.Paper = string(document.PaperA4)
	s.Timeout = defaultExportTimeout
	s.OutputDir = defaultOutputDir
}

// Snapshot returns engine, paper, timeout and output directory.
func (s *ExportSection) Snapshot() (engine, paper string, timeout time.Duration, outputDir string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Engine, s.Paper, s.Timeout, s.OutputDir
}

// parseDuration accepts "90s" style strings and JSON numbers in nanoseconds.
func parseDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		return time.ParseDuration(v)
	case float64:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case int:
		return time.Duration(v), nil
	default:
		return 0, fmt.Errorf("expected string or number, got %T", value)
	}
}
