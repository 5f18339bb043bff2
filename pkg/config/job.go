package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/hootspot/pkg/document"
)

// Artifact formats a job can produce.
const (
	FormatPDF     = "pdf"
	FormatJSON    = "json"
	FormatCrash   = "crash_report"
	FormatSummary = "summary"
)

// Job describes one export run, usually loaded from a YAML file:
//
//	name: weekly-newsletter
//	payload: ./report.json
//	output_dir: ./exports
//	formats: [pdf, json, crash_report]
//	engine: pdf
//	paper: Letter
//	timeout: 90s
//	translations:
//	  reportTitle: Rapport HootSpot
type Job struct {
	// Name is used for output file names
	Name string `yaml:"name" json:"name"`

	// Payload is the path of the JSON export request. Relative paths are
	// resolved against the job file's directory.
	Payload string `yaml:"payload" json:"payload"`

	OutputDir string        `yaml:"output_dir" json:"output_dir"`
	Formats   []string      `yaml:"formats" json:"formats"`
	Engine    string        `yaml:"engine" json:"engine"`
	Paper     string        `yaml:"paper" json:"paper"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`

	// RendererURL selects a remote renderer (ws:// or wss://).
	RendererURL string `yaml:"renderer_url" json:"renderer_url"`

	// Translations override document labels of the payload.
	Translations map[string]string `yaml:"translations" json:"translations"`
}

// DefaultJob returns a job that writes a PDF and a summary.
func DefaultJob() *Job {
	return &Job{
		Formats: []string{FormatPDF, FormatCrash, FormatSummary},
	}
}

// LoadJob reads a YAML job file over DefaultJob and validates it.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	job := DefaultJob()
	if err := yaml.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}

	if job.Payload != "" && !filepath.IsAbs(job.Payload) {
		job.Payload = filepath.Join(filepath.Dir(path), job.Payload)
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job file %s: %w", path, err)
	}
	return job, nil
}

// Validate validates the job
func (j *Job) Validate() error {
	if j.Engine != "" {
		if _, err := document.ParseEngine(j.Engine); err != nil {
			return err
		}
	}
	if j.Paper != "" {
		if _, err := document.ParsePaper(j.Paper); err != nil {
			return err
		}
	}
	if j.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	validFormats := map[string]bool{
		FormatPDF:     true,
		FormatJSON:    true,
		FormatCrash:   true,
		FormatSummary: true,
	}
	for _, f := range j.Formats {
		if !validFormats[f] {
			return fmt.Errorf("invalid format: %s (must be 'pdf', 'json', 'crash_report' or 'summary')", f)
		}
	}

	if j.RendererURL != "" {
		if err := validateRendererURL(j.RendererURL); err != nil {
			return err
		}
	}
	return nil
}

// Wants reports whether the job produces format.
func (j *Job) Wants(format string) bool {
	for _, f := range j.Formats {
		if f == format {
			return true
		}
	}
	return false
}
