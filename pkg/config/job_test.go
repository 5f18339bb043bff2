package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJob(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJob(t *testing.T) {
	t.Run("full job", func(t *testing.T) {
		path := writeJob(t, `
name: weekly-newsletter
payload: report.json
output_dir: ./exports
formats: [pdf, json]
engine: chromium
paper: Letter
timeout: 90s
renderer_url: ws://localhost:8787/render
translations:
  reportTitle: Rapport HootSpot
`)

		job, err := LoadJob(path)
		require.NoError(t, err)

		assert.Equal(t, "weekly-newsletter", job.Name)
		assert.Equal(t, filepath.Join(filepath.Dir(path), "report.json"), job.Payload)
		assert.Equal(t, []string{"pdf", "json"}, job.Formats)
		assert.Equal(t, "chromium", job.Engine)
		assert.Equal(t, "Letter", job.Paper)
		assert.Equal(t, 90*time.Second, job.Timeout)
		assert.Equal(t, "ws://localhost:8787/render", job.RendererURL)
		assert.Equal(t, "Rapport HootSpot", job.Translations["reportTitle"])
		assert.True(t, job.Wants(FormatJSON))
		assert.False(t, job.Wants(FormatSummary))
	})

	t.Run("defaults apply to omitted fields", func(t *testing.T) {
		job, err := LoadJob(writeJob(t, "payload: /tmp/report.json\n"))
		require.NoError(t, err)

		assert.Equal(t, "/tmp/report.json", job.Payload)
		assert.Equal(t, DefaultJob().Formats, job.Formats)
		assert.Zero(t, job.Timeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadJob(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read job file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadJob(writeJob(t, "formats: [pdf\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse job file")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadJob(writeJob(t, "formats: [docx]\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format: docx")
	})
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{name: "empty job", job: Job{}},
		{name: "bad engine", job: Job{Engine: "latex"}, wantErr: "engine"},
		{name: "bad paper", job: Job{Paper: "A5"}, wantErr: "paper"},
		{name: "negative timeout", job: Job{Timeout: -time.Second}, wantErr: "timeout cannot be negative"},
		{name: "http renderer", job: Job{RendererURL: "http://localhost:8787"}, wantErr: "scheme must be ws or wss"},
		{name: "hostless renderer", job: Job{RendererURL: "ws:///render"}, wantErr: "host is required"},
		{name: "wss renderer", job: Job{RendererURL: "wss://render.hootspot.app/ws"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
