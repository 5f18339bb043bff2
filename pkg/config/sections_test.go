package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportSection(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := NewExportSection()
		require.NoError(t, s.Validate())

		data := s.Data()
		assert.Equal(t, "pdf", data["engine"])
		assert.Equal(t, "A4", data["paper"])
		assert.Equal(t, "2m0s", data["timeout"])
		assert.Equal(t, "hootspot-exports", data["output_dir"])
	})

	t.Run("timeout accepts strings and numbers", func(t *testing.T) {
		s := NewExportSection()
		require.NoError(t, s.SetData(map[string]interface{}{"timeout": "30s"}))
		assert.Equal(t, 30*time.Second, s.Timeout)

		require.NoError(t, s.SetData(map[string]interface{}{"timeout": float64(time.Second)}))
		assert.Equal(t, time.Second, s.Timeout)

		assert.Error(t, s.SetData(map[string]interface{}{"timeout": true}))
	})

	t.Run("rejects wrong types", func(t *testing.T) {
		s := NewExportSection()
		err := s.SetData(map[string]interface{}{"engine": 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine")
	})

	t.Run("validate", func(t *testing.T) {
		tests := []struct {
			name    string
			data    map[string]interface{}
			wantErr bool
		}{
			{"chromium engine", map[string]interface{}{"engine": "chromium"}, false},
			{"letter paper", map[string]interface{}{"paper": "letter"}, false},
			{"unknown engine", map[string]interface{}{"engine": "latex"}, true},
			{"unknown paper", map[string]interface{}{"paper": "A3"}, true},
			{"negative timeout", map[string]interface{}{"timeout": "-1s"}, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := NewExportSection()
				require.NoError(t, s.SetData(tt.data))
				if tt.wantErr {
					assert.Error(t, s.Validate())
				} else {
					assert.NoError(t, s.Validate())
				}
			})
		}
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		s := NewExportSection()
		require.NoError(t, s.SetData(map[string]interface{}{"colour": "blue"}))
		require.NoError(t, s.SetData(nil))
		assert.Equal(t, "pdf", s.Engine)
	})
}

func TestOriginsSection(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := NewOriginsSection()
		require.NoError(t, s.Validate())

		requester, renderer, url := s.Snapshot()
		assert.Equal(t, DefaultRequesterOrigin, requester)
		assert.Equal(t, DefaultRendererOrigin, renderer)
		assert.Empty(t, url)
	})

	t.Run("default allowlist is the requester origin", func(t *testing.T) {
		s := NewOriginsSection()
		matcher, err := s.Allowlist()
		require.NoError(t, err)

		assert.True(t, matcher.Allows(DefaultRequesterOrigin))
		assert.False(t, matcher.Allows("https://evil.example"))
	})

	t.Run("patterns build an allowlist", func(t *testing.T) {
		s := NewOriginsSection()
		require.NoError(t, s.SetData(map[string]interface{}{
			"allowed_origins": []string{"https://*.hootspot.app"},
		}))
		require.NoError(t, s.Validate())

		matcher, err := s.Allowlist()
		require.NoError(t, err)
		assert.True(t, matcher.Allows("https://panel.hootspot.app"))
		assert.False(t, matcher.Allows(DefaultRequesterOrigin))
	})

	t.Run("validate rejects wildcards", func(t *testing.T) {
		s := NewOriginsSection()
		require.NoError(t, s.SetData(map[string]interface{}{"renderer_origin": "*"}))
		assert.Error(t, s.Validate())
	})

	t.Run("rejects non-string patterns", func(t *testing.T) {
		s := NewOriginsSection()
		err := s.SetData(map[string]interface{}{"allowed_origins": []interface{}{"https://a.test", 7}})
		assert.Error(t, err)

		err = s.SetData(map[string]interface{}{"allowed_origins": "https://a.test"})
		assert.Error(t, err)
	})

	t.Run("reset", func(t *testing.T) {
		s := NewOriginsSection()
		require.NoError(t, s.SetData(map[string]interface{}{
			"renderer_url":    "ws://localhost:8787/render",
			"allowed_origins": []interface{}{"https://a.test"},
		}))
		s.Reset()

		assert.Empty(t, s.RendererURL)
		assert.Empty(t, s.AllowedOrigins)
	})
}
