package config

import (
	"fmt"
	"sync"

	"github.com/entrhq/hootspot/pkg/security/origin"
)

const (
	// SectionIDOrigins is the identifier for the origins section
	SectionIDOrigins = "origins"

	DefaultRequesterOrigin = "hootspot://panel"
	DefaultRendererOrigin  = "hootspot://sandbox"
)

// OriginsSection configures which contexts may talk to each other.
type OriginsSection struct {
	// RequesterOrigin is the origin the CLI presents when exporting.
	RequesterOrigin string `json:"requester_origin"`

	// RendererOrigin is the origin of the in-process renderer.
	RendererOrigin string `json:"renderer_origin"`

	// AllowedOrigins are the glob patterns a renderer accepts requests from.
	AllowedOrigins []string `json:"allowed_origins"`

	// RendererURL, when set, points exports at a remote renderer.
	RendererURL string `json:"renderer_url"`

	mu sync.RWMutex
}

// NewOriginsSection creates an origins section with default settings.
func NewOriginsSection() *OriginsSection {
	s := &OriginsSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *OriginsSection) ID() string {
	return SectionIDOrigins
}

// Title returns the section title.
func (s *OriginsSection) Title() string {
	return "Origins"
}

// Description returns the section description.
func (s *OriginsSection) Description() string {
	return "Origins of the requester and renderer contexts and the allowlist a renderer enforces."
}

// Data returns the current configuration data.
func (s *OriginsSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make([]interface{}, len(s.AllowedOrigins))
	for i, p := range s.AllowedOrigins {
		allowed[i] = p
	}
	return map[string]interface{}{
		"requester_origin": s.RequesterOrigin,
		"renderer_origin":  s.RendererOrigin,
		"allowed_origins":  allowed,
		"renderer_url":     s.RendererURL,
	}
}

// SetData updates the configuration from the provided data.
func (s *OriginsSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "requester_origin", "renderer_origin", "renderer_url":
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
			}
			switch key {
			case "requester_origin":
				s.RequesterOrigin = str
			case "renderer_origin":
				s.RendererOrigin = str
			default:
				s.RendererURL = str
			}

		case "allowed_origins":
			patterns, err := toStringSlice(value)
			if err != nil {
				return fmt.Errorf("invalid value for allowed_origins: %w", err)
			}
			s.AllowedOrigins = patterns
		}
	}
	return nil
}

// Validate checks that every origin is concrete and every pattern compiles.
func (s *OriginsSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := origin.Normalize(s.RequesterOrigin); err != nil {
		return fmt.Errorf("requester_origin: %w", err)
	}
	if _, err := origin.Normalize(s.RendererOrigin); err != nil {
		return fmt.Errorf("renderer_origin: %w", err)
	}
	if len(s.AllowedOrigins) > 0 {
		if _, err := origin.NewAllowlist(s.AllowedOrigins...); err != nil {
			return fmt.Errorf("allowed_origins: %w", err)
		}
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *OriginsSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.RequesterOrigin = DefaultRequesterOrigin
	s.RendererOrigin = DefaultRendererOrigin
	s.AllowedOrigins = nil
	s.RendererURL = ""
}

// Allowlist returns the renderer's allowlist. Without configured patterns
// only the requester origin is allowed.
func (s *OriginsSection) Allowlist() (origin.Matcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.AllowedOrigins) == 0 {
		exact, err := origin.NewExact(s.RequesterOrigin)
		if err != nil {
			return nil, err
		}
		return exact, nil
	}
	allowlist, err := origin.NewAllowlist(s.AllowedOrigins...)
	if err != nil {
		return nil, err
	}
	return allowlist, nil
}

// Snapshot returns requester origin, renderer origin and renderer URL.
func (s *OriginsSection) Snapshot() (requester, renderer, rendererURL string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RequesterOrigin, s.RendererOrigin, s.RendererURL
}

func toStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", value)
	}
}
