package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates the global configuration manager from the settings
// file at configPath (DefaultPath when empty), registers the export and
// origins sections and loads them.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	if err := manager.RegisterSection(NewExportSection()); err != nil {
		return err
	}
	if err := manager.RegisterSection(NewOriginsSection()); err != nil {
		return err
	}
	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// reset drops the global manager. Tests only.
func reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = nil
}

// GetExport returns the export section, or nil if config is not initialized.
func GetExport() *ExportSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDExport)
	if !ok {
		return nil
	}
	export, _ := section.(*ExportSection)
	return export
}

// GetOrigins returns the origins section, or nil if config is not initialized.
func GetOrigins() *OriginsSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDOrigins)
	if !ok {
		return nil
	}
	origins, _ := section.(*OriginsSection)
	return origins
}
