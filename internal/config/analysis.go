package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/ecg.report/internal/ecg"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// Display window bounds, seconds.
const (
	MinDisplayWindowSec = 8.0
	MaxDisplayWindowSec = 12.0
)

// AnalysisConfig is the on-disk analysis configuration. Every field is
// optional; the Get* methods supply compiled-in defaults for omitted ones.
// The same JSON is accepted by the /api/analyze query overrides.
type AnalysisConfig struct {
	// Engine params
	MaxExpectedHRBPM *float64  `json:"max_expected_hr_bpm,omitempty"`
	RRMaxSec         *float64  `json:"rr_max_sec,omitempty"`
	Detectors        *[]string `json:"detectors,omitempty"`
	PreferredLeads   *[]string `json:"preferred_leads,omitempty"`
	Workers          *int      `json:"workers,omitempty"`

	// Presentation params
	DisplayWindowSec  *float64 `json:"display_window_sec,omitempty"`
	ArtifactTolerance *float64 `json:"artifact_tolerance,omitempty"`

	// Server params
	CacheMaxEntries *int `json:"cache_max_entries,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64   { return &v }
func ptrInt(v int) *int               { return &v }
func ptrStrings(v []string) *[]string { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field set to its
// compiled-in default.
func DefaultAnalysisConfig() *AnalysisConfig {
	return EmptyAnalysisConfig().Resolved()
}

// Resolved returns a copy of c with every omitted field filled in.
func (c *AnalysisConfig) Resolved() *AnalysisConfig {
	return &AnalysisConfig{
		MaxExpectedHRBPM:  ptrFloat64(c.GetMaxExpectedHRBPM()),
		RRMaxSec:          ptrFloat64(c.GetRRMaxSec()),
		Detectors:         ptrStrings(c.GetDetectors()),
		PreferredLeads:    ptrStrings(c.GetPreferredLeads()),
		Workers:           ptrInt(c.GetWorkers()),
		DisplayWindowSec:  ptrFloat64(c.GetDisplayWindowSec()),
		ArtifactTolerance: ptrFloat64(c.GetArtifactTolerance()),
		CacheMaxEntries:   ptrInt(c.GetCacheMaxEntries()),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set.
func (c *AnalysisConfig) Validate() error {
	if c.MaxExpectedHRBPM != nil && !(*c.MaxExpectedHRBPM > 0) {
		return fmt.Errorf("max_expected_hr_bpm must be positive, got %g", *c.MaxExpectedHRBPM)
	}
	if c.DisplayWindowSec != nil {
		if v := *c.DisplayWindowSec; v < MinDisplayWindowSec || v > MaxDisplayWindowSec {
			return fmt.Errorf("display_window_sec must be between %g and %g, got %g",
				MinDisplayWindowSec, MaxDisplayWindowSec, v)
		}
	}
	if c.ArtifactTolerance != nil && !(*c.ArtifactTolerance > 0) {
		return fmt.Errorf("artifact_tolerance must be positive, got %g", *c.ArtifactTolerance)
	}
	if c.CacheMaxEntries != nil && *c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache_max_entries must be non-negative, got %d", *c.CacheMaxEntries)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if _, err := c.ToEngineConfig(); err != nil {
		return err
	}
	return nil
}

// ToEngineConfig converts the file settings to an ecg.Config.
func (c *AnalysisConfig) ToEngineConfig() (ecg.Config, error) {
	cfg := ecg.Config{
		RRMinSec:       ecg.RRMinFromMaxHR(c.GetMaxExpectedHRBPM()),
		RRMaxSec:       c.GetRRMaxSec(),
		PreferredLeads: c.GetPreferredLeads(),
		Workers:        c.GetWorkers(),
	}
	for _, name := range c.GetDetectors() {
		k, err := ecg.ParseDetectorKind(name)
		if err != nil {
			return ecg.Config{}, err
		}
		cfg.Detectors = append(cfg.Detectors, k)
	}
	if err := cfg.Validate(); err != nil {
		return ecg.Config{}, err
	}
	return cfg, nil
}

// WithMaxExpectedHR returns a copy of c with a different maximum heart rate.
func (c *AnalysisConfig) WithMaxExpectedHR(bpm float64) *AnalysisConfig {
	out := *c
	out.MaxExpectedHRBPM = ptrFloat64(bpm)
	return &out
}

// GetMaxExpectedHRBPM returns the max_expected_hr_bpm value or the default.
func (c *AnalysisConfig) GetMaxExpectedHRBPM() float64 {
	if c.MaxExpectedHRBPM == nil {
		return ecg.DefaultMaxExpectedHR
	}
	return *c.MaxExpectedHRBPM
}

// GetRRMaxSec returns the rr_max_sec value or the default.
func (c *AnalysisConfig) GetRRMaxSec() float64 {
	if c.RRMaxSec == nil {
		return ecg.DefaultRRMaxSec
	}
	return *c.RRMaxSec
}

// GetDetectors returns the detectors value or the default order.
func (c *AnalysisConfig) GetDetectors() []string {
	if c.Detectors == nil {
		names := make([]string, len(ecg.DefaultDetectorOrder))
		for i, k := range ecg.DefaultDetectorOrder {
			names[i] = k.String()
		}
		return names
	}
	return append([]string(nil), *c.Detectors...)
}

// GetPreferredLeads returns the preferred_leads value or the default.
func (c *AnalysisConfig) GetPreferredLeads() []string {
	if c.PreferredLeads == nil {
		return append([]string(nil), ecg.DefaultPreferredLeads...)
	}
	return append([]string(nil), *c.PreferredLeads...)
}

// GetWorkers returns the workers value or the default.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return ecg.DefaultWorkers
	}
	return *c.Workers
}

// GetDisplayWindowSec returns the display_window_sec value or the default.
func (c *AnalysisConfig) GetDisplayWindowSec() float64 {
	if c.DisplayWindowSec == nil {
		return 10
	}
	return *c.DisplayWindowSec
}

// GetArtifactTolerance returns the artifact_tolerance value or the default.
func (c *AnalysisConfig) GetArtifactTolerance() float64 {
	if c.ArtifactTolerance == nil {
		return 0.2
	}
	return *c.ArtifactTolerance
}

// GetCacheMaxEntries returns the cache_max_entries value or the default.
func (c *AnalysisConfig) GetCacheMaxEntries() int {
	if c.CacheMaxEntries == nil {
		return 256
	}
	return *c.CacheMaxEntries
}
