package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default fitter values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the vertex fit
// service. The schema matches the /api/config endpoint so the same JSON
// can be used for both startup configuration and inspection. All fields
// are pointers so partial configs leave omitted values at their defaults.
type TuningConfig struct {
	// Fit engine params
	MaxIterations    *int     `json:"max_iterations,omitempty"`
	ConvergenceDelta *float64 `json:"convergence_delta,omitempty"`

	// Field handed to the propagation/linearization collaborators
	BzTesla *float64 `json:"bz_tesla,omitempty"`

	// Optional beam-spot constraint: position (mm) and diagonal
	// covariance (mm^2). A zero covariance means unconstrained.
	ConstraintX    *float64 `json:"constraint_x,omitempty"`
	ConstraintY    *float64 `json:"constraint_y,omitempty"`
	ConstraintZ    *float64 `json:"constraint_z,omitempty"`
	ConstraintVarX *float64 `json:"constraint_var_x,omitempty"`
	ConstraintVarY *float64 `json:"constraint_var_y,omitempty"`
	ConstraintVarZ *float64 `json:"constraint_var_z,omitempty"`

	// Clustering params
	ClusterEnergyCut    *float64 `json:"cluster_energy_cut,omitempty"`
	ClusterCommonCorner *bool    `json:"cluster_common_corner,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.ConvergenceDelta != nil && *c.ConvergenceDelta < 0 {
		return fmt.Errorf("convergence_delta must be non-negative, got %f", *c.ConvergenceDelta)
	}
	for name, v := range map[string]*float64{
		"constraint_var_x": c.ConstraintVarX,
		"constraint_var_y": c.ConstraintVarY,
		"constraint_var_z": c.ConstraintVarZ,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	if c.ClusterEnergyCut != nil && *c.ClusterEnergyCut < 0 {
		return fmt.Errorf("cluster_energy_cut must be non-negative, got %f", *c.ClusterEnergyCut)
	}
	return nil
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 5
	}
	return *c.MaxIterations
}

// GetConvergenceDelta returns the convergence_delta value or the default.
func (c *TuningConfig) GetConvergenceDelta() float64 {
	if c.ConvergenceDelta == nil {
		return 0 // default: run the full budget, keep the best iterate
	}
	return *c.ConvergenceDelta
}

// GetBzTesla returns the bz_tesla value or the default.
func (c *TuningConfig) GetBzTesla() float64 {
	if c.BzTesla == nil {
		return 2.0
	}
	return *c.BzTesla
}

// GetConstraintPosition returns the configured constraint position.
func (c *TuningConfig) GetConstraintPosition() [3]float64 {
	pos := [3]float64{}
	if c.ConstraintX != nil {
		pos[0] = *c.ConstraintX
	}
	if c.ConstraintY != nil {
		pos[1] = *c.ConstraintY
	}
	if c.ConstraintZ != nil {
		pos[2] = *c.ConstraintZ
	}
	return pos
}

// GetConstraintVariances returns the diagonal constraint covariance
// entries. All-zero means the fit runs unconstrained.
func (c *TuningConfig) GetConstraintVariances() [3]float64 {
	v := [3]float64{}
	if c.ConstraintVarX != nil {
		v[0] = *c.ConstraintVarX
	}
	if c.ConstraintVarY != nil {
		v[1] = *c.ConstraintVarY
	}
	if c.ConstraintVarZ != nil {
		v[2] = *c.ConstraintVarZ
	}
	return v
}

// GetClusterEnergyCut returns the cluster_energy_cut value or the default.
func (c *TuningConfig) GetClusterEnergyCut() float64 {
	if c.ClusterEnergyCut == nil {
		return 0
	}
	return *c.ClusterEnergyCut
}

// GetClusterCommonCorner returns the cluster_common_corner value or the default.
func (c *TuningConfig) GetClusterCommonCorner() bool {
	if c.ClusterCommonCorner == nil {
		return true
	}
	return *c.ClusterCommonCorner
}
