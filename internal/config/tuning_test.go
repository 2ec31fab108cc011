package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTuningConfig(t *testing.T) {
	t.Parallel()

	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `{
			"max_iterations": 7,
			"convergence_delta": 0.001,
			"bz_tesla": 3.8,
			"constraint_x": 0.1,
			"constraint_var_x": 0.01,
			"cluster_energy_cut": 0.5,
			"cluster_common_corner": false
		}`)
		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.GetMaxIterations())
		assert.Equal(t, 0.001, cfg.GetConvergenceDelta())
		assert.Equal(t, 3.8, cfg.GetBzTesla())
		assert.Equal(t, [3]float64{0.1, 0, 0}, cfg.GetConstraintPosition())
		assert.Equal(t, [3]float64{0.01, 0, 0}, cfg.GetConstraintVariances())
		assert.Equal(t, 0.5, cfg.GetClusterEnergyCut())
		assert.False(t, cfg.GetClusterCommonCorner())
	})

	t.Run("partial config keeps defaults", func(t *testing.T) {
		path := writeConfig(t, `{"bz_tesla": 4.0}`)
		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 4.0, cfg.GetBzTesla())
		assert.Equal(t, 5, cfg.GetMaxIterations())
		assert.Equal(t, 0.0, cfg.GetConvergenceDelta())
		assert.True(t, cfg.GetClusterCommonCorner())
	})

	t.Run("empty object is all defaults", func(t *testing.T) {
		path := writeConfig(t, `{}`)
		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.GetMaxIterations())
		assert.Equal(t, 2.0, cfg.GetBzTesla())
		assert.Equal(t, [3]float64{}, cfg.GetConstraintVariances())
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
		_, err := LoadTuningConfig(path)
		assert.Error(t, err)
	})

	t.Run("rejects missing file", func(t *testing.T) {
		_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		path := writeConfig(t, `{"max_iterations": `)
		_, err := LoadTuningConfig(path)
		assert.Error(t, err)
	})
}

func TestTuningConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"zero iterations", `{"max_iterations": 0}`},
		{"negative iterations", `{"max_iterations": -1}`},
		{"negative convergence delta", `{"convergence_delta": -0.5}`},
		{"negative constraint variance", `{"constraint_var_y": -1}`},
		{"negative energy cut", `{"cluster_energy_cut": -0.1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadTuningConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := MustLoadDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.GetMaxIterations(), 0)
	assert.GreaterOrEqual(t, cfg.GetConvergenceDelta(), 0.0)
}
