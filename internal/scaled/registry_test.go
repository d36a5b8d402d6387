package scaled

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinPresets(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"conservative", "balanced", "aggressive"} {
		preset, ok := reg.Resolve(name)
		require.True(t, ok, name)
		assert.NotEmpty(t, preset.Targets, name)
	}

	preset, ok := reg.Resolve("")
	require.True(t, ok)
	assert.Equal(t, "balanced", preset.Name)

	preset, ok = reg.Resolve("CONSERVATIVE")
	require.True(t, ok)
	assert.Equal(t, "conservative", preset.Name)

	_, ok = reg.Resolve("yolo")
	assert.False(t, ok)
}

func TestRegistryFromFileLayersOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
presets:
  balanced:
    description: custom override
    targets:
      - price_percent: 1
        quantity_percent: 50
  runner:
    targets:
      - price_percent: 8
        quantity_percent: 20
    trailing_take_profit:
      activation_percent: 10
      trail_percent: 3
`), 0o644))

	reg, err := NewRegistryFromFile(path)
	require.NoError(t, err)

	// File entry overrides the builtin of the same name.
	balanced, ok := reg.Resolve("balanced")
	require.True(t, ok)
	require.Len(t, balanced.Targets, 1)
	assert.InDelta(t, 1, balanced.Targets[0].PricePercent, 1e-9)

	runner, ok := reg.Resolve("runner")
	require.True(t, ok)
	require.NotNil(t, runner.TrailingTP)
	assert.InDelta(t, 3, runner.TrailingTP.TrailPercent, 1e-9)

	// Builtins not named in the file stay available.
	_, ok = reg.Resolve("aggressive")
	assert.True(t, ok)
}

func TestRegistryRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
presets:
  broken:
    targets:
      - price_percent: -1
        quantity_percent: 50
`), 0o644))

	_, err := NewRegistryFromFile(path)
	assert.Error(t, err)
}

func TestRegistryRequiresPath(t *testing.T) {
	_, err := NewRegistryFromFile("  ")
	assert.Error(t, err)
}
