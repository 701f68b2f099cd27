package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Schedule.Timesteps)
	assert.InDelta(t, 1e-4, cfg.Schedule.BetaStart, 1e-12)
	assert.InDelta(t, 2e-2, cfg.Schedule.BetaEnd, 1e-12)
	assert.Equal(t, []int{64, 128, 256, 512}, cfg.Network.Features)
	assert.Equal(t, 64, cfg.Train.BatchSize)
	assert.InDelta(t, 2e-4, cfg.Train.LR, 1e-6)
	assert.Equal(t, "adam", cfg.Train.Optimizer)
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
device: webgpu
data:
  synthetic: true
  samples: 32
network:
  features: [8, 16]
train:
  epochs: 3
`))
	require.NoError(t, err)
	assert.Equal(t, "webgpu", cfg.Device)
	assert.True(t, cfg.Data.Synthetic)
	assert.Equal(t, 32, cfg.Data.Samples)
	assert.Equal(t, 28, cfg.Data.ImageSize)
	assert.Equal(t, []int{8, 16}, cfg.Network.Features)
	assert.Equal(t, 1, cfg.Network.InChannels)
	assert.Equal(t, 3, cfg.Train.Epochs)
	assert.Equal(t, 64, cfg.Train.BatchSize)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "bogus: 1\n",
		"bad device":    "device: cuda\n",
		"zero batch":    "train:\n  batch_size: 0\n",
		"empty network": "network:\n  features: []\n",
		"bad yaml":      "train: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Train.BatchSize = 0
	cfg.Sample.Count = 0
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "train.batch_size")
	assert.Contains(t, err.Error(), "sample.count")
}

func TestLoadAndMarshal(t *testing.T) {
	cfg := Default()
	cfg.Seed = 7
	raw, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
