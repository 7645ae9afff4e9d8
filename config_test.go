package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 32, cfg.Train.BatchSize)
	assert.Equal(t, 8, cfg.Train.ValBatchSize)
	assert.Equal(t, 455000, cfg.Train.TrainSize)
	assert.Equal(t, 50, cfg.Train.Period)
	assert.Equal(t, 10, cfg.Train.Epochs)
	assert.Equal(t, 1e-5, cfg.Train.LearningRate)
	assert.Equal(t, 0.01, cfg.Train.ClipNorm)
	assert.Len(t, cfg.Data.TestSets, 5)
	assert.Equal(t, "Test Laptop (General)", cfg.Data.TestSets[0].Name)
}

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	yml := `
architecture: Scaled  CharacterBERT  Add
train:
  batch_size: 16
  weight_decay: 0.01
device:
  memory_limit: 2GiB
`
	require.NoError(t, afero.WriteFile(fs, "siamese.yaml", []byte(yml), 0644))

	cfg, err := LoadConfig(fs, "siamese.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ScaledCharacterBERTAdd, cfg.Architecture)
	assert.Equal(t, 16, cfg.Train.BatchSize)
	assert.Equal(t, 0.01, cfg.Train.WeightDecay)
	assert.Equal(t, 8, cfg.Train.ValBatchSize, "unset fields keep their defaults")

	limit, err := cfg.Device.memoryLimit()
	require.NoError(t, err)
	assert.Equal(t, uint64(2<<30), limit)
}

func TestLoadConfigErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "arch.yaml", []byte("architecture: gpt\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "typo.yaml", []byte("trian:\n  epochs: 3\n"), 0644))

	_, err := LoadConfig(fs, "arch.yaml")
	assert.Equal(t, ErrUnknownArchitecture, errors.Cause(err))

	_, err = LoadConfig(fs, "typo.yaml")
	assert.Error(t, err, "unknown keys are rejected")

	_, err = LoadConfig(fs, "missing.yaml")
	assert.Error(t, err)

	cfg, err := LoadConfig(fs, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	t.Setenv(ConfigEnvVar, "")
	assert.Equal(t, "", configPath(fs))

	require.NoError(t, afero.WriteFile(fs, DefaultConfigFile, nil, 0644))
	assert.Equal(t, DefaultConfigFile, configPath(fs))

	t.Setenv(ConfigEnvVar, "/etc/siamese/bert.yaml")
	assert.Equal(t, "/etc/siamese/bert.yaml", configPath(fs))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown architecture", func(c *Config) { c.Architecture = Architecture(42) }},
		{"zero embed dim", func(c *Config) { c.Model.EmbedDim = 0 }},
		{"narrow words", func(c *Config) { c.Model.CharsPerWord = 2 }},
		{"tiny vocab", func(c *Config) { c.Model.VocabSize = 100 }},
		{"zero batch", func(c *Config) { c.Train.BatchSize = 0 }},
		{"zero val batch", func(c *Config) { c.Train.ValBatchSize = 0 }},
		{"zero period", func(c *Config) { c.Train.Period = 0 }},
		{"zero epochs", func(c *Config) { c.Train.Epochs = 0 }},
		{"zero lr", func(c *Config) { c.Train.LearningRate = 0 }},
		{"negative decay", func(c *Config) { c.Train.WeightDecay = -1 }},
		{"zero clip", func(c *Config) { c.Train.ClipNorm = 0 }},
		{"bad size", func(c *Config) { c.Device.MemoryLimit = "plenty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
