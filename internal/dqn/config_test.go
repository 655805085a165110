package dqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("DQN")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmDQN, alg)

	alg, err = ParseAlgorithm("QR-DQN")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmQRDQN, alg)

	_, err = ParseAlgorithm("PPO")
	require.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown algorithm", func(c *Config) { c.Algorithm = "A2C" }},
		{"gamma out of range", func(c *Config) { c.Gamma = 1.5 }},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"batch larger than buffer", func(c *Config) { c.BufferSize = 8; c.BatchSize = 16 }},
		{"zero train freq", func(c *Config) { c.TrainFreq = 0 }},
		{"exploration fraction out of range", func(c *Config) { c.ExplorationFraction = 2 }},
		{"QR-DQN without quantiles", func(c *Config) { c.Algorithm = AlgorithmQRDQN; c.NumQuantiles = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
