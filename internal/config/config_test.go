package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.7, cfg.MinHebrewRatio)
	assert.Equal(t, 99, cfg.MaxQuantity)
	assert.Equal(t, "יחידה", cfg.DefaultUnit)
	assert.Equal(t, 3, cfg.OpenAIMaxRetries)
	assert.Equal(t, 7*24*time.Hour, cfg.UndoExpiry())
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	err := cfg.loadEnv(mapEnv(map[string]string{
		"BASKIT_MAX_QUANTITY":       "20",
		"MAX_QUANTITY":              "30", // prefixed name wins
		"OPENAI_TIMEOUT":            "2",
		"RETRY_DELAY":               "250ms",
		"AUTO_MERGE_SIMILAR":        "false",
		"TOOL_CONFIDENCE_THRESHOLD": "0.8",
		"MERGE_OVERFLOW":            "reject",
	}))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MaxQuantity)
	assert.Equal(t, 2*time.Second, cfg.OpenAITimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.False(t, cfg.AutoMergeSimilar)
	assert.Equal(t, 0.8, cfg.ToolConfidenceThreshold)
	assert.Equal(t, MergeReject, cfg.MergeOverflow)
	require.NoError(t, cfg.Validate())
}

func TestEnvParseErrors(t *testing.T) {
	cfg := Default()
	err := cfg.loadEnv(mapEnv(map[string]string{
		"MAX_QUANTITY":   "lots",
		"SOFT_DELETE":    "maybe",
		"OPENAI_TIMEOUT": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_QUANTITY")
	assert.Contains(t, err.Error(), "SOFT_DELETE")
	assert.Contains(t, err.Error(), "OPENAI_TIMEOUT")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ratio above one", func(c *Config) { c.MinHebrewRatio = 1.5 }},
		{"negative threshold", func(c *Config) { c.ToolConfidenceThreshold = -0.1 }},
		{"zero quantity cap", func(c *Config) { c.MaxQuantity = 0 }},
		{"zero retries", func(c *Config) { c.OpenAIMaxRetries = 0 }},
		{"bad overflow", func(c *Config) { c.MergeOverflow = "wrap" }},
		{"bad provider", func(c *Config) { c.NLUProvider = "claude" }},
		{"bad backoff", func(c *Config) { c.RetryBackoff = "random" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baskit.yaml")
	data := "max_quantity: 12\ndefault_list_name: weekly\nsoft_delete: false\nnlu_provider: none\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("BASKIT_MAX_LISTS_PER_USER", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.MaxQuantity)
	assert.Equal(t, "weekly", cfg.DefaultListName)
	assert.False(t, cfg.SoftDelete)
	assert.Equal(t, ProviderNone, cfg.NLUProvider)
	assert.Equal(t, 3, cfg.MaxListsPerUser)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
