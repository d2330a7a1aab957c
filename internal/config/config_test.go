package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/common"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("RECEIPTS_TEST_DIR", "/data")

	tests := []struct {
		input string
		want  string
	}{
		{input: "", want: ""},
		{input: "~", want: home},
		{input: "~/ledger.db", want: filepath.Join(home, "ledger.db")},
		{input: "$RECEIPTS_TEST_DIR/ledger.db", want: "/data/ledger.db"},
		{input: "/abs/path.db", want: "/abs/path.db"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.input))
		})
	}
}

func TestLoadLLMConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("provider key from environment", func(t *testing.T) {
		viper.Reset()
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		viper.Set("llm.provider", "Anthropic")

		cfg, err := LoadLLMConfig()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.Provider)
		assert.Equal(t, "env-key", cfg.APIKey)
		assert.Equal(t, 15*time.Second, cfg.Timeout)
	})

	t.Run("viper wins over environment", func(t *testing.T) {
		viper.Reset()
		t.Setenv("OPENAI_API_KEY", "env-key")
		viper.Set("llm.api_key", "config-key")
		viper.Set("llm.base_url", "http://localhost:11434/v1")
		viper.Set("llm.timeout", "3s")

		cfg, err := LoadLLMConfig()
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.Provider)
		assert.Equal(t, "config-key", cfg.APIKey)
		assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
		assert.Equal(t, 3*time.Second, cfg.Timeout)
	})

	t.Run("missing key", func(t *testing.T) {
		viper.Reset()
		t.Setenv("GEMINI_API_KEY", "")
		viper.Set("llm.provider", "gemini")

		_, err := LoadLLMConfig()
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("unknown provider", func(t *testing.T) {
		viper.Reset()
		viper.Set("llm.provider", "claudecode")

		_, err := LoadLLMConfig()
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestLoadEngineConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Reset()
	cfg, err := LoadEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, EngineConfig{Currency: "Rp", Tolerance: 0.05, ChatLog: true}, cfg)

	viper.Set("format.currency", "IDR")
	viper.Set("reconcile.tolerance", 0.1)
	viper.Set("chat.log", false)
	cfg, err = LoadEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, EngineConfig{Currency: "IDR", Tolerance: 0.1, ChatLog: false}, cfg)

	viper.Set("reconcile.tolerance", 1.5)
	_, err = LoadEngineConfig()
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
