package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/llm"
)

// providerKeyEnv names the conventional API key variable of each provider.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// LLMEnabled reports whether the model path is switched on.
func LLMEnabled() bool {
	return viper.GetBool("llm.enabled")
}

// LoadLLMConfig loads language model configuration from Viper and environment variables.
// It follows this precedence:
// 1. Viper configuration (from config file or RECEIPTS_ env vars)
// 2. The provider's own API key variable (OPENAI_API_KEY and so on)
// 3. Default values
func LoadLLMConfig() (llm.Config, error) {
	cfg := llm.Config{
		Provider:    strings.ToLower(viper.GetString("llm.provider")),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Timeout:     viper.GetDuration("llm.timeout"),
		CacheTTL:    viper.GetDuration("llm.cache_ttl"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	}

	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	envKey, ok := providerKeyEnv[cfg.Provider]
	if !ok {
		return llm.Config{}, fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, cfg.Provider)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(envKey)
	}
	if cfg.APIKey == "" {
		return llm.Config{}, fmt.Errorf("%w: set llm.api_key or %s", common.ErrMissingConfig, envKey)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return llm.Config{}, fmt.Errorf("%w: llm.temperature must be between 0 and 2", common.ErrInvalidConfig)
	}

	return cfg, nil
}
