package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/query"
	"github.com/Veraticus/receipt-ledger/internal/reconcile"
)

// EngineConfig holds query and reconciliation settings.
type EngineConfig struct {
	Currency  string
	Tolerance float64
	ChatLog   bool
}

// LoadEngineConfig reads format, chat and reconcile settings, applying defaults.
func LoadEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		Currency:  viper.GetString("format.currency"),
		Tolerance: viper.GetFloat64("reconcile.tolerance"),
		ChatLog:   true,
	}

	if viper.IsSet("chat.log") {
		cfg.ChatLog = viper.GetBool("chat.log")
	}
	if cfg.Currency == "" {
		cfg.Currency = query.DefaultCurrency
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = reconcile.DefaultTolerance
	}
	if cfg.Tolerance < 0 || cfg.Tolerance >= 1 {
		return EngineConfig{}, fmt.Errorf("%w: reconcile.tolerance must be in [0, 1), got %v", common.ErrInvalidConfig, cfg.Tolerance)
	}

	return cfg, nil
}
