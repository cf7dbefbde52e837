// Package config resolves aaflow settings from the config file and AAFLOW_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/userop"
)

// EnvPrefix namespaces environment overrides, e.g. AAFLOW_APP_ID.
const EnvPrefix = "AAFLOW"

// Gas price sources.
const (
	GasPriceChain   = "chain"
	GasPriceBundler = "bundler"
)

var (
	ErrMissingAppID = errors.New("app_id is not set (config app_id or AAFLOW_APP_ID)")
	ErrIncomplete   = errors.New("configuration incomplete")
)

// Config is the resolved configuration.
type Config struct {
	AppID          string `mapstructure:"app_id"`
	PaymasterRPC   string `mapstructure:"paymaster_rpc"`
	BundlerRPC     string `mapstructure:"bundler_rpc"`
	FactoryAddress string `mapstructure:"factory_address"`
	ExplorerURL    string `mapstructure:"explorer_url"`
	Chain          string `mapstructure:"chain"`
	EntryPoint     string `mapstructure:"entry_point"`
	RPCURL         string `mapstructure:"rpc_url"`
	GasPrice       string `mapstructure:"gas_price"`
	DataDir        string `mapstructure:"data_dir"`
	LogLevel       string `mapstructure:"log_level"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

// Keys lists every setting in display order.
var Keys = []string{
	"app_id", "chain", "rpc_url", "bundler_rpc", "paymaster_rpc", "factory_address",
	"entry_point", "explorer_url", "gas_price", "data_dir", "log_level", "metrics_addr",
}

// SetDefaults registers defaults for every key so env overrides are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper, home string) {
	v.SetDefault("app_id", "")
	v.SetDefault("paymaster_rpc", "")
	v.SetDefault("bundler_rpc", "")
	v.SetDefault("factory_address", "")
	v.SetDefault("explorer_url", "")
	v.SetDefault("chain", chain.DefaultChain)
	v.SetDefault("entry_point", userop.EntryPointV07.Hex())
	v.SetDefault("rpc_url", "")
	v.SetDefault("gas_price", GasPriceChain)
	v.SetDefault("data_dir", DefaultDataDir(home))
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
}

// DefaultDataDir is ~/.aaflow.
func DefaultDataDir(home string) string {
	return filepath.Join(home, ".aaflow")
}

// BindEnv enables AAFLOW_* overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates v. A missing app id is always an error;
// everything else is checked when it is used.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	if cfg.AppID == "" {
		return nil, ErrMissingAppID
	}

	switch cfg.GasPrice {
	case GasPriceChain, GasPriceBundler:
	default:
		return nil, fmt.Errorf("gas_price must be %q or %q, got %q", GasPriceChain, GasPriceBundler, cfg.GasPrice)
	}
	if cfg.FactoryAddress != "" && !common.IsHexAddress(cfg.FactoryAddress) {
		return nil, fmt.Errorf("factory_address %q is not an address", cfg.FactoryAddress)
	}
	if !common.IsHexAddress(cfg.EntryPoint) {
		return nil, fmt.Errorf("entry_point %q is not an address", cfg.EntryPoint)
	}
	if _, err := chain.Lookup(cfg.Chain); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireFlow checks the settings the sign-in and submit flow needs.
func (c *Config) RequireFlow() error {
	var missing []string
	if c.BundlerRPC == "" {
		missing = append(missing, "bundler_rpc")
	}
	if c.FactoryAddress == "" {
		missing = append(missing, "factory_address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// ChainConfig returns the selected chain preset with rpc_url applied.
func (c *Config) ChainConfig() (*chain.ChainConfig, error) {
	cc, err := chain.Lookup(c.Chain)
	if err != nil {
		return nil, err
	}
	if c.RPCURL != "" {
		cc = cc.WithRPC(c.RPCURL)
	}
	return cc, nil
}

// Factory is the SimpleAccount factory address.
func (c *Config) Factory() common.Address {
	return common.HexToAddress(c.FactoryAddress)
}

// EntryPointAddress is the configured entry point.
func (c *Config) EntryPointAddress() common.Address {
	return common.HexToAddress(c.EntryPoint)
}

// Sponsored reports whether a paymaster is configured.
func (c *Config) Sponsored() bool {
	return c.PaymasterRPC != ""
}

// LogPath is where the log file goes.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "aaflow.log")
}

// Display returns key/value pairs for printing, with RPC credentials redacted.
func (c *Config) Display() [][2]string {
	values := map[string]string{
		"app_id":          c.AppID,
		"chain":           c.Chain,
		"rpc_url":         RedactURL(c.RPCURL),
		"bundler_rpc":     RedactURL(c.BundlerRPC),
		"paymaster_rpc":   RedactURL(c.PaymasterRPC),
		"factory_address": c.FactoryAddress,
		"entry_point":     c.EntryPoint,
		"explorer_url":    c.ExplorerURL,
		"gas_price":       c.GasPrice,
		"data_dir":        c.DataDir,
		"log_level":       c.LogLevel,
		"metrics_addr":    c.MetricsAddr,
	}
	out := make([][2]string, 0, len(Keys))
	for _, k := range Keys {
		out = append(out, [2]string{k, values[k]})
	}
	return out
}
