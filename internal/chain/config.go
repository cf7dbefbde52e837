package chain

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultChain is the chain the flow targets when nothing is configured.
const DefaultChain = "base-sepolia"

// ChainConfig holds configuration for an EVM chain.
// Invariant: ChainID and ChainIDInt must always represent the same value.
// ChainIDInt exists for YAML serialization (big.Int doesn't serialize cleanly).
type ChainConfig struct {
	Name           string   `yaml:"name"`
	ChainID        *big.Int `yaml:"-"`        // Runtime use (signing, RPC validation)
	ChainIDInt     int64    `yaml:"chain_id"` // YAML serialization
	RPCURLs        []string `yaml:"rpc_urls"`
	ExplorerURL    string   `yaml:"explorer_url"`
	NativeCurrency string   `yaml:"native_currency"`
	IsTestnet      bool     `yaml:"is_testnet"`
}

// TxURL links a transaction hash on the given explorer base. An empty base
// falls back to the chain's own explorer.
func (c *ChainConfig) TxURL(explorerBase string, hash common.Hash) string {
	base := explorerBase
	if base == "" {
		base = c.ExplorerURL
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(base, "/"), hash.Hex())
}

// WithRPC returns a copy of the config that only dials rpcURL.
func (c *ChainConfig) WithRPC(rpcURL string) *ChainConfig {
	cp := *c
	cp.RPCURLs = []string{rpcURL}
	return &cp
}

// Lookup returns the preset for name.
func Lookup(name string) (*ChainConfig, error) {
	cfg, ok := DefaultChains()[name]
	if !ok {
		return nil, fmt.Errorf("unknown chain: %s (known: %s)", name, strings.Join(Names(), ", "))
	}
	return cfg, nil
}

// Names returns the preset names in sorted order.
func Names() []string {
	chains := DefaultChains()
	names := make([]string, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultChains returns the chains with a public EntryPoint v0.7 deployment
func DefaultChains() map[string]*ChainConfig {
	return map[string]*ChainConfig{
		"ethereum": {
			Name:           "Ethereum Mainnet",
			ChainID:        big.NewInt(1),
			ChainIDInt:     1,
			RPCURLs:        []string{"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
			ExplorerURL:    "https://etherscan.io",
			NativeCurrency: "ETH",
			IsTestnet:      false,
		},
		"base": {
			Name:           "Base",
			ChainID:        big.NewInt(8453),
			ChainIDInt:     8453,
			RPCURLs:        []string{"https://mainnet.base.org", "https://base.llamarpc.com"},
			ExplorerURL:    "https://basescan.org",
			NativeCurrency: "ETH",
			IsTestnet:      false,
		},
		"sepolia": {
			Name:           "Sepolia Testnet",
			ChainID:        big.NewInt(11155111),
			ChainIDInt:     11155111,
			RPCURLs:        []string{"https://rpc.sepolia.org", "https://sepolia.drpc.org"},
			ExplorerURL:    "https://sepolia.etherscan.io",
			NativeCurrency: "ETH",
			IsTestnet:      true,
		},
		"base-sepolia": {
			Name:           "Base Sepolia Testnet",
			ChainID:        big.NewInt(84532),
			ChainIDInt:     84532,
			RPCURLs:        []string{"https://sepolia.base.org"},
			ExplorerURL:    "https://sepolia.basescan.org",
			NativeCurrency: "ETH",
			IsTestnet:      true,
		},
	}
}
