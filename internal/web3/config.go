package web3

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chain.yaml.
type ChainDefinitions struct {
	Required string                     `yaml:"required"`
	Chains   map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint definition.
type ChainDefinition struct {
	Type              string         `yaml:"type"`
	ChainID           string         `yaml:"chain_id"`
	Name              string         `yaml:"name"`
	NativeCurrency    NativeCurrency `yaml:"native_currency"`
	RPCURL            string         `yaml:"rpc_url"`
	ExtraRPCURLs      []string       `yaml:"extra_rpc_urls"`
	BlockExplorerURLs []string       `yaml:"block_explorer_urls"`
	Description       string         `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata. An
// empty path yields the built-in Flow EVM testnet definition.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultChainDefinitions(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}
	return ParseChainDefinitions(content)
}

// ParseChainDefinitions decodes and validates YAML chain definitions.
func ParseChainDefinitions(content []byte) (ChainDefinitions, error) {
	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType != "" && chainType != "evm" {
			return ChainDefinitions{}, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
		id, err := NormalizeChainID(chain.ChainID)
		if err != nil {
			return ChainDefinitions{}, fmt.Errorf("链 %s 的 chain_id 无效: %w", name, err)
		}
		chain.ChainID = id
		defs.Chains[name] = chain
	}
	if defs.Required == "" && len(defs.Chains) > 0 {
		defs.Required = defs.Names()[0]
	}
	if defs.Required != "" {
		if _, ok := defs.Chains[defs.Required]; !ok {
			return ChainDefinitions{}, fmt.Errorf("必需链 %s 未在配置中找到", defs.Required)
		}
	}
	return defs, nil
}

// DefaultChainDefinitions returns the built-in single-chain configuration.
func DefaultChainDefinitions() ChainDefinitions {
	return ChainDefinitions{
		Required: "flow-testnet",
		Chains: map[string]ChainDefinition{
			"flow-testnet": {
				Type:              "evm",
				ChainID:           FlowEVMTestnet.ChainID,
				Name:              FlowEVMTestnet.ChainName,
				NativeCurrency:    FlowEVMTestnet.NativeCurrency,
				RPCURL:            FlowEVMTestnet.RPCURLs[0],
				BlockExplorerURLs: append([]string(nil), FlowEVMTestnet.BlockExplorerURLs...),
			},
		},
	}
}

// Names returns the sorted chain names.
func (d ChainDefinitions) Names() []string {
	names := make([]string, 0, len(d.Chains))
	for name := range d.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredParams returns the add-chain payload of the required chain.
func (d ChainDefinitions) RequiredParams() (ChainParams, error) {
	chain, ok := d.Chains[d.Required]
	if !ok {
		return ChainParams{}, fmt.Errorf("必需链 %q 未配置", d.Required)
	}
	return chain.Params(), nil
}

// Params converts the definition into the wallet add-chain payload.
func (c ChainDefinition) Params() ChainParams {
	urls := make([]string, 0, 1+len(c.ExtraRPCURLs))
	if c.RPCURL != "" {
		urls = append(urls, c.RPCURL)
	}
	urls = append(urls, c.ExtraRPCURLs...)
	return ChainParams{
		ChainID:           c.ChainID,
		ChainName:         c.Name,
		NativeCurrency:    c.NativeCurrency,
		RPCURLs:           urls,
		BlockExplorerURLs: append([]string(nil), c.BlockExplorerURLs...),
	}
}
