package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"AgentHub-Chain/internal/web3"
	"AgentHub-Chain/internal/web3/ethereum"
)

// DialFunc opens a backend for one chain definition.
type DialFunc func(ctx context.Context, name string, def web3.ChainDefinition) (web3.Backend, error)

// DialEthereum is the default DialFunc backed by go-ethereum.
func DialEthereum(ctx context.Context, name string, def web3.ChainDefinition) (web3.Backend, error) {
	return ethereum.NewClient(ctx, ethereum.Config{
		Name:            name,
		RPCURL:          def.RPCURL,
		ExpectedChainID: def.ChainID,
		Notes:           def.Description,
	})
}

// Registry manages chain backends keyed by normalised chain id.
type Registry struct {
	mu       sync.RWMutex
	dial     DialFunc
	backends map[string]web3.Backend
	params   map[string]web3.ChainParams
}

// NewRegistry dials every defined chain that has an RPC endpoint.
func NewRegistry(ctx context.Context, defs web3.ChainDefinitions, dial DialFunc) (*Registry, error) {
	if dial == nil {
		dial = DialEthereum
	}
	r := &Registry{
		dial:     dial,
		backends: make(map[string]web3.Backend),
		params:   make(map[string]web3.ChainParams),
	}
	for _, name := range defs.Names() {
		def := defs.Chains[name]
		if strings.TrimSpace(def.RPCURL) == "" {
			continue
		}
		backend, err := dial(ctx, name, def)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		r.backends[def.ChainID] = backend
		r.params[def.ChainID] = def.Params()
	}
	if len(r.backends) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	return r, nil
}

// Backend returns the backend for the chain id, in any accepted notation.
func (r *Registry) Backend(chainID string) (web3.Backend, bool) {
	if r == nil {
		return nil, false
	}
	id, err := web3.NormalizeChainID(chainID)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[id]
	return backend, ok
}

// Params returns the add-chain parameters registered for the chain id.
func (r *Registry) Params(chainID string) (web3.ChainParams, bool) {
	if r == nil {
		return web3.ChainParams{}, false
	}
	id, err := web3.NormalizeChainID(chainID)
	if err != nil {
		return web3.ChainParams{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	params, ok := r.params[id]
	return params, ok
}

// Add dials a chain described by wallet add-chain parameters. Adding a chain
// that is already registered is a no-op.
func (r *Registry) Add(ctx context.Context, params web3.ChainParams) error {
	if r == nil {
		return errors.New("未初始化的链客户端注册表")
	}
	id, err := web3.NormalizeChainID(params.ChainID)
	if err != nil {
		return err
	}
	if len(params.RPCURLs) == 0 {
		return fmt.Errorf("链 %s 缺少 RPC 地址", id)
	}
	if _, ok := r.Backend(id); ok {
		return nil
	}
	def := web3.ChainDefinition{
		ChainID:           id,
		Name:              params.ChainName,
		NativeCurrency:    params.NativeCurrency,
		RPCURL:            params.RPCURLs[0],
		ExtraRPCURLs:      params.RPCURLs[1:],
		BlockExplorerURLs: params.BlockExplorerURLs,
	}
	backend, err := r.dial(ctx, params.ChainName, def)
	if err != nil {
		return fmt.Errorf("初始化链 %s 失败: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[id]; ok {
		backend.Close()
		return nil
	}
	r.backends[id] = backend
	r.params[id] = def.Params()
	return nil
}

// Close releases all backends managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, backend := range r.backends {
		if backend != nil {
			backend.Close()
		}
		delete(r.backends, id)
	}
}

// Chains returns the registered chain ids.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
