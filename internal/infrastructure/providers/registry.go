package providers

import (
	"sort"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/infrastructure/config"
)

// Registry resolves provider adapters by code. Registration happens at
// startup; lookups afterwards are read-only, so no locking is needed.
type Registry struct {
	adapters map[banking.ProviderCode]banking.BankingProvider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[banking.ProviderCode]banking.BankingProvider),
	}
}

// NewRegistryFromConfig builds a registry from the banking configuration:
// Salt Edge when credentials are configured, and sandbox adapters for every
// provider code when sandbox mode is enabled.
func NewRegistryFromConfig(cfg *config.BankingConfig) (*Registry, error) {
	registry := NewRegistry()

	if cfg.SaltEdge.Enabled {
		seCfg := NewSaltEdgeConfig(cfg.SaltEdge.AppID, cfg.SaltEdge.Secret)
		if cfg.SaltEdge.BaseURL != "" {
			seCfg.BaseURL = cfg.SaltEdge.BaseURL
		}
		if cfg.SaltEdge.PageSize > 0 {
			seCfg.PageSize = cfg.SaltEdge.PageSize
		}
		if cfg.SaltEdge.MaxRetries > 0 {
			seCfg.MaxRetries = cfg.SaltEdge.MaxRetries
		}
		adapter, err := NewSaltEdgeAdapter(seCfg)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}

	if cfg.SandboxEnabled {
		for _, code := range []banking.ProviderCode{
			banking.ProviderCodeSaltEdge,
			banking.ProviderCodeTink,
			banking.ProviderCodeYapily,
		} {
			if _, err := registry.Get(code); err != nil {
				registry.Register(NewSandboxAdapter(code))
			}
		}
	}

	return registry, nil
}

// Register adds an adapter, replacing any previous one for the same code
func (r *Registry) Register(adapter banking.BankingProvider) {
	r.adapters[adapter.Code()] = adapter
}

// Get returns the adapter for the given code, or ErrInvalidProvider
func (r *Registry) Get(code banking.ProviderCode) (banking.BankingProvider, error) {
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, banking.ErrInvalidProvider
	}
	return adapter, nil
}

// List returns all registered adapters in stable code order
func (r *Registry) List() []banking.BankingProvider {
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code.String())
	}
	sort.Strings(codes)

	adapters := make([]banking.BankingProvider, 0, len(codes))
	for _, code := range codes {
		adapters = append(adapters, r.adapters[banking.ProviderCode(code)])
	}
	return adapters
}

// Ensure Registry implements the ProviderRegistry port
var _ banking.ProviderRegistry = (*Registry)(nil)
