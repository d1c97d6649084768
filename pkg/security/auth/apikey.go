package auth

import (
	"errors"
	"sync"

	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// Authentication errors.
var (
	ErrMissingKey  = errors.New("missing API key")
	ErrInvalidKey  = errors.New("invalid API key")
	ErrDisabledKey = errors.New("API key disabled")
)

// Identity is an authenticated caller.
type Identity struct {
	// Tenant is the key the caller is admitted against. Empty leaves the
	// tenant to the request.
	Tenant string

	// KeyHash identifies the API key in logs without revealing it.
	KeyHash string
}

type apiKey struct {
	tenant   string
	disabled bool
}

// APIKeyValidator validates API keys against the configured set.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[string]apiKey
}

// NewAPIKeyValidator creates a validator for keys.
func NewAPIKeyValidator(keys []config.APIKeyConfig) *APIKeyValidator {
	v := &APIKeyValidator{}
	v.Update(keys)
	return v
}

// Update replaces the accepted keys.
func (v *APIKeyValidator) Update(keys []config.APIKeyConfig) {
	m := make(map[string]apiKey, len(keys))
	for _, k := range keys {
		m[k.Key] = apiKey{tenant: k.Tenant, disabled: k.Disabled}
	}

	v.mu.Lock()
	v.keys = m
	v.mu.Unlock()
}

// Validate returns the identity behind key.
func (v *APIKeyValidator) Validate(key string) (Identity, error) {
	if key == "" {
		return Identity{}, ErrMissingKey
	}

	v.mu.RLock()
	k, ok := v.keys[key]
	v.mu.RUnlock()

	if !ok {
		return Identity{}, ErrInvalidKey
	}
	if k.disabled {
		return Identity{}, ErrDisabledKey
	}
	return Identity{Tenant: k.tenant, KeyHash: logging.HashKey(key)}, nil
}

// Len returns the number of configured keys, disabled ones included.
func (v *APIKeyValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
