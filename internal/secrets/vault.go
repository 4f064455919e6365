// Package secrets holds the token HMAC secrets so they can be rotated
// without a restart.
package secrets

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Loader produces a complete set of secret values.
type Loader func() (map[string]string, error)

// Vault serves an immutable snapshot of secrets. Reload replaces the snapshot
// as a whole, so readers never observe a half-applied rotation.
type Vault struct {
	snap   atomic.Pointer[map[string]string]
	loader Loader
	reload sync.Mutex
}

// NewVault populates a Vault from a first call to loader.
func NewVault(loader Loader) (*Vault, error) {
	v := &Vault{loader: loader}
	if err := v.load(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

// Get returns the secret stored under key, or "".
func (v *Vault) Get(key string) string {
	return (*v.snap.Load())[key]
}

// First returns the first non-empty secret among keys.
func (v *Vault) First(keys ...string) string {
	snap := *v.snap.Load()
	for _, k := range keys {
		if s := snap[k]; s != "" {
			return s
		}
	}
	return ""
}

// Reload re-runs the loader. On error the current snapshot stays in place.
func (v *Vault) Reload() error {
	v.reload.Lock()
	defer v.reload.Unlock()
	if err := v.load(); err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	return nil
}

func (v *Vault) load() error {
	vals, err := v.loader()
	if err != nil {
		return err
	}
	if vals == nil {
		vals = map[string]string{}
	}
	v.snap.Store(&vals)
	return nil
}
