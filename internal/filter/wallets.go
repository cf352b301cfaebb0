package filter

import (
	"context"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// Wallet is the part of a wallet the filters need.
type Wallet struct {
	Address   string `yaml:"address" json:"address"`
	PublicKey string `yaml:"publicKey" json:"publicKey"`
}

// WalletFinder resolves addresses to wallets. found=false means the address
// is unknown or has no public key yet.
type WalletFinder interface {
	FindByAddress(ctx context.Context, address string) (w Wallet, found bool, err error)
}

// WalletIndex is an in-memory WalletFinder. Safe for concurrent use.
type WalletIndex struct {
	mu        sync.RWMutex
	byAddress map[string]Wallet
}

// NewWalletIndex creates an index holding the given wallets.
func NewWalletIndex(wallets ...Wallet) *WalletIndex {
	idx := &WalletIndex{byAddress: make(map[string]Wallet, len(wallets))}
	for _, w := range wallets {
		idx.byAddress[w.Address] = w
	}
	return idx
}

type walletFile struct {
	Wallets []Wallet `yaml:"wallets"`
}

// LoadWalletIndex reads a YAML file of the form:
//
//	wallets:
//	  - address: AXYZ...
//	    publicKey: 02ab...
func LoadWalletIndex(path string) (*WalletIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load wallet index: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var wf walletFile
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("load wallet index %s: %w", path, err)
	}
	for i, w := range wf.Wallets {
		if w.Address == "" {
			return nil, fmt.Errorf("load wallet index %s: wallet %d has no address", path, i)
		}
	}
	return NewWalletIndex(wf.Wallets...), nil
}

// Add inserts or replaces a wallet.
func (idx *WalletIndex) Add(w Wallet) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byAddress[w.Address] = w
}

// Len returns the number of indexed wallets.
func (idx *WalletIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byAddress)
}

// FindByAddress implements WalletFinder.
func (idx *WalletIndex) FindByAddress(_ context.Context, address string) (Wallet, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	w, ok := idx.byAddress[address]
	if !ok || w.PublicKey == "" {
		return Wallet{}, false, nil
	}
	return w, true, nil
}

// CachedWalletFinder memoizes positive lookups of another finder.
//
// An address's public key never changes once known, so hits are cached
// indefinitely (subject to LRU eviction). Misses and errors are not cached:
// a wallet may gain its public key later.
type CachedWalletFinder struct {
	next  WalletFinder
	cache *lru.Cache[string, Wallet]
}

// NewCachedWalletFinder wraps next with an LRU cache of the given size.
func NewCachedWalletFinder(next WalletFinder, size int) (*CachedWalletFinder, error) {
	cache, err := lru.New[string, Wallet](size)
	if err != nil {
		return nil, fmt.Errorf("wallet cache: %w", err)
	}
	return &CachedWalletFinder{next: next, cache: cache}, nil
}

// FindByAddress implements WalletFinder.
func (c *CachedWalletFinder) FindByAddress(ctx context.Context, address string) (Wallet, bool, error) {
	if w, ok := c.cache.Get(address); ok {
		return w, true, nil
	}
	w, found, err := c.next.FindByAddress(ctx, address)
	if err != nil || !found {
		return w, found, err
	}
	c.cache.Add(address, w)
	return w, true, nil
}

// Len returns the number of cached entries.
func (c *CachedWalletFinder) Len() int {
	return c.cache.Len()
}
