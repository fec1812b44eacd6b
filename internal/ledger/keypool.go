package ledger

import "sync/atomic"

// KeyPool hands out API keys round-robin. Safe for concurrent use.
type KeyPool struct {
	keys    []string
	counter atomic.Uint64
}

func NewKeyPool(keys []string) *KeyPool {
	return &KeyPool{keys: append([]string(nil), keys...)}
}

// Size returns the number of keys; zero means requests go unauthenticated
func (p *KeyPool) Size() int {
	return len(p.keys)
}

// Next returns the next key in rotation, or "" for an empty pool
func (p *KeyPool) Next() string {
	if len(p.keys) == 0 {
		return ""
	}
	n := p.counter.Add(1) - 1
	return p.keys[n%uint64(len(p.keys))]
}
