package catalog

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// fingerprintDedupe remembers the last applied fingerprint per item key.
type fingerprintDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, string]
}

func newFingerprintDedupe(size int) *fingerprintDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, string](size)
	return &fingerprintDedupe{lru: c}
}

// seen returns true if fp is the last fingerprint applied for key
func (d *fingerprintDedupe) seen(key, fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && last == fp
}

func (d *fingerprintDedupe) remember(key, fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Add(key, fp)
}
