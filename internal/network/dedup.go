package network

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	// defaultDedupTTL is how long a seen message hash is remembered.
	defaultDedupTTL = 30 * time.Second

	// cleanupInterval is the interval between expiry sweeps.
	cleanupInterval = 5 * time.Second
)

// dedup filters gossip messages already seen within a TTL window, keyed
// by blake3 hash of the message bytes.
type dedup struct {
	seen map[[32]byte]int64 // seen maps message hash to unix-nano timestamp
	mu   sync.Mutex         // mu protects the seen map
	ttl  int64              // ttl in nanoseconds
	stop chan struct{}      // stop signals the sweep goroutine
	wg   sync.WaitGroup
}

// newDedup creates a dedup filter and starts its expiry sweep.
func newDedup() *dedup {
	d := &dedup{
		seen: make(map[[32]byte]int64),
		ttl:  int64(defaultDedupTTL),
		stop: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.sweepLoop()

	return d
}

// check returns true when the message has not been seen inside the TTL
// window, recording it for future calls.
func (d *dedup) check(data []byte) bool {
	hash := blake3.Sum256(data)
	now := time.Now().UnixNano()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, exists := d.seen[hash]; exists && now-ts < d.ttl {
		return false
	}

	d.seen[hash] = now

	return true
}

// close stops the sweep goroutine.
func (d *dedup) close() {
	close(d.stop)
	d.wg.Wait()
}

// sweepLoop periodically removes expired entries.
func (d *dedup) sweepLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

// sweep removes entries older than the TTL.
func (d *dedup) sweep() {
	now := time.Now().UnixNano()

	d.mu.Lock()
	defer d.mu.Unlock()

	for hash, ts := range d.seen {
		if now-ts >= d.ttl {
			delete(d.seen, hash)
		}
	}
}
