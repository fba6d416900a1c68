// Package debounce coalesces bursts of calls that share a key.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Group runs only the latest call per key once the key has been quiet for
// the configured delay. Earlier calls in the burst are superseded.
type Group struct {
	delay time.Duration

	mu sync.Mutex
	// seq is shared by all keys and never reset, so a generation is never
	// handed out twice even after its key was forgotten.
	seq  uint64
	gens map[string]uint64
}

func New(delay time.Duration) *Group {
	return &Group{delay: delay, gens: make(map[string]uint64)}
}

// Do waits out the quiet period and then runs fn, unless a newer call for
// the same key arrived in the meantime or ctx ended. It reports whether fn
// ran.
func (g *Group) Do(ctx context.Context, key string, fn func(context.Context)) bool {
	g.mu.Lock()
	g.seq++
	gen := g.seq
	g.gens[key] = gen
	g.mu.Unlock()

	timer := time.NewTimer(g.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		g.forget(key, gen)
		return false
	case <-timer.C:
	}

	if !g.isLatest(key, gen) {
		return false
	}
	fn(ctx)
	g.forget(key, gen)
	return true
}

func (g *Group) isLatest(key string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[key] == gen
}

// forget drops the key once its latest call is finished so idle keys do not
// accumulate.
func (g *Group) forget(key string, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gens[key] == gen {
		delete(g.gens, key)
	}
}
