package debounce_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"study-buddy/backend/internal/debounce"
)

func TestGroup_LatestCallWins(t *testing.T) {
	g := debounce.New(50 * time.Millisecond)
	var runs atomic.Int32
	var lastRun atomic.Int32

	var wg sync.WaitGroup
	results := make([]bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Do(context.Background(), "session-1", func(context.Context) {
				runs.Add(1)
				lastRun.Store(int32(i))
			})
		}(i)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int32(2), lastRun.Load())
	assert.Equal(t, []bool{false, false, true}, results)
}

func TestGroup_KeysAreIndependent(t *testing.T) {
	g := debounce.New(20 * time.Millisecond)
	var runs atomic.Int32

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			g.Do(context.Background(), key, func(context.Context) { runs.Add(1) })
		}(key)
	}
	wg.Wait()

	assert.Equal(t, int32(2), runs.Load())
}

func TestGroup_ContextCancelled(t *testing.T) {
	g := debounce.New(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := g.Do(ctx, "k", func(context.Context) { t.Fatal("must not run") })

	assert.False(t, ran)
}

func TestGroup_CancelledLatestCallDoesNotReviveOlderOne(t *testing.T) {
	g := debounce.New(60 * time.Millisecond)
	var ran sync.Map

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Do(context.Background(), "k", func(context.Context) { ran.Store("stale", true) })
	}()
	time.Sleep(10 * time.Millisecond)

	// A newer call supersedes the first one and is then abandoned.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, g.Do(cancelled, "k", func(context.Context) { t.Error("cancelled call must not run") }))

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Do(context.Background(), "k", func(context.Context) { ran.Store("fresh", true) })
	}()
	wg.Wait()

	_, stale := ran.Load("stale")
	_, fresh := ran.Load("fresh")
	assert.False(t, stale, "a superseded call must stay superseded")
	assert.True(t, fresh)
}
