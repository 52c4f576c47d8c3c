// Package guard serializes read-modify-write cycles per aggregate.
//
// A Guard admits at most one holder per key. Keys are created on first use
// and dropped once no holder or waiter references them, so the map only
// ever contains keys with work in flight.
package guard

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"
)

// UserKey is the guard key for a user's balance.
func UserKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

// GoalKey is the guard key for a savings goal.
func GoalKey(id int64) string {
	return "goal:" + strconv.FormatInt(id, 10)
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

type Guard struct {
	mu   sync.Mutex
	keys map[string]*entry
}

func New() *Guard {
	return &Guard{keys: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned release func
// is safe to call more than once.
func (g *Guard) Lock(ctx context.Context, key string) (release func(), err error) {
	e := g.acquireRef(key)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		g.dropRef(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			g.dropRef(key, e)
		})
	}, nil
}

// Do runs fn while holding key.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	release, err := g.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Len returns the number of keys currently held or waited on.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

func (g *Guard) acquireRef(key string) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.keys[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		g.keys[key] = e
	}
	e.refs++
	return e
}

func (g *Guard) dropRef(key string, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	if e.refs == 0 && g.keys[key] == e {
		delete(g.keys, key)
	}
}
