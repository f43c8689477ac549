package lock

import (
	"context"
	"fmt"
	"sync"
)

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local 进程内按 key 的互斥锁，等待可被 ctx 取消
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

func (l *Local) acquire(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	entries := make([]*localEntry, 0, len(keys))

	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-entries[i].ch
			l.release(held[i], entries[i])
		}
	}

	for _, k := range keys {
		e := l.acquire(k)
		select {
		case e.ch <- struct{}{}:
			held = append(held, k)
			entries = append(entries, e)
		case <-ctx.Done():
			l.release(k, e)
			unlock()
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, k, ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}
