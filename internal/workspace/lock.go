package workspace

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locker serializes mutations per key. Lock blocks until the key is free or
// ctx is done. The returned context must be used for the guarded work; it is
// canceled if the lock is lost before unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (context.Context, func(), error)
}

// KeyedLocker is an in-process Locker.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	if err := kl.sem.Acquire(ctx, 1); err != nil {
		l.release(key, kl, false)
		return nil, nil, err
	}

	var once sync.Once
	return ctx, func() {
		once.Do(func() { l.release(key, kl, true) })
	}, nil
}

func (l *KeyedLocker) release(key string, kl *keyedLock, held bool) {
	if held {
		kl.sem.Release(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
