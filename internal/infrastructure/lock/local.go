package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cropclaim/internal/ports"
)

// LocalLocker serializes claims inside one process. Waiters block until the holder
// unlocks or their context ends; ttl is ignored.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ ports.ClaimLocker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is required")
	}

	for {
		l.mu.Lock()
		held, busy := l.slots[key]
		if !busy {
			slot := make(chan struct{})
			l.slots[key] = slot
			l.mu.Unlock()
			return l.releaser(key, slot), nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, errors.Join(ports.ErrLockNotObtained, ctx.Err())
		}
	}
}

func (l *LocalLocker) releaser(key string, slot chan struct{}) func(context.Context) error {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			if l.slots[key] == slot {
				delete(l.slots, key)
			}
			l.mu.Unlock()
			close(slot)
		})
		return nil
	}
}
