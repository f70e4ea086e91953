package leaselock

import (
	"context"
	"sync"
)

// Local is an in-process Locker for single-node runs without Postgres.
// Leases never expire; they are held until fn returns.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}
	opts = opts.withDefaults()

	err := retryUntil(ctx, opts, func(context.Context) (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, taken := l.held[key]; taken {
			return false, nil
		}
		l.held[key] = struct{}{}
		return true, nil
	})
	if err != nil {
		return err
	}
	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}
