package service

import (
	"context"
	"sync"

	ierr "github.com/vibefunder/billing/internal/errors"
)

// retryOnConflict runs fn until it does not lose an optimistic version check, at
// most maxRetries extra times. fn must reload everything it writes.
func retryOnConflict(ctx context.Context, params ServiceParams, subscriptionID string, fn func(ctx context.Context) error) error {
	maxRetries := params.Config.Billing.MaxConcurrencyRetries

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ierr.WithError(ctxErr).
				WithHint("Request was canceled").
				Mark(ierr.ErrSystem)
		}

		err = fn(ctx)
		if err == nil || !ierr.IsConcurrentModification(err) {
			return err
		}

		params.Logger.WithContext(ctx).Infow("subscription changed concurrently, retrying",
			"subscription_id", subscriptionID,
			"attempt", attempt+1,
			"max_retries", maxRetries,
		)
	}
	return err
}

// keyedMutex serializes work per key while different keys proceed in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
