// Package runlock keeps pipeline runs mutually exclusive across processes.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	"github.com/carolinacraus/market-state-api/pkg/cache"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

const lockKey = "pipeline:run"

// Lock implements RunLock over a cache.Service. Each acquisition stores a
// fresh token so a run can only release its own lock.
type Lock struct {
	cache cache.Service
	l     *applogger.Logger
}

var _ domrepo.RunLock = (*Lock)(nil)

func New(c cache.Service, l *applogger.Logger) *Lock {
	return &Lock{cache: c, l: l}
}

// Acquire returns ErrLocked when another run holds the lock.
func (k *Lock) Acquire(ctx context.Context, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := k.cache.TryLock(ctx, lockKey, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, domrepo.ErrLocked
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := k.cache.Unlock(ctx, lockKey, token); err != nil {
			lvl := k.l.Error
			if errors.Is(err, cache.ErrLockNotHeld) {
				lvl = k.l.Warn
			}
			lvl("release run lock", applogger.Error(err))
		}
	}
	return release, nil
}
