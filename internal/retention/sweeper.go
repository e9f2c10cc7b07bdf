// Package retention deletes assets older than a configured age.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/logging"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage"
)

var ErrSweepInProgress = errors.New("retention sweep already in progress")

// Lister pages expired records by storage name.
type Lister interface {
	ListCreatedBefore(ctx context.Context, cutoff time.Time, afterName string, limit int) ([]models.Asset, error)
}

// Deleter runs the regular deletion path without an ownership check.
type Deleter interface {
	Purge(ctx context.Context, storageName string) error
}

// Locker is a cross-instance try-lock. acquired=false means another node
// is sweeping.
type Locker interface {
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

type Sweeper struct {
	lister    Lister
	deleter   Deleter
	locker    Locker
	batchSize int
	log       logging.Logger
	now       func() time.Time

	running atomic.Bool
}

type Options struct {
	Locker    Locker
	BatchSize int
	Logger    logging.Logger
	Now       func() time.Time
}

func NewSweeper(lister Lister, deleter Deleter, opts Options) *Sweeper {
	s := &Sweeper{
		lister:    lister,
		deleter:   deleter,
		locker:    opts.Locker,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	s.log = s.log.With("component", "sweeper")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Sweep deletes every record created more than threshold ago and returns
// how many it removed. A failing record is logged and skipped. Cancelling
// ctx stops the sweep after the current record.
func (s *Sweeper) Sweep(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		return 0, fmt.Errorf("retention threshold must be positive, got %s", threshold)
	}
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			return 0, ErrSweepInProgress
		}
		defer release()
	}

	cutoff := s.now().Add(-threshold)
	s.log.Info(ctx, "sweep started", "cutoff", cutoff.Format(time.RFC3339))

	var (
		deleted int
		failed  int
		after   string
	)
	for {
		batch, err := s.lister.ListCreatedBefore(ctx, cutoff, after, s.batchSize)
		if err != nil {
			return deleted, fmt.Errorf("list expired assets: %w", err)
		}
		for _, a := range batch {
			if err := ctx.Err(); err != nil {
				s.log.Warn(ctx, "sweep interrupted", "deleted", deleted, "failed", failed)
				return deleted, err
			}
			err := s.deleter.Purge(ctx, a.StorageName)
			switch {
			case err == nil:
				deleted++
			case errors.Is(err, storage.ErrNotFound):
				// removed by someone else since listing
			default:
				failed++
				s.log.Error(ctx, "failed to delete expired asset",
					"storage_name", a.StorageName, "owner_id", a.OwnerID, "op", "sweep", "error", err)
			}
		}
		if len(batch) < s.batchSize {
			break
		}
		after = batch[len(batch)-1].StorageName
	}

	s.log.Info(ctx, "sweep finished", "deleted", deleted, "failed", failed)
	return deleted, nil
}
