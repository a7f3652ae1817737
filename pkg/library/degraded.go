package library

import (
	"context"
	"errors"

	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/types"
)

// Degrading wraps a Store so read failures never fail the pipeline: a failed
// Get behaves as a miss, logged. Put failures are logged and surfaced so the
// caller knows the script was not stored; persistence stays best effort.
// ErrNotFound passes through unchanged.
type Degrading struct {
	inner Store
	log   *logging.Logger
}

// NewDegrading wraps a store with degrade-on-failure semantics.
func NewDegrading(inner Store, log *logging.Logger) *Degrading {
	if log == nil {
		log = logging.NewNop()
	}
	return &Degrading{inner: inner, log: log}
}

func (d *Degrading) Get(ctx context.Context, fingerprint string) (*types.GeneratedScript, error) {
	s, err := d.inner.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		d.log.Warnf("library degraded, treating as miss: %v", err)
		return nil, ErrNotFound
	}
	return s, nil
}

func (d *Degrading) Put(ctx context.Context, s *types.GeneratedScript) error {
	if err := d.inner.Put(ctx, s); err != nil {
		d.log.Warnf("library degraded, script %s not stored: %v", s.ID, err)
		return err
	}
	return nil
}

func (d *Degrading) Close() error { return d.inner.Close() }
