// Package library is the persistent script library: a keyed store mapping a
// task fingerprint to the latest validated script for that task. Entries are
// replaced atomically, never partially updated.
package library

import (
	"context"
	"errors"

	"github.com/entrhq/autopilot/pkg/types"
)

// ErrNotFound is returned by Get when no script is stored for a fingerprint.
var ErrNotFound = errors.New("library: script not found")

// Store is the script library contract. Put replaces any existing entry for
// the script's fingerprint; implementations must not interleave partial
// writes for concurrent Puts on the same fingerprint.
type Store interface {
	// Get returns the stored script for the fingerprint, or ErrNotFound.
	Get(ctx context.Context, fingerprint string) (*types.GeneratedScript, error)

	// Put stores the script keyed by its fingerprint, replacing any
	// existing entry. Only scripts with status PASSED may be stored.
	Put(ctx context.Context, s *types.GeneratedScript) error

	// Close releases the backing store.
	Close() error
}
