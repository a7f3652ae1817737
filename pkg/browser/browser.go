// Package browser adapts a real browser engine to the narrow capability the
// pipeline needs: navigate, observe the current page, perform one action, and
// wait for a condition. The pipeline treats the engine as opaque; everything
// site-specific stays behind this interface.
package browser

import (
	"context"

	"github.com/entrhq/autopilot/pkg/types"
)

// Observation is a summary of the current page state, compact enough to feed
// to the language model on every step.
type Observation struct {
	// URL of the current page.
	URL string `json:"url"`

	// Title of the current page.
	Title string `json:"title"`

	// Summary is a trimmed text rendering of the visible page content.
	Summary string `json:"summary"`

	// Interactive lists selectors for clickable and fillable elements
	// detected on the page, capped at a fixed count.
	Interactive []string `json:"interactive,omitempty"`
}

// ActResult is the outcome of one performed action.
type ActResult struct {
	// Content carries extracted data for extract actions, empty otherwise.
	Content string

	// ObstacleHit is set when the action failed in a way that suggests an
	// overlay or unexpected state rather than a missing element.
	ObstacleHit bool
}

// Capability is the browser surface the explorer and the script runner drive.
// All methods honor context cancellation; an aborted context tears down the
// in-flight operation so no orphaned session keeps acting.
type Capability interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Observe returns a summary of the current page state.
	Observe(ctx context.Context) (Observation, error)

	// Act performs a single action against the page. Target is a selector
	// or label, value is action-specific (text to fill, URL to open).
	Act(ctx context.Context, action types.ActionKind, target, value string) (ActResult, error)

	// WaitFor blocks until the selector reaches the given state
	// ("visible", "hidden", "attached", "detached").
	WaitFor(ctx context.Context, selector, state string) error

	// Close releases the underlying page and browser resources.
	Close() error
}

// Options configures a new browser session.
type Options struct {
	Headless        bool
	ViewportWidth   int
	ViewportHeight  int
	ActionTimeoutMS float64
}

// Defaults for session options left unset.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultActionTimeout  = 30000.0

	// maxSummaryLength caps the page text included in an observation.
	maxSummaryLength = 4000

	// maxInteractive caps the number of interactive selectors reported.
	maxInteractive = 40
)
