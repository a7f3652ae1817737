package browser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autopilot/pkg/types"
)

// Engine owns the Playwright runtime and hands out isolated sessions. One
// engine serves all concurrent pipelines in a process; each pipeline gets its
// own session (browser context + page).
type Engine struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool
}

// NewEngine creates an engine. Initialize must be called before NewSession.
func NewEngine() *Engine {
	return &Engine{}
}

// Initialize installs and starts the Playwright driver. Safe to call more
// than once.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("browser: install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("browser: start playwright: %w", err)
	}

	e.pw = pw
	e.initialized = true
	return nil
}

// NewSession launches a browser and returns a Capability bound to one page.
func (e *Engine) NewSession(opts Options) (Capability, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("browser: engine not initialized")
	}

	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if opts.ActionTimeoutMS == 0 {
		opts.ActionTimeoutMS = DefaultActionTimeout
	}

	b, err := e.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("browser: new context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		return nil, fmt.Errorf("browser: new page: %w", err)
	}
	page.SetDefaultTimeout(opts.ActionTimeoutMS)

	return &session{browser: b, bctx: bctx, page: page, timeout: opts.ActionTimeoutMS}, nil
}

// Shutdown closes the Playwright runtime. Sessions must be closed first.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized || e.pw == nil {
		return nil
	}
	if err := e.pw.Stop(); err != nil {
		return fmt.Errorf("browser: stop playwright: %w", err)
	}
	e.initialized = false
	return nil
}

// session implements Capability over one Playwright page. Playwright calls do
// not take a context, so cancellation is honored by checking the context
// before each call and closing the page on cancellation via a watcher.
type session struct {
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	timeout float64
	mu      sync.Mutex
	closed  bool
}

// guard checks for cancellation and arms a watcher that tears the page down
// if the context is canceled mid-operation. The returned stop func must be
// called when the operation completes.
func (s *session) guard(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()
	return func() { close(done) }, nil
}

func (s *session) Navigate(ctx context.Context, url string) error {
	stop, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if _, err := s.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

func (s *session) Observe(ctx context.Context) (Observation, error) {
	stop, err := s.guard(ctx)
	if err != nil {
		return Observation{}, err
	}
	defer stop()

	obs := Observation{URL: s.page.URL()}

	if title, err := s.page.Title(); err == nil {
		obs.Title = title
	}

	if body, err := s.page.QuerySelector("body"); err == nil && body != nil {
		if text, err := body.InnerText(); err == nil {
			obs.Summary = truncate(collapseWhitespace(text), maxSummaryLength)
		}
	}

	elements, err := s.page.QuerySelectorAll("a[href], button, input, select, textarea")
	if err == nil {
		for _, el := range elements {
			if len(obs.Interactive) >= maxInteractive {
				break
			}
			desc := describeElement(el)
			if desc != "" {
				obs.Interactive = append(obs.Interactive, desc)
			}
		}
	}

	return obs, nil
}

func (s *session) Act(ctx context.Context, action types.ActionKind, target, value string) (ActResult, error) {
	stop, err := s.guard(ctx)
	if err != nil {
		return ActResult{}, err
	}
	defer stop()

	switch action {
	case types.ActionNavigate:
		url := value
		if url == "" {
			url = target
		}
			if _, err := s.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}); err != nil {
			return ActResult{}, fmt.Errorf("browser: navigate %s: %w", url, err)
		}
		return ActResult{}, nil

	case types.ActionClick:
		if err := s.page.Click(target, playwright.PageClickOptions{Timeout: &s.timeout}); err != nil {
			return ActResult{ObstacleHit: looksLikeObstruction(err)}, fmt.Errorf("browser: click %s: %w", target, err)
		}
		return ActResult{}, nil

	case types.ActionFill:
		if err := s.page.Fill(target, value, playwright.PageFillOptions{Timeout: &s.timeout}); err != nil {
			return ActResult{ObstacleHit: looksLikeObstruction(err)}, fmt.Errorf("browser: fill %s: %w", target, err)
		}
		return ActResult{}, nil

	case types.ActionExtract:
		selector := target
		if selector == "" {
			selector = "body"
		}
		el, err := s.page.QuerySelector(selector)
		if err != nil {
			return ActResult{}, fmt.Errorf("browser: extract query %s: %w", selector, err)
		}
		if el == nil {
			return ActResult{}, fmt.Errorf("browser: extract: no element matches %s", selector)
		}
		text, err := el.InnerText()
		if err != nil {
			return ActResult{}, fmt.Errorf("browser: extract %s: %w", selector, err)
		}
		return ActResult{Content: collapseWhitespace(text)}, nil

	case types.ActionScroll:
		if _, err := s.page.Evaluate("window.scrollBy(0, 600)"); err != nil {
			return ActResult{}, fmt.Errorf("browser: scroll: %w", err)
		}
		return ActResult{}, nil

	case types.ActionWait:
		return ActResult{}, s.WaitFor(ctx, target, value)

	default:
		return ActResult{}, fmt.Errorf("browser: unsupported action %q", action)
	}
}

func (s *session) WaitFor(ctx context.Context, selector, state string) error {
	stop, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if selector == "" {
		return fmt.Errorf("browser: wait: selector is required")
	}
	opts := playwright.PageWaitForSelectorOptions{Timeout: &s.timeout}
	if state != "" {
		st := playwright.WaitForSelectorState(state)
		opts.State = &st
	}
	if _, err := s.page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("browser: wait for %s: %w", selector, err)
	}
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.page.Close()
	_ = s.bctx.Close()
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

// describeElement renders a short "tag#id.class \"text\"" description used in
// observations so the model can pick targets by structure.
func describeElement(el playwright.ElementHandle) string {
	tag, err := el.Evaluate("el => el.tagName.toLowerCase()")
	if err != nil {
		return ""
	}
	desc, _ := tag.(string)
	if desc == "" {
		return ""
	}
	if id, err := el.GetAttribute("id"); err == nil && id != "" {
		desc += "#" + id
	}
	if text, err := el.InnerText(); err == nil {
		text = collapseWhitespace(text)
		if text != "" {
			desc += fmt.Sprintf(" %q", truncate(text, 60))
		}
	}
	return desc
}

// looksLikeObstruction reports whether an action error suggests an overlay
// intercepted the action rather than the element being absent.
func looksLikeObstruction(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "intercept") || strings.Contains(msg, "overlay") ||
		strings.Contains(msg, "element is not visible")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
