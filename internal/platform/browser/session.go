// Package browser drives a Chromium tab through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// ErrUnsupported is returned for global actions a browser tab has no analogue for.
var ErrUnsupported = errors.New("not supported by the browser platform")

// errElementGone is returned when a ref no longer resolves in the page.
var errElementGone = errors.New("element is no longer attached to the page")

// actionRunner executes chromedp actions in the tab. Swapped out in tests.
type actionRunner func(ctx context.Context, actions ...chromedp.Action) error

// Session implements schemas.Platform on a single browser tab.
type Session struct {
	tabCtx context.Context
	cancel context.CancelFunc
	run    actionRunner
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.Platform = (*Session)(nil)

// allocatorOptions translates the browser config into chromedp allocator options.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(key, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// NewSession launches a browser, opens a tab and navigates to cfg.StartURL.
// The browser lives until Close or until ctx is cancelled.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("browser")
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	s := &Session{
		tabCtx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		cfg:    cfg,
		logger: logger,
	}
	s.run = s.runActions

	start := cfg.StartURL
	if start == "" {
		start = "about:blank"
	}
	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx, chromedp.Navigate(start)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	logger.Info("Browser session started", zap.String("url", start), zap.Bool("headless", cfg.Headless))
	return s, nil
}

// Close shuts down the tab and the browser process.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// runActions runs actions in the tab, aborting when ctx is cancelled. ctx is
// an operational context, not a chromedp one.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func evalOptions(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
}

// CaptureTree tags and serializes the page body.
func (s *Session) CaptureTree(ctx context.Context) (*schemas.UIElement, error) {
	var root *domNode
	if err := s.run(ctx, chromedp.Evaluate(captureScript, &root, evalOptions)); err != nil {
		return nil, fmt.Errorf("failed to capture DOM: %w", err)
	}
	return root.toElement(), nil
}

// DispatchGesture replays the gesture as mouse events on a background goroutine.
func (s *Session) DispatchGesture(ctx context.Context, g schemas.Gesture) (<-chan schemas.GestureStatus, error) {
	events := mouseEvents(g)
	if len(events) == 0 {
		return nil, fmt.Errorf("gesture %s has no strokes", g.Intent)
	}

	status := make(chan schemas.GestureStatus, 1)
	go func() {
		status <- s.replay(ctx, events)
	}()
	return status, nil
}

func (s *Session) replay(ctx context.Context, events []timedEvent) schemas.GestureStatus {
	start := time.Now()
	for _, ev := range events {
		if wait := ev.at - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return schemas.GestureStatus{State: schemas.GestureCancelled, Err: ctx.Err()}
			case <-timer.C:
			}
		}
		if err := s.run(ctx, ev.params); err != nil {
			s.logger.Warn("Mouse event dispatch failed", zap.String("type", string(ev.params.Type)), zap.Error(err))
			return schemas.GestureStatus{State: schemas.GestureCancelled, Err: err}
		}
	}
	return schemas.GestureStatus{State: schemas.GestureCompleted}
}

// PerformAction runs an element script against the node tagged el.Ref.
func (s *Session) PerformAction(ctx context.Context, el *schemas.UIElement, action schemas.ElementAction, args map[string]string) error {
	if el == nil || el.Ref == "" {
		return fmt.Errorf("no element for %s", action)
	}

	var script string
	switch action {
	case schemas.ElementFocus:
		script = elementScript(el.Ref, focusBody)
	case schemas.ElementSetText:
		script = elementScript(el.Ref, setValueBody, args[schemas.ArgText])
	case schemas.ElementSubmit:
		script = elementScript(el.Ref, submitBody)
	default:
		return fmt.Errorf("unsupported element action %q", action)
	}

	var found bool
	if err := s.run(ctx, chromedp.Evaluate(script, &found, evalOptions)); err != nil {
		return fmt.Errorf("%s failed: %w", action, err)
	}
	if !found {
		return fmt.Errorf("%s on %s: %w", action, el.Ref, errElementGone)
	}
	return nil
}

// InvokeGlobalAction maps back and home onto tab navigation.
func (s *Session) InvokeGlobalAction(ctx context.Context, action schemas.GlobalAction) error {
	switch action {
	case schemas.GlobalBack:
		return s.run(ctx, chromedp.NavigateBack())
	case schemas.GlobalHome:
		home := s.cfg.HomeURL
		if home == "" {
			home = s.cfg.StartURL
		}
		if home == "" {
			return fmt.Errorf("home: no home_url configured")
		}
		return s.run(ctx, chromedp.Navigate(home))
	case schemas.GlobalRecentApps:
		return fmt.Errorf("%s: %w", action, ErrUnsupported)
	default:
		return fmt.Errorf("unsupported global action %q", action)
	}
}

// LaunchApplication navigates to the URL registered for name, or to name
// itself when it is an absolute http(s) URL.
func (s *Session) LaunchApplication(ctx context.Context, name string) error {
	target, err := resolveApplication(s.cfg.Applications, name)
	if err != nil {
		return err
	}
	s.logger.Info("Opening application", zap.String("name", name), zap.String("url", target))
	return s.run(ctx, chromedp.Navigate(target))
}

func resolveApplication(apps map[string]string, name string) (string, error) {
	if target, ok := apps[name]; ok {
		return target, nil
	}
	for key, target := range apps {
		if strings.EqualFold(key, name) {
			return target, nil
		}
	}
	u, err := url.Parse(name)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return name, nil
	}
	return "", fmt.Errorf("unknown application %q: add it to platform.browser.applications or pass an http(s) URL", name)
}
