// Package adb drives an Android device through the adb command line tool.
package adb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// Android key codes used by the device.
const (
	keyHome      = 3
	keyBack      = 4
	keyEnter     = 66
	keyDelete    = 67
	keyMoveEnd   = 123
	keyAppSwitch = 187
)

const launcherIntent = "android.intent.category.LAUNCHER"

var packageRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`)

// Device implements schemas.Platform for one adb-connected device.
type Device struct {
	runner Runner
	serial string
	logger *zap.Logger
}

var _ schemas.Platform = (*Device)(nil)

// Option configures a Device.
type Option func(*Device)

// WithRunner replaces the adb process runner.
func WithRunner(r Runner) Option {
	return func(d *Device) { d.runner = r }
}

// New creates a Device. cfg.Serial may be empty when exactly one device is attached.
func New(cfg config.ADBConfig, logger *zap.Logger, opts ...Option) *Device {
	path := cfg.Path
	if path == "" {
		path = "adb"
	}
	d := &Device{
		runner: execRunner{path: path, timeout: cfg.CommandTimeout},
		serial: cfg.Serial,
		logger: logger.Named("adb"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) adb(ctx context.Context, args ...string) ([]byte, error) {
	if d.serial != "" {
		args = append([]string{"-s", d.serial}, args...)
	}
	return d.runner.Run(ctx, args...)
}

func (d *Device) shell(ctx context.Context, args ...string) ([]byte, error) {
	return d.adb(ctx, append([]string{"shell"}, args...)...)
}

func (d *Device) keyevent(ctx context.Context, codes ...int) error {
	args := []string{"input", "keyevent"}
	for _, c := range codes {
		args = append(args, strconv.Itoa(c))
	}
	_, err := d.shell(ctx, args...)
	return err
}

// CaptureTree dumps the active window hierarchy.
func (d *Device) CaptureTree(ctx context.Context) (*schemas.UIElement, error) {
	out, err := d.adb(ctx, "exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return nil, fmt.Errorf("uiautomator dump failed: %w", err)
	}
	xmlText, err := extractHierarchy(string(out))
	if err != nil {
		// uiautomator reports an idle-state error when no window is focused.
		if strings.Contains(string(out), "ERROR") || strings.TrimSpace(string(out)) == "" {
			d.logger.Debug("No window hierarchy available", zap.String("output", strings.TrimSpace(string(out))))
			return nil, nil
		}
		return nil, err
	}
	return parseHierarchy(xmlText)
}

// DispatchGesture runs the strokes in order on a background goroutine, each
// starting no earlier than its start delay.
func (d *Device) DispatchGesture(ctx context.Context, g schemas.Gesture) (<-chan schemas.GestureStatus, error) {
	if len(g.Strokes) == 0 {
		return nil, fmt.Errorf("gesture %s has no strokes", g.Intent)
	}
	cmds := make([][]string, len(g.Strokes))
	for i, s := range g.Strokes {
		cmd, err := strokeCommand(g.Intent, s)
		if err != nil {
			return nil, err
		}
		cmds[i] = cmd
	}
	strokes := g.Strokes
	if g.Intent == schemas.KindDoubleTap {
		// One shell invocation, so process start-up cannot stretch the
		// gap between taps past the double-tap window.
		strokes, cmds = strokes[:1], [][]string{chainCommands(cmds)}
	}

	status := make(chan schemas.GestureStatus, 1)
	go func() {
		status <- d.runStrokes(ctx, strokes, cmds)
	}()
	return status, nil
}

func (d *Device) runStrokes(ctx context.Context, strokes []schemas.Stroke, cmds [][]string) schemas.GestureStatus {
	start := time.Now()
	for i, s := range strokes {
		if wait := s.StartDelay - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return schemas.GestureStatus{State: schemas.GestureCancelled, Err: ctx.Err()}
			case <-timer.C:
			}
		}
		if _, err := d.shell(ctx, cmds[i]...); err != nil {
			d.logger.Warn("Gesture stroke failed", zap.Int("stroke", i), zap.Error(err))
			return schemas.GestureStatus{State: schemas.GestureCancelled, Err: err}
		}
	}
	return schemas.GestureStatus{State: schemas.GestureCompleted}
}

// chainCommands joins shell commands with && so the device runs them in a
// single shell.
func chainCommands(cmds [][]string) []string {
	var chained []string
	for i, cmd := range cmds {
		if i > 0 {
			chained = append(chained, "&&")
		}
		chained = append(chained, cmd...)
	}
	return chained
}

// strokeCommand maps a stroke onto the closest `input` primitive.
func strokeCommand(intent schemas.ActionKind, s schemas.Stroke) ([]string, error) {
	if len(s.Path) == 0 {
		return nil, fmt.Errorf("stroke has an empty path")
	}
	from, to := s.Path[0], s.Path[len(s.Path)-1]
	ms := strconv.FormatInt(max(s.Duration.Milliseconds(), 1), 10)

	switch {
	case intent == schemas.KindDragAndDrop:
		return []string{"input", "draganddrop", itoa(from.X), itoa(from.Y), itoa(to.X), itoa(to.Y), ms}, nil
	case from == to && intent != schemas.KindLongTouch:
		return []string{"input", "tap", itoa(from.X), itoa(from.Y)}, nil
	default:
		return []string{"input", "swipe", itoa(from.X), itoa(from.Y), itoa(to.X), itoa(to.Y), ms}, nil
	}
}

// PerformAction applies an element action to a node from the last capture.
func (d *Device) PerformAction(ctx context.Context, el *schemas.UIElement, action schemas.ElementAction, args map[string]string) error {
	if el == nil {
		return fmt.Errorf("no element for %s", action)
	}
	switch action {
	case schemas.ElementFocus:
		c := el.Bounds.Center()
		_, err := d.shell(ctx, "input", "tap", itoa(c.X), itoa(c.Y))
		return err
	case schemas.ElementSetText:
		return d.setText(ctx, el, args[schemas.ArgText])
	case schemas.ElementSubmit:
		return d.keyevent(ctx, keyEnter)
	default:
		return fmt.Errorf("unsupported element action %q", action)
	}
}

// setText replaces the focused field's content. There is no direct way to set
// a value over adb, so the cursor is moved to the end and the existing
// characters are deleted before typing.
func (d *Device) setText(ctx context.Context, el *schemas.UIElement, text string) error {
	codes := []int{keyMoveEnd}
	for range len([]rune(el.Text)) {
		codes = append(codes, keyDelete)
	}
	if err := d.keyevent(ctx, codes...); err != nil {
		return fmt.Errorf("failed to clear field: %w", err)
	}
	if text == "" {
		return nil
	}
	_, err := d.shell(ctx, "input", "text", escapeInputText(text))
	return err
}

// escapeInputText encodes spaces the way `input text` expects and single
// quotes the result for the device shell.
func escapeInputText(text string) string {
	text = strings.ReplaceAll(text, " ", "%s")
	return "'" + strings.ReplaceAll(text, "'", `'\''`) + "'"
}

// InvokeGlobalAction sends the system key for action.
func (d *Device) InvokeGlobalAction(ctx context.Context, action schemas.GlobalAction) error {
	switch action {
	case schemas.GlobalBack:
		return d.keyevent(ctx, keyBack)
	case schemas.GlobalHome:
		return d.keyevent(ctx, keyHome)
	case schemas.GlobalRecentApps:
		return d.keyevent(ctx, keyAppSwitch)
	default:
		return fmt.Errorf("unsupported global action %q", action)
	}
}

// LaunchApplication starts packageID's launcher activity through monkey.
func (d *Device) LaunchApplication(ctx context.Context, packageID string) error {
	if !packageRegex.MatchString(packageID) {
		return fmt.Errorf("invalid package name %q", packageID)
	}
	out, err := d.shell(ctx, "monkey", "-p", packageID, "-c", launcherIntent, "1")
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w", packageID, err)
	}
	if strings.Contains(string(out), "No activities found") {
		return fmt.Errorf("package %s has no launchable activity", packageID)
	}
	d.logger.Info("Launched application", zap.String("package", packageID))
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }
