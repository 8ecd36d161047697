// Package device drives the emulator through plain adb invocations and
// recognizes screens with color probes.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrNoDevice = errors.New("no device")

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Device is what task bodies need from the emulator.
type Device interface {
	Screenshot(ctx context.Context) (image.Image, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error
	KeyEvent(ctx context.Context, code string) error
	CurrentPackage(ctx context.Context) (string, error)
	LaunchApp(ctx context.Context, pkg string) error
}

// ADB is a Device backed by the adb binary.
type ADB struct {
	Path   string
	Serial string
	Runner Runner
}

func (a *ADB) run(ctx context.Context, args ...string) ([]byte, error) {
	if a.Serial != "" {
		args = append([]string{"-s", a.Serial}, args...)
	}
	return a.raw(ctx, args...)
}

func (a *ADB) raw(ctx context.Context, args ...string) ([]byte, error) {
	r := a.Runner
	if r == nil {
		r = ExecRunner{}
	}
	path := a.Path
	if path == "" {
		path = "adb"
	}
	return r.Run(ctx, path, args...)
}

func (a *ADB) shell(ctx context.Context, args ...string) ([]byte, error) {
	return a.run(ctx, append([]string{"shell"}, args...)...)
}

// Connect attaches a TCP serial ("host:port"). Other serials are left alone.
func (a *ADB) Connect(ctx context.Context) error {
	if !strings.Contains(a.Serial, ":") {
		return nil
	}
	out, err := a.raw(ctx, "connect", a.Serial)
	if err != nil {
		return fmt.Errorf("adb connect %s: %w", a.Serial, err)
	}
	s := strings.ToLower(string(out))
	if !strings.Contains(s, "connected to") {
		return fmt.Errorf("%w: adb connect %s: %s", ErrNoDevice, a.Serial, strings.TrimSpace(string(out)))
	}
	return nil
}

// State returns the adb state ("device" when usable).
func (a *ADB) State(ctx context.Context) (string, error) {
	out, err := a.run(ctx, "get-state")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (a *ADB) Screenshot(ctx context.Context) (image.Image, error) {
	out, err := a.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, fmt.Errorf("screencap: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("screencap: decode: %w", err)
	}
	return img, nil
}

func (a *ADB) Tap(ctx context.Context, x, y int) error {
	_, err := a.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

func (a *ADB) Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	if d <= 0 {
		d = 300 * time.Millisecond
	}
	_, err := a.shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(d.Milliseconds(), 10))
	return err
}

func (a *ADB) KeyEvent(ctx context.Context, code string) error {
	_, err := a.shell(ctx, "input", "keyevent", code)
	return err
}

var focusRx = regexp.MustCompile(`mCurrentFocus=Window\{[^}]*?\s([\w.]+)/`)

func (a *ADB) CurrentPackage(ctx context.Context) (string, error) {
	out, err := a.shell(ctx, "dumpsys", "window")
	if err != nil {
		return "", err
	}
	m := focusRx.FindSubmatch(out)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

func (a *ADB) LaunchApp(ctx context.Context, pkg string) error {
	_, err := a.shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	return err
}
