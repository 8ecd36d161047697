package device

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"iaa/internal/config"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

const testProbes = `
probes:
  home:
    points:
      - {x: 100, y: 100, color: "#ff0000"}
      - {x: 200, y: 150, color: "#00ff00"}
  button:
    tolerance: 4
    tap: {x: 640, y: 600}
    points:
      - {x: 600, y: 580, color: "#3366cc"}
`

func TestParseProbesErrors(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"no points": "probes:\n  a:\n    points: []\n",
		"bad color": "probes:\n  a:\n    points:\n      - {x: 1, y: 1, color: \"red\"}\n",
		"outside":   "probes:\n  a:\n    points:\n      - {x: 1280, y: 1, color: \"#ffffff\"}\n",
		"not yaml":  "probes: [",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseProbes([]byte(in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFindMatchesScaledScreens(t *testing.T) {
	t.Parallel()
	rec, err := ParseProbes([]byte(testProbes))
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.Names(); len(got) != 2 || got[0] != "button" {
		t.Fatalf("Names = %v", got)
	}

	for _, size := range []image.Point{{1280, 720}, {1920, 1080}} {
		img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		if _, ok := rec.Find(img, "home"); ok {
			t.Fatalf("%v: blank screen matched", size)
		}
		rec.Paint(img, "home")
		p, ok := rec.Find(img, "home")
		if !ok || p != (Point{X: 100, Y: 100}) {
			t.Fatalf("%v: Find(home) = %v, %v", size, p, ok)
		}
		if _, ok := rec.Find(img, "button"); ok {
			t.Fatalf("%v: unpainted probe matched", size)
		}
		rec.Paint(img, "button")
		if p, ok := rec.Find(img, "button"); !ok || p != (Point{X: 640, Y: 600}) {
			t.Fatalf("%v: Find(button) = %v, %v", size, p, ok)
		}
	}
	if _, ok := rec.Find(image.NewRGBA(image.Rect(0, 0, 10, 10)), "missing"); ok {
		t.Fatal("unknown probe matched")
	}
}

func TestBundledProbesLoad(t *testing.T) {
	t.Parallel()
	rec, err := LoadProbes(filepath.Join("..", "..", "assets", "probes.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Names()) == 0 {
		t.Fatal("no probes")
	}
}

type call struct{ args []string }

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	reply func(args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{args: args})
	f.mu.Unlock()
	return f.reply(args)
}

func (f *fakeRunner) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.args, " ")
	}
	return out
}

func TestADBCommands(t *testing.T) {
	t.Parallel()
	var png8 bytes.Buffer
	if err := png.Encode(&png8, image.NewRGBA(image.Rect(0, 0, 8, 4))); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{reply: func(args []string) ([]byte, error) {
		switch {
		case args[len(args)-1] == "window":
			return []byte("  mCurrentFocus=Window{1a2b u0 com.sega.pjsekai/com.unity3d.player.UnityPlayerActivity}\n"), nil
		case args[len(args)-1] == "-p":
			return png8.Bytes(), nil
		}
		return nil, nil
	}}
	a := &ADB{Serial: "emulator-5554", Runner: r}
	ctx := context.Background()

	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	_ = a.Tap(ctx, 10, 20)
	_ = a.Swipe(ctx, 1, 2, 3, 4, 0)
	_ = a.KeyEvent(ctx, "KEYCODE_HOME")
	_ = a.LaunchApp(ctx, "com.sega.pjsekai")
	pkg, err := a.CurrentPackage(ctx)
	if err != nil || pkg != "com.sega.pjsekai" {
		t.Fatalf("CurrentPackage = %q, %v", pkg, err)
	}
	img, err := a.Screenshot(ctx)
	if err != nil || img.Bounds().Dx() != 8 {
		t.Fatalf("Screenshot = %v, %v", img, err)
	}

	want := []string{
		"-s emulator-5554 shell input tap 10 20",
		"-s emulator-5554 shell input swipe 1 2 3 4 300",
		"-s emulator-5554 shell input keyevent KEYCODE_HOME",
		"-s emulator-5554 shell monkey -p com.sega.pjsekai -c android.intent.category.LAUNCHER 1",
		"-s emulator-5554 shell dumpsys window",
		"-s emulator-5554 exec-out screencap -p",
	}
	got := r.joined()
	if len(got) != len(want) {
		t.Fatalf("calls = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolveSerial(t *testing.T) {
	t.Parallel()
	if s, err := ResolveSerial(config.GameConfig{Emulator: config.EmulatorMuMu}); err != nil || s != "127.0.0.1:16384" {
		t.Fatalf("mumu = %q, %v", s, err)
	}
	if s, _ := ResolveSerial(config.GameConfig{Emulator: config.EmulatorMuMu, ADBSerial: " 10.0.0.2:5555 "}); s != "10.0.0.2:5555" {
		t.Fatalf("override = %q", s)
	}
	if _, err := ResolveSerial(config.GameConfig{Emulator: "other"}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("unknown emulator = %v", err)
	}
}

func TestPreparer(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "assets", "probes.yaml"), []byte(testProbes), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default("default")

	prepare := func(state string, connect string) (scheduler.Session, error) {
		r := &fakeRunner{reply: func(args []string) ([]byte, error) {
			switch {
			case args[0] == "connect":
				return []byte(connect), nil
			case args[len(args)-1] == "get-state":
				return []byte(state + "\n"), nil
			}
			return nil, nil
		}}
		p := &Preparer{Root: root, Config: func() *config.Config { return cfg }, Runner: r, Log: logx.Nop()}
		return p.Prepare(context.Background())
	}

	sess, err := prepare("device", "connected to 127.0.0.1:16384")
	if err != nil {
		t.Fatal(err)
	}
	ds, ok := sess.(*Session)
	if !ok || ds.Config != cfg || len(ds.Recognizer.Names()) != 2 {
		t.Fatalf("session = %#v", sess)
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := prepare("offline", "already connected to 127.0.0.1:16384"); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("offline = %v", err)
	}
	if _, err := prepare("device", "cannot connect to 127.0.0.1:16384"); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("connect failure = %v", err)
	}
}
