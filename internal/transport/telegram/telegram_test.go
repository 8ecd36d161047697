package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"iaa/internal/notifier"
	"iaa/internal/storage"
	"iaa/internal/task/registry"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

type fakeCtl struct {
	reg      *registry.Registry
	alive    bool
	starts   int
	stops    int
	manual   []string
	snapshot scheduler.Snapshot
}

func (f *fakeCtl) StartRegular(bool) { f.starts++ }
func (f *fakeCtl) Stop(bool)         { f.stops++ }
func (f *fakeCtl) Alive() bool       { return f.alive }

func (f *fakeCtl) RunManual(id string, _ bool) error {
	if _, ok := f.reg.Manual(id); !ok {
		return scheduler.ErrUnknownTask
	}
	f.manual = append(f.manual, id)
	return nil
}

func (f *fakeCtl) Snapshot() scheduler.Snapshot { return f.snapshot }
func (f *fakeCtl) Registry() *registry.Registry { return f.reg }

type auditStore struct {
	storage.Store
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (s *auditStore) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func newCommands(t *testing.T) (*Commands, *fakeCtl, *auditStore) {
	t.Helper()
	noop := func(context.Context) error { return nil }
	reg := registry.New()
	for _, tk := range []registry.Task{
		{ID: registry.StartGame, Name: "Start game", Run: noop},
		{ID: registry.CM, Name: "Watch ads", Run: noop},
	} {
		if err := reg.RegisterRegular(tk); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.RegisterManual(registry.Task{ID: registry.TenSongs, Name: "Ten songs", Run: noop}); err != nil {
		t.Fatal(err)
	}
	ctl := &fakeCtl{reg: reg}
	st := &auditStore{}
	cmds := &Commands{
		Ctl:        ctl,
		Enablement: scheduler.EnablementFunc(func(id string) bool { return id != "cm" }),
		Owners:     []int64{42},
		Store:      st,
		Log:        logx.Nop(),
	}
	return cmds, ctl, st
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in        string
		name, arg string
		ok        bool
	}{
		{"/status", "status", "", true},
		{"  /Manual@iaa_bot ten_songs ", "manual", "ten_songs", true},
		{"/run now please", "run", "now please", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tc := range cases {
		name, arg, ok := parseCommand(tc.in)
		if name != tc.name || arg != tc.arg || ok != tc.ok {
			t.Errorf("parseCommand(%q) = %q, %q, %v", tc.in, name, arg, ok)
		}
	}
}

func TestNonOwnerRejectedAndAudited(t *testing.T) {
	t.Parallel()
	cmds, ctl, st := newCommands(t)
	reply, err := cmds.Handle(context.Background(), Request{FromID: 7, Text: "/run"})
	if !errors.Is(err, ErrNotOwner) || reply != "" {
		t.Fatalf("Handle = %q, %v", reply, err)
	}
	if ctl.starts != 0 {
		t.Fatal("non-owner started a run")
	}
	if len(st.entries) != 1 || st.entries[0].OK || st.entries[0].Action != "run" {
		t.Fatalf("audit = %+v", st.entries)
	}
}

func TestRunAndStop(t *testing.T) {
	t.Parallel()
	cmds, ctl, st := newCommands(t)
	ctx := context.Background()
	owner := func(text string) string {
		reply, err := cmds.Handle(ctx, Request{FromID: 42, FromUsername: "op", Text: text})
		if err != nil {
			t.Fatalf("Handle(%q) = %v", text, err)
		}
		return reply
	}

	if r := owner("/stop"); !strings.Contains(r, "Nothing") || ctl.stops != 0 {
		t.Fatalf("stop while idle: %q stops=%d", r, ctl.stops)
	}
	owner("/run")
	if ctl.starts != 1 {
		t.Fatalf("starts = %d", ctl.starts)
	}
	ctl.alive = true
	if r := owner("/run"); !strings.Contains(r, "already") || ctl.starts != 1 {
		t.Fatalf("second run: %q starts=%d", r, ctl.starts)
	}
	owner("/stop")
	if ctl.stops != 1 {
		t.Fatalf("stops = %d", ctl.stops)
	}
	if len(st.entries) != 4 || st.entries[0].ActorUsername != "op" {
		t.Fatalf("audit = %+v", st.entries)
	}
}

func TestManual(t *testing.T) {
	t.Parallel()
	cmds, ctl, st := newCommands(t)
	ctx := context.Background()

	r, _ := cmds.Handle(ctx, Request{FromID: 42, Text: "/manual"})
	if !strings.HasPrefix(r, "Usage") {
		t.Fatalf("no arg reply = %q", r)
	}
	r, _ = cmds.Handle(ctx, Request{FromID: 42, Text: "/manual nope"})
	if !strings.Contains(r, "Cannot run nope") {
		t.Fatalf("unknown reply = %q", r)
	}
	r, _ = cmds.Handle(ctx, Request{FromID: 42, Text: "/manual ten_songs"})
	if !strings.Contains(r, "Ten songs") || len(ctl.manual) != 1 {
		t.Fatalf("manual reply = %q, calls = %v", r, ctl.manual)
	}
	last := st.entries[len(st.entries)-1]
	if !last.OK || last.Target != "ten_songs" {
		t.Fatalf("audit = %+v", last)
	}
	if prev := st.entries[len(st.entries)-2]; prev.OK || prev.Error == "" {
		t.Fatalf("failed manual audit = %+v", prev)
	}
}

func TestStatusAndTasks(t *testing.T) {
	t.Parallel()
	cmds, ctl, _ := newCommands(t)
	next := time.Date(2026, 1, 2, 5, 0, 0, 0, time.UTC)
	cmds.Next = func() time.Time { return next }
	ctl.snapshot = scheduler.Snapshot{
		State:       scheduler.Running,
		Tag:         "regular",
		CurrentTask: scheduler.CurrentTask{ID: "cm", Name: "Watch ads"},
		History: []scheduler.RunRecord{{
			Tag: "regular", Outcome: scheduler.OutcomeCompleted,
			Tasks: []scheduler.TaskResult{{Status: scheduler.TaskFailed}, {Status: scheduler.TaskOK}},
		}},
	}

	r, _ := cmds.Handle(context.Background(), Request{FromID: 42, Text: "/status"})
	for _, want := range []string{"Current: Watch ads", "Next scheduled: 2026-01-02 05:00", "1/2 failed"} {
		if !strings.Contains(r, want) {
			t.Errorf("status missing %q:\n%s", want, r)
		}
	}

	r, _ = cmds.Handle(context.Background(), Request{FromID: 42, Text: "/tasks"})
	for _, want := range []string{"Start game (start_game) [on]", "Watch ads (cm) [off]", "Ten songs (ten_songs)"} {
		if !strings.Contains(r, want) {
			t.Errorf("tasks missing %q:\n%s", want, r)
		}
	}
}

type fakeSender struct {
	mu   sync.Mutex
	to   []string
	text []string
	fail bool
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("boom")
	}
	f.to = append(f.to, to.Recipient())
	f.text = append(f.text, what.(string))
	return &tele.Message{}, nil
}

func TestSinkTargets(t *testing.T) {
	t.Parallel()
	n := notifier.Notification{Level: notifier.LevelError, Title: "Task failed", Text: "no ads"}

	owners := &fakeSender{}
	b := &Bot{cfg: Config{Owners: []int64{1, 2}}, out: owners}
	if err := b.Send(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(owners.to) != 2 || owners.to[1] != "2" || owners.text[0] != "[ERROR] Task failed\nno ads" {
		t.Fatalf("owners got %v %q", owners.to, owners.text)
	}

	chat := &fakeSender{}
	b = &Bot{cfg: Config{ChatID: -100, Owners: []int64{1}}, out: chat}
	_ = b.Send(context.Background(), n)
	if len(chat.to) != 1 || chat.to[0] != "-100" {
		t.Fatalf("chat got %v", chat.to)
	}

	b = &Bot{cfg: Config{}, out: &fakeSender{}}
	if err := b.Send(context.Background(), n); err == nil {
		t.Fatal("no targets should fail")
	}
	b = &Bot{cfg: Config{ChatID: 5}, out: &fakeSender{fail: true}}
	if err := b.Send(context.Background(), n); err == nil {
		t.Fatal("send failure not reported")
	}
}
