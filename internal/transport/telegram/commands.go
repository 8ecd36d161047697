// Package telegram exposes the scheduler over a Telegram bot: owners can
// start, stop and inspect runs, and notifications are delivered to a chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"iaa/internal/storage"
	"iaa/internal/task/registry"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

var ErrNotOwner = errors.New("not an owner")

// Controller is the part of the scheduler the command surface drives.
type Controller interface {
	StartRegular(runInThread bool)
	RunManual(id string, runInThread bool) error
	Stop(block bool)
	Alive() bool
	Snapshot() scheduler.Snapshot
	Registry() *registry.Registry
}

// Request is one incoming command message.
type Request struct {
	FromID       int64
	FromUsername string
	Text         string
}

// Commands maps chat commands to scheduler operations. It holds no Telegram
// types so it can be exercised without a bot.
type Commands struct {
	Ctl        Controller
	Enablement scheduler.Enablement
	Owners     []int64
	Store      storage.Store
	Log        logx.Logger
	// Next reports the next cron fire time; optional.
	Next func() time.Time
}

// Handle executes req and returns the reply text. An empty reply with a nil
// error means the message was not a command.
func (c *Commands) Handle(ctx context.Context, req Request) (string, error) {
	name, arg, ok := parseCommand(req.Text)
	if !ok {
		return "", nil
	}
	log := c.Log.With(logx.String("cmd", name), logx.Int64("from", req.FromID))

	if !slices.Contains(c.Owners, req.FromID) {
		log.Warn("command from non-owner ignored")
		c.audit(ctx, req, name, arg, ErrNotOwner)
		return "", ErrNotOwner
	}

	var (
		reply string
		err   error
	)
	switch name {
	case "start", "help":
		reply = helpText
	case "status":
		reply = c.status()
	case "tasks":
		reply = c.tasks()
	case "run":
		if c.Ctl.Alive() {
			reply = "A run is already active."
			break
		}
		c.Ctl.StartRegular(true)
		reply = "Regular run started."
	case "stop":
		if !c.Ctl.Alive() {
			reply = "Nothing is running."
			break
		}
		c.Ctl.Stop(false)
		reply = "Stop requested. The current task stops at its next check."
	case "manual":
		if arg == "" {
			reply = "Usage: /manual <task id>"
			break
		}
		if c.Ctl.Alive() {
			reply = "A run is already active."
			break
		}
		if err = c.Ctl.RunManual(arg, true); err != nil {
			reply = fmt.Sprintf("Cannot run %s: %v", arg, err)
			break
		}
		reply = fmt.Sprintf("Manual task %s started.", c.Ctl.Registry().NameFromID(arg))
	default:
		reply = "Unknown command. Send /help."
	}

	if name != "start" && name != "help" {
		c.audit(ctx, req, name, arg, err)
	}
	log.Info("command handled", logx.Bool("ok", err == nil))
	return reply, nil
}

const helpText = `Commands:
/status - scheduler state and last runs
/tasks - registered tasks
/run - start a regular run
/stop - stop the active run
/manual <id> - run a manual task`

func (c *Commands) status() string {
	snap := c.Ctl.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s", snap.State)
	if snap.Tag != "" {
		fmt.Fprintf(&b, " (%s)", snap.Tag)
	}
	if snap.CurrentTask.ID != "" {
		fmt.Fprintf(&b, "\nCurrent: %s", snap.CurrentTask.Name)
	}
	if c.Next != nil {
		if next := c.Next(); !next.IsZero() {
			fmt.Fprintf(&b, "\nNext scheduled: %s", next.Format("2006-01-02 15:04 MST"))
		}
	}
	hist := snap.History
	if len(hist) > 3 {
		hist = hist[len(hist)-3:]
	}
	for i := len(hist) - 1; i >= 0; i-- {
		r := hist[i]
		fmt.Fprintf(&b, "\n%s %s: %s, %d/%d failed", r.Finished.Format("01-02 15:04"), r.Tag, r.Outcome, r.Failed(), len(r.Tasks))
	}
	return b.String()
}

func (c *Commands) tasks() string {
	reg := c.Ctl.Registry()
	var b strings.Builder
	b.WriteString("Regular:")
	for _, t := range reg.Regular() {
		mark := "on"
		if c.Enablement != nil && !c.Enablement.IsEnabled(t.ID.String()) {
			mark = "off"
		}
		fmt.Fprintf(&b, "\n- %s (%s) [%s]", t.Name, t.ID, mark)
	}
	b.WriteString("\nManual:")
	for _, t := range reg.ManualTasks() {
		fmt.Fprintf(&b, "\n- %s (%s)", t.Name, t.ID)
	}
	return b.String()
}

func (c *Commands) audit(ctx context.Context, req Request, action, target string, err error) {
	if c.Store == nil {
		return
	}
	e := storage.AuditEntry{
		At:            time.Now(),
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		Action:        action,
		Target:        target,
		OK:            err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	actx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if aerr := c.Store.AppendAudit(actx, e); aerr != nil {
		c.Log.Warn("audit write failed", logx.Err(aerr))
	}
}

// parseCommand splits "/cmd@bot arg" into ("cmd", "arg").
func parseCommand(text string) (name, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	head = strings.ToLower(strings.TrimSpace(head))
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}
