package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"iaa/internal/eventbus"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

// LogSink writes notifications to the structured log. It is always
// installed so notifications are visible without a chat transport.
type LogSink struct {
	Log logx.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Send(_ context.Context, n Notification) error {
	fields := []logx.Field{logx.String("title", n.Title), logx.String("text", n.Text)}
	switch n.Level {
	case LevelError:
		s.Log.Error("notification", fields...)
	case LevelWarn:
		s.Log.Warn("notification", fields...)
	default:
		s.Log.Info("notification", fields...)
	}
	return nil
}

// RunSummary renders a finished run.
func RunSummary(rec scheduler.RunRecord) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s in %s", rec.Tag, rec.Outcome, rec.Finished.Sub(rec.Started).Round(time.Second))
	if rec.Error != "" {
		fmt.Fprintf(&b, "\n%s", rec.Error)
	}
	for _, t := range rec.Tasks {
		fmt.Fprintf(&b, "\n- %s: %s", t.Name, t.Status)
		if t.Error != "" {
			fmt.Fprintf(&b, " (%s)", t.Error)
		}
	}

	lvl := LevelInfo
	switch {
	case rec.Outcome == scheduler.OutcomePrepareFailed || rec.Outcome == scheduler.OutcomeCrashed:
		lvl = LevelError
	case rec.Failed() > 0 || rec.Outcome == scheduler.OutcomeInterrupted:
		lvl = LevelWarn
	}
	return Notification{Level: lvl, Title: "Run finished", Text: b.String(), Key: "run:" + rec.ID}
}

// WatchRuns turns run.finished events from ch into summary notifications
// until ctx is done or ch is closed. Subscribe before the first run starts.
// Events already buffered when ctx ends are still queued.
func (s *Service) WatchRuns(ctx context.Context, ch <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return ctx.Err()
					}
					s.summarize(ev)
				default:
					return ctx.Err()
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			s.summarize(ev)
		}
	}
}

func (s *Service) summarize(ev eventbus.Event) {
	if ev.Type != eventbus.RunFinished {
		return
	}
	re, ok := ev.Data.(scheduler.RunEvent)
	if !ok || re.Record == nil || re.Record.Outcome == scheduler.OutcomeEmpty {
		return
	}
	if err := s.Notify(RunSummary(*re.Record)); err != nil && !errors.Is(err, ErrDisabled) {
		s.log.Debug("run summary not queued", logx.Err(err))
	}
}
