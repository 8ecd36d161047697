package app

import (
	"context"
	"time"

	"iaa/internal/eventbus"
	"iaa/internal/storage"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

// recordRuns stores every finished run from ch. Events already buffered when
// ctx ends are still written, so a one-shot run is never lost on exit.
func recordRuns(ctx context.Context, ch <-chan eventbus.Event, store storage.Store, log logx.Logger) error {
	save := func(ev eventbus.Event) {
		if ev.Type != eventbus.RunFinished {
			return
		}
		re, ok := ev.Data.(scheduler.RunEvent)
		if !ok || re.Record == nil || re.Record.Outcome == scheduler.OutcomeEmpty {
			return
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := store.AppendRun(wctx, *re.Record); err != nil {
			log.Warn("run not recorded", logx.String("run", re.Record.ID), logx.Err(err))
			return
		}
		log.Debug("run recorded", logx.String("run", re.Record.ID), logx.String("outcome", string(re.Record.Outcome)))
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					save(ev)
				default:
					return nil
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			save(ev)
		}
	}
}
