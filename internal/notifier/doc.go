// Package notifier delivers short operator messages: task failures reported
// by the scheduler's error callback and end-of-run summaries.
//
// Notify only enqueues. One worker drains the queue, waits on a token bucket
// (golang.org/x/time/rate), suppresses repeats inside a dedup window and fans
// the message out to every Sink (console log, Telegram). A failing sink is
// retried with backoff and never blocks the scheduler.
package notifier
