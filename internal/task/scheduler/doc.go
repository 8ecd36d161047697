// Package scheduler runs registered tasks on a single worker.
//
// A run is either regular (every enabled regular task, in registry order) or
// manual (one manual task). At most one run is alive at a time. The run
// procedure is:
//   - prepare the device session on the worker
//   - snapshot the task list
//   - execute tasks sequentially; a failing task is reported via OnError and
//     the run continues, an interrupted task ends the run
//   - reset every state flag and clear the interrupt signal
//
// State readers (Running, IsStarting, IsStopping, CurrentTaskID, ...) are safe
// to call from any goroutine. Lifecycle changes are also published on the
// event bus for observers that prefer push over polling.
package scheduler
