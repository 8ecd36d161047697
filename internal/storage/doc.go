// Package storage persists what the automation did: finished runs, operator
// actions issued over Telegram, and notifier dedup state.
//
// Two backends share the Store interface: "file" (JSON Lines next to a path
// prefix) and "sqlite" (modernc.org/sqlite, no cgo).
package storage
