package notifier

import (
	"context"
	"time"
)

type Config struct {
	Enabled     bool
	RatePerSec  float64
	Burst       int
	QueueSize   int
	RetryMax    int
	RetryBase   time.Duration
	DedupWindow time.Duration
}

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

type Notification struct {
	Level Level
	Title string
	Text  string
	// Key overrides the dedup key (default: hash of level, title and text).
	Key string
}

// Sink delivers a notification to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Level string    `json:"level"`
	Title string    `json:"title"`
	Text  string    `json:"text"`
}
