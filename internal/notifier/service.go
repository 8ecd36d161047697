package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rtsup "iaa/internal/runtime/supervisor"
	"iaa/internal/storage"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	n   Notification
	key string
}

// Service implements the queue + worker + rate limit + retry + dedup pipeline.
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	store storage.Store
	sinks []Sink

	cfg     Config
	limiter *rate.Limiter

	queue chan job
	sup   *rtsup.Supervisor

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds the service. store may be nil (dedup is then memory-only).
func New(cfg Config, log logx.Logger, store storage.Store, sinks ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log.With(logx.String("comp", "notifier")),
		store: store,
		sinks: sinks,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.Burst)
}

// AddSink registers another destination. Call before Start.
func (s *Service) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Start launches the worker. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled {
		return
	}
	q := make(chan job, s.cfg.QueueSize)
	s.queue = q
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("notifier.worker", func(c context.Context) error {
		return s.worker(c, q)
	})
}

// Stop closes the queue and waits (bounded by ctx) for pending messages.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	s.queue, s.sup = nil, nil
	s.mu.Unlock()
	if q == nil {
		return
	}
	close(q)
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
	}
}

// Notify enqueues n without blocking.
func (s *Service) Notify(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if s.queue == nil {
		return ErrStopped
	}
	key := n.Key
	if key == "" {
		key = dedupKey(n)
	}
	select {
	case s.queue <- job{n: n, key: key}:
		return nil
	default:
		s.log.Warn("notification dropped", logx.String("title", n.Title), logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
}

// ReportError adapts Notify to the scheduler's error callback. Task failures
// name the task; anything else is a run-level error.
func (s *Service) ReportError(err error) {
	if err == nil {
		return
	}
	title := "Run error"
	var te *scheduler.TaskError
	if errors.As(err, &te) {
		title = "Task failed: " + te.TaskName
	}
	if nerr := s.Notify(Notification{Level: LevelError, Title: title, Text: err.Error()}); nerr != nil && !errors.Is(nerr, ErrDisabled) {
		s.log.Debug("error notification not queued", logx.Err(nerr))
	}
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) worker(ctx context.Context, q <-chan job) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-q:
			if !ok {
				return nil
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	if cfg.DedupWindow > 0 && !s.dedupAllow(ctx, j.key, cfg.DedupWindow) {
		s.log.Debug("notification suppressed", logx.String("title", j.n.Title))
		return
	}
	if err := lim.Wait(ctx); err != nil {
		return
	}

	for _, sink := range sinks {
		var err error
		for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
			if attempt > 0 {
				t := time.NewTimer(cfg.RetryBase << (attempt - 1))
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = sink.Send(sctx, j.n)
			cancel()
			if err == nil {
				break
			}
		}
		if err != nil {
			s.log.Warn("notification send failed", logx.String("sink", sink.Name()), logx.Err(err))
		}
	}

	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Level: j.n.Level.String(), Title: j.n.Title, Text: j.n.Text})
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

func dedupKey(n Notification) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s|%s", n.Level, n.Title, n.Text)
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupAllow reports whether key may be sent now and opens a new window.
// The store (when present) carries windows across restarts.
func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = until
	s.dmu.Unlock()

	if s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		if err := s.store.PutDedup(cctx, key, until); err != nil {
			s.log.Debug("persist dedup failed", logx.Err(err))
		}
		cancel()
	}
	return true
}
