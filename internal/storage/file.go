package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

// fileStore keeps everything in append-only files next to a path prefix:
//   - <prefix>.runs.jsonl
//   - <prefix>.audit.jsonl
//   - <prefix>.dedup.snapshot.json + <prefix>.dedup.journal.jsonl
//
// The dedup journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsPath  string
	runsFile  *os.File
	auditFile *os.File

	dedupSnapshotPath string
	dedupJournalFile  *os.File
	dedup             map[string]int64 // unix milli
	dedupWrites       int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

const compactEvery = 500

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:               log,
		runsPath:          prefix + ".runs.jsonl",
		dedupSnapshotPath: prefix + ".dedup.snapshot.json",
		dedup:             map[string]int64{},
	}
	journalPath := prefix + ".dedup.journal.jsonl"
	_ = loadDedupSnapshot(s.dedupSnapshotPath, s.dedup)
	_ = replayDedupJournal(journalPath, s.dedup)
	pruneExpiredDedup(s.dedup)

	var err error
	open := func(p string) *os.File {
		if err != nil {
			return nil
		}
		var f *os.File
		f, err = os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		return f
	}
	s.runsFile = open(s.runsPath)
	s.auditFile = open(prefix + ".audit.jsonl")
	s.dedupJournalFile = open(journalPath)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, f := range []**os.File{&s.runsFile, &s.auditFile, &s.dedupJournalFile} {
		if *f != nil {
			errs = append(errs, (*f).Close())
			*f = nil
		}
	}
	return errors.Join(errs...)
}

func (s *fileStore) appendLocked(f *os.File, v any) error {
	if f == nil {
		return ErrClosed
	}
	return json.NewEncoder(f).Encode(v)
}

func (s *fileStore) AppendRun(_ context.Context, rec scheduler.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(s.runsFile, rec)
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]scheduler.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil, ErrClosed
	}
	f, err := os.Open(s.runsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		order []string
		byID  = map[string]scheduler.RunRecord{}
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec scheduler.RunRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil || rec.ID == "" {
			s.log.Debug("skip malformed run line", logx.Err(err))
			continue
		}
		if _, seen := byID[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		byID[rec.ID] = rec
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]scheduler.RunRecord, 0, min(len(order), max(limit, 0)))
	for i := len(order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, byID[order[i]])
	}
	return out, nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(s.auditFile, e)
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(s.dedupJournalFile, dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.dedup[key] = ms
	s.dedupWrites++
	if s.dedupWrites%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// compactLocked writes the live dedup map to the snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	pruneExpiredDedup(s.dedup)

	tmp := s.dedupSnapshotPath + ".tmp"
	b, err := json.Marshal(s.dedup)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.dedupSnapshotPath); err != nil {
		return err
	}
	return s.dedupJournalFile.Truncate(0)
}

func loadDedupSnapshot(path string, out map[string]int64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]int64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayDedupJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r dedupRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
