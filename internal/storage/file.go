package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kalambet/errorblob/internal/model"
	"github.com/kalambet/errorblob/internal/ranking"
)

const (
	fileFormatVersion  = 1
	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 25 * time.Millisecond
)

// fileDoc is the on-disk layout of the local store. LastID is the highest
// id ever assigned, so ids of deleted records are not handed out again.
type fileDoc struct {
	Version int            `json:"version"`
	LastID  int64          `json:"last_id"`
	Records []model.Record `json:"records"`
}

// FileStore keeps every record in a single JSON file. Each mutation is a
// read-modify-write under an exclusive lock on <path>.lock, and the new
// content replaces the file through a rename.
type FileStore struct {
	path        string
	lockTimeout time.Duration
	ranker      ranking.Ranker
	now         func() time.Time
	writeFile   func(path string, data []byte) error

	mu sync.Mutex
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLockTimeout bounds how long an operation waits for the file lock.
func WithLockTimeout(d time.Duration) FileOption {
	return func(s *FileStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithRanker replaces the default lexical ranker.
func WithRanker(r ranking.Ranker) FileOption {
	return func(s *FileStore) { s.ranker = r }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) FileOption {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore returns a store backed by path. The file is created on the
// first commit; a missing file reads as an empty collection.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:        path,
		lockTimeout: defaultLockTimeout,
		ranker:      ranking.NewLexical(),
		now:         time.Now,
		writeFile:   atomicWriteFile,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Commit appends a new record with the next unused id.
func (s *FileStore) Commit(ctx context.Context, d model.Draft) (model.Record, error) {
	if err := d.Validate(); err != nil {
		return model.Record{}, err
	}

	var rec model.Record
	err := s.mutate(ctx, "commit", func(doc *fileDoc) (bool, error) {
		id := nextID(doc)
		rec = model.NewRecord(strconv.FormatInt(id, 10), d, s.now())
		doc.LastID = id
		doc.Records = append(doc.Records, rec)
		return true, nil
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// Look returns up to limit records ranked against query.
func (s *FileStore) Look(ctx context.Context, query string, limit int) ([]model.Match, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", model.ErrInvalidArgument, limit)
	}
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Top(s.ranker, query, doc.Records, limit), nil
}

// List returns all records in insertion order.
func (s *FileStore) List(ctx context.Context) ([]model.Record, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Records, nil
}

// Delete removes the record with the given id and reports whether it existed.
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	want, err := parseID(id)
	if err != nil {
		return false, err
	}

	var removed bool
	err = s.mutate(ctx, "delete", func(doc *fileDoc) (bool, error) {
		for i, r := range doc.Records {
			n, _ := strconv.ParseInt(r.ID, 10, 64)
			if n != want {
				continue
			}
			doc.Records = append(doc.Records[:i:i], doc.Records[i+1:]...)
			removed = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Status reports the file path and exact record count.
func (s *FileStore) Status(ctx context.Context) (model.Status, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return model.Status{}, err
	}
	return model.Status{
		Kind:       model.KindLocal,
		Location:   s.path,
		Count:      len(doc.Records),
		CountKnown: true,
	}, nil
}

// Close is a no-op; nothing is held open between operations.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) snapshot(ctx context.Context) (*fileDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(filepath.Dir(s.path)); errors.Is(err, fs.ErrNotExist) {
		return emptyDoc(), nil
	}

	fl := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := fl.TryRLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		return nil, s.lockError(err)
	}
	defer fl.Unlock()

	return s.load()
}

// mutate runs fn on a fresh copy of the file under the exclusive lock and
// persists the result when fn reports a change. A failed write leaves the
// previous file in place.
func (s *FileStore) mutate(ctx context.Context, op string, fn func(doc *fileDoc) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return &model.StorageError{Op: "mkdir", Path: filepath.Dir(s.path), Err: err}
	}

	fl := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		return s.lockError(err)
	}
	defer fl.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}

	data, err := encodeDoc(doc)
	if err != nil {
		return &model.StorageError{Op: op, Path: s.path, Err: err}
	}
	if err := s.writeFile(s.path, data); err != nil {
		return &model.StorageError{Op: op, Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) load() (*fileDoc, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptyDoc(), nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "read", Path: s.path, Err: err}
	}
	doc, err := decodeDoc(data)
	if err != nil {
		return nil, &model.StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return doc, nil
}

func (s *FileStore) lockError(err error) error {
	if err == nil {
		err = fmt.Errorf("timed out after %s", s.lockTimeout)
	}
	return &model.StorageError{Op: "lock", Path: s.path + ".lock", Err: err}
}

func encodeDoc(doc *fileDoc) ([]byte, error) {
	doc.Version = fileFormatVersion
	if doc.Records == nil {
		doc.Records = []model.Record{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding records: %w", err)
	}
	return append(data, '\n'), nil
}

// decodeDoc accepts the versioned object layout or a bare array of records.
func decodeDoc(data []byte) (*fileDoc, error) {
	data = bytes.TrimSpace(data)
	doc := emptyDoc()
	if len(data) == 0 {
		return doc, nil
	}

	if data[0] == '[' {
		if err := json.Unmarshal(data, &doc.Records); err != nil {
			return nil, fmt.Errorf("parsing record list: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parsing store file: %w", err)
		}
		if doc.Version > fileFormatVersion {
			return nil, fmt.Errorf("unsupported store file version %d", doc.Version)
		}
	}

	seen := make(map[int64]struct{}, len(doc.Records))
	for i, r := range doc.Records {
		n, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("record %d has invalid id %q", i, r.ID)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate record id %q", r.ID)
		}
		seen[n] = struct{}{}
		if doc.Records[i].Tags == nil {
			doc.Records[i].Tags = []string{}
		}
	}
	if doc.Records == nil {
		doc.Records = []model.Record{}
	}
	return doc, nil
}

func emptyDoc() *fileDoc {
	return &fileDoc{Version: fileFormatVersion, Records: []model.Record{}}
}

func nextID(doc *fileDoc) int64 {
	hi := doc.LastID
	for _, r := range doc.Records {
		if n, err := strconv.ParseInt(r.ID, 10, 64); err == nil && n > hi {
			hi = n
		}
	}
	return hi + 1
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: malformed record id %q", model.ErrInvalidArgument, id)
	}
	return n, nil
}

// atomicWriteFile writes data to a temp file next to path, syncs it and
// renames it over path.
func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	committed = true
	return nil
}
