package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/kalambet/errorblob/internal/model"
)

var ctx = context.Background()

func newTestFileStore(t *testing.T, opts ...FileOption) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "errorblob", "errors.json")
	return NewFileStore(path, opts...)
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func mustCommit(t *testing.T, s *FileStore, errText, fix string, tags ...string) model.Record {
	t.Helper()
	rec, err := s.Commit(ctx, model.Draft{ErrorText: errText, FixText: fix, Tags: tags})
	if err != nil {
		t.Fatalf("Commit(%q): %v", errText, err)
	}
	return rec
}

func TestFileStore_CommitThenList(t *testing.T) {
	s := newTestFileStore(t)

	rec := mustCommit(t, s, "KeyError: 'x'", "Check dict before access", "python")

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ID != "1" || rec.ID != "1" {
		t.Errorf("ID = %q (returned %q), want 1", got.ID, rec.ID)
	}
	if got.ErrorText != "KeyError: 'x'" || got.FixText != "Check dict before access" {
		t.Errorf("unexpected texts: %+v", got)
	}
	if !reflect.DeepEqual(got.Tags, []string{"python"}) {
		t.Errorf("Tags = %v, want [python]", got.Tags)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestFileStore_CommitRejectsEmptyText(t *testing.T) {
	s := newTestFileStore(t)

	_, err := s.Commit(ctx, model.Draft{ErrorText: "", FixText: "fix"})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("Commit = %v, want ErrInvalidArgument", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("store file should not be created on rejected commit, stat err = %v", err)
	}
}

func TestFileStore_IDsMonotonicAcrossDeletes(t *testing.T) {
	s := newTestFileStore(t)

	var last int64
	check := func(rec model.Record) {
		t.Helper()
		n, err := strconv.ParseInt(rec.ID, 10, 64)
		if err != nil {
			t.Fatalf("non-numeric id %q", rec.ID)
		}
		if n <= last {
			t.Fatalf("id %d not greater than previous %d", n, last)
		}
		last = n
	}

	check(mustCommit(t, s, "a", "fix"))
	check(mustCommit(t, s, "b", "fix"))
	third := mustCommit(t, s, "c", "fix")
	check(third)

	// Deleting the highest id must not free it for reuse.
	if ok, err := s.Delete(ctx, third.ID); err != nil || !ok {
		t.Fatalf("Delete(%s) = %v, %v", third.ID, ok, err)
	}
	check(mustCommit(t, s, "d", "fix"))

	if ok, err := s.Delete(ctx, "1"); err != nil || !ok {
		t.Fatalf("Delete(1) = %v, %v", ok, err)
	}
	check(mustCommit(t, s, "e", "fix"))

	// A fresh store instance on the same file continues the sequence.
	reopened := NewFileStore(s.Path())
	rec, err := reopened.Commit(ctx, model.Draft{ErrorText: "f", FixText: "fix"})
	if err != nil {
		t.Fatalf("Commit after reopen: %v", err)
	}
	check(rec)
}

func TestFileStore_DeleteScenario(t *testing.T) {
	s := newTestFileStore(t)
	rec := mustCommit(t, s, "boom", "fix")

	ok, err := s.Delete(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("first Delete = %v, %v; want true, nil", ok, err)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty list, got %d records", len(records))
	}

	ok, err = s.Delete(ctx, rec.ID)
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v; want false, nil", ok, err)
	}
}

func TestFileStore_DeleteMalformedID(t *testing.T) {
	s := newTestFileStore(t)
	for _, id := range []string{"", "abc", "-1", "0", "1.5"} {
		if _, err := s.Delete(ctx, id); !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("Delete(%q) = %v, want ErrInvalidArgument", id, err)
		}
	}
}

func TestFileStore_AtomicityUnderWriteFailure(t *testing.T) {
	s := newTestFileStore(t)
	mustCommit(t, s, "first", "fix one")
	mustCommit(t, s, "second", "fix two")

	before, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	rawBefore, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("reading store file: %v", err)
	}

	s.writeFile = func(string, []byte) error { return errors.New("no space left on device") }

	if _, err := s.Commit(ctx, model.Draft{ErrorText: "third", FixText: "fix"}); !errors.Is(err, model.ErrStorage) {
		t.Fatalf("Commit with failing write = %v, want ErrStorage", err)
	}
	if _, err := s.Delete(ctx, "1"); !errors.Is(err, model.ErrStorage) {
		t.Fatalf("Delete with failing write = %v, want ErrStorage", err)
	}

	after, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List after failures: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("visible state changed after failed writes:\nbefore %+v\nafter  %+v", before, after)
	}
	rawAfter, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("reading store file: %v", err)
	}
	if string(rawBefore) != string(rawAfter) {
		t.Error("store file changed after failed writes")
	}

	// The failed commit must not have consumed an id.
	s.writeFile = atomicWriteFile
	rec := mustCommit(t, s, "third", "fix")
	if rec.ID != "3" {
		t.Errorf("ID after failed commit = %q, want 3", rec.ID)
	}
}

func TestFileStore_LookLimitValidation(t *testing.T) {
	s := newTestFileStore(t)
	for _, limit := range []int{0, -1} {
		if _, err := s.Look(ctx, "anything", limit); !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("Look(limit=%d) = %v, want ErrInvalidArgument", limit, err)
		}
	}
}

func TestFileStore_LookEmptyStore(t *testing.T) {
	s := newTestFileStore(t)
	got, err := s.Look(ctx, "anything at all", 5)
	if err != nil {
		t.Fatalf("Look on empty store: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}

func TestFileStore_LookExcludesZeroOverlap(t *testing.T) {
	s := newTestFileStore(t)
	mustCommit(t, s, "KeyError: 'x'", "check the dict first")

	for _, q := range []string{"e", "yerr", "ror", "   "} {
		got, err := s.Look(ctx, q, 5)
		if err != nil {
			t.Fatalf("Look(%q): %v", q, err)
		}
		if len(got) != 0 {
			t.Errorf("Look(%q) = %+v, want no matches", q, got)
		}
	}
}

func TestFileStore_LookRelevanceAndDeterminism(t *testing.T) {
	s := newTestFileStore(t, WithClock(fixedClock()))
	mustCommit(t, s, "KeyError: 'x'", "check dict")
	pandas := mustCommit(t, s, "ModuleNotFoundError: No module named 'pandas'", "pip install pandas", "python")
	mustCommit(t, s, "segmentation fault (core dumped)", "check pointers")

	first, err := s.Look(ctx, "pandas module not found", 5)
	if err != nil {
		t.Fatalf("Look: %v", err)
	}
	if len(first) == 0 || first[0].ID != pandas.ID {
		t.Fatalf("expected pandas record first, got %+v", first)
	}
	if first[0].Score <= 0 {
		t.Errorf("score = %f, want > 0", first[0].Score)
	}

	second, err := s.Look(ctx, "pandas module not found", 5)
	if err != nil {
		t.Fatalf("Look: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Look not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	base := time.Date(2025, 2, 3, 4, 5, 6, 789000000, time.UTC)
	doc := &fileDoc{
		LastID: 9,
		Records: []model.Record{
			{ID: "2", ErrorText: "err two", FixText: "fix two", Tags: []string{"a", "b"}, CreatedAt: base},
			{ID: "5", ErrorText: "err five", FixText: "fix five", Tags: []string{}, Author: "dana", CreatedAt: base.Add(time.Hour)},
		},
	}

	data, err := encodeDoc(doc)
	if err != nil {
		t.Fatalf("encodeDoc: %v", err)
	}
	got, err := decodeDoc(data)
	if err != nil {
		t.Fatalf("decodeDoc: %v", err)
	}

	if got.LastID != doc.LastID {
		t.Errorf("LastID = %d, want %d", got.LastID, doc.LastID)
	}
	if len(got.Records) != len(doc.Records) {
		t.Fatalf("record count = %d, want %d", len(got.Records), len(doc.Records))
	}
	for i := range doc.Records {
		w, g := doc.Records[i], got.Records[i]
		if g.ID != w.ID || g.ErrorText != w.ErrorText || g.FixText != w.FixText || g.Author != w.Author {
			t.Errorf("record %d = %+v, want %+v", i, g, w)
		}
		if !reflect.DeepEqual(g.Tags, w.Tags) {
			t.Errorf("record %d tags = %v, want %v", i, g.Tags, w.Tags)
		}
		if !g.CreatedAt.Equal(w.CreatedAt) {
			t.Errorf("record %d created_at = %v, want %v", i, g.CreatedAt, w.CreatedAt)
		}
	}
}

func TestFileStore_ReadsBareArray(t *testing.T) {
	s := newTestFileStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o700); err != nil {
		t.Fatal(err)
	}
	legacy := `[{"id":"4","error_text":"old error","fix_text":"old fix","tags":null,"created_at":"2024-01-01T00:00:00Z"}]`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].ID != "4" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Tags == nil {
		t.Error("nil tags should be normalized to empty")
	}

	rec := mustCommit(t, s, "new error", "new fix")
	if rec.ID != "5" {
		t.Errorf("next ID = %q, want 5", rec.ID)
	}
}

func TestFileStore_CorruptFileSurfaced(t *testing.T) {
	s := newTestFileStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte(`{"records": [ {"id": `), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.List(ctx); !errors.Is(err, model.ErrStorage) {
		t.Errorf("List on corrupt file = %v, want ErrStorage", err)
	}
	if _, err := s.Commit(ctx, model.Draft{ErrorText: "e", FixText: "f"}); !errors.Is(err, model.ErrStorage) {
		t.Errorf("Commit on corrupt file = %v, want ErrStorage", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"records": [ {"id": ` {
		t.Error("corrupt file must not be rewritten")
	}
}

func TestFileStore_DuplicateIDsAreCorrupt(t *testing.T) {
	_, err := decodeDoc([]byte(`{"version":1,"records":[{"id":"1","error_text":"a","fix_text":"b"},{"id":"1","error_text":"c","fix_text":"d"}]}`))
	if err == nil {
		t.Fatal("expected error for duplicate ids")
	}
}

func TestFileStore_LockTimeout(t *testing.T) {
	s := newTestFileStore(t, WithLockTimeout(100*time.Millisecond))
	mustCommit(t, s, "e", "f")

	other := flock.New(s.Path() + ".lock")
	if err := other.Lock(); err != nil {
		t.Fatalf("acquiring competing lock: %v", err)
	}
	defer other.Unlock()

	start := time.Now()
	_, err := s.Commit(ctx, model.Draft{ErrorText: "blocked", FixText: "fix"})
	if !errors.Is(err, model.ErrStorage) {
		t.Fatalf("Commit under held lock = %v, want ErrStorage", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("lock wait took %v, want it bounded by the timeout", elapsed)
	}
}

func TestFileStore_Status(t *testing.T) {
	s := newTestFileStore(t)

	st, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Kind != model.KindLocal || st.Location != s.Path() || st.Count != 0 || !st.CountKnown {
		t.Errorf("unexpected empty status: %+v", st)
	}

	mustCommit(t, s, "a", "b")
	mustCommit(t, s, "c", "d")
	st, err = s.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Count != 2 {
		t.Errorf("Count = %d, want 2", st.Count)
	}
}
