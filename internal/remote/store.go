package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/errorblob/internal/model"
)

const defaultTimeout = 10 * time.Second

// Store adapts a Service to the error database contract. Each call is a
// live round trip bounded by the configured timeout; nothing is cached.
type Store struct {
	svc       Service
	namespace string
	timeout   time.Duration
	now       func() time.Time
}

// NewStore wraps svc. A non-positive timeout selects the default.
func NewStore(svc Service, namespace string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{svc: svc, namespace: namespace, timeout: timeout, now: time.Now}
}

func (s *Store) Commit(ctx context.Context, d model.Draft) (model.Record, error) {
	if err := d.Validate(); err != nil {
		return model.Record{}, err
	}
	rec := model.NewRecord("", d, s.now())

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.svc.Upsert(ctx, rec)
	if err != nil {
		return model.Record{}, wrapError("commit", err)
	}
	rec.ID = id
	return rec, nil
}

func (s *Store) Look(ctx context.Context, query string, limit int) ([]model.Match, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", model.ErrInvalidArgument, limit)
	}

	if strings.TrimSpace(query) == "" {
		return []model.Match{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	matches, err := s.svc.Query(ctx, query, limit)
	if err != nil {
		return nil, wrapError("look", err)
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []model.Match{}
	}
	return matches, nil
}

func (s *Store) List(ctx context.Context) ([]model.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recs, err := s.svc.List(ctx)
	if err != nil {
		return nil, wrapError("list", err)
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return recs, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("%w: record id is required", model.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.svc.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrInvalidArgument) {
			return false, err
		}
		return false, wrapError("delete", err)
	}
	return ok, nil
}

// Status never fails on a count error: the count is reported unknown.
func (s *Store) Status(ctx context.Context) (model.Status, error) {
	st := model.Status{Kind: model.KindRemote, Location: s.namespace}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.svc.Count(ctx)
	if err != nil {
		slog.Warn("could not count remote records", "namespace", s.namespace, "error", err)
		return st, nil
	}
	st.Count = n
	st.CountKnown = true
	return st, nil
}

func (s *Store) Close() error {
	return s.svc.Close()
}
