package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is one stored error/fix pair. Records are immutable once committed.
type Record struct {
	ID        string    `json:"id"`
	ErrorText string    `json:"error_text"`
	FixText   string    `json:"fix_text"`
	Tags      []string  `json:"tags"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the caller-supplied part of a new record. The store assigns
// ID and CreatedAt.
type Draft struct {
	ErrorText string
	FixText   string
	Tags      []string
	Author    string
}

// Match is a record returned by a relevance query. Higher scores rank first.
type Match struct {
	Record
	Score float64 `json:"score"`
}

// Validate reports ErrInvalidArgument when the error or fix text is blank.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.ErrorText) == "" {
		return fmt.Errorf("%w: error text is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(d.FixText) == "" {
		return fmt.Errorf("%w: fix text is required", ErrInvalidArgument)
	}
	return nil
}

// NewRecord builds a record from a validated draft.
func NewRecord(id string, d Draft, createdAt time.Time) Record {
	return Record{
		ID:        id,
		ErrorText: strings.TrimSpace(d.ErrorText),
		FixText:   strings.TrimSpace(d.FixText),
		Tags:      NormalizeTags(d.Tags),
		Author:    strings.TrimSpace(d.Author),
		CreatedAt: createdAt.UTC(),
	}
}

// NormalizeTags trims, drops empties, dedupes and sorts. Never returns nil.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SplitTags parses a comma-separated tag list as typed on the command line.
func SplitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(s, ","))
}
