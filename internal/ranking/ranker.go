// Package ranking scores stored records against a free-text query for the
// local backends.
package ranking

import (
	"sort"
	"strings"

	"github.com/kalambet/errorblob/internal/model"
)

const (
	overlapWeight     = 0.7
	containmentWeight = 0.3
)

// Ranker scores a record's relevance to a query. Scores <= 0 mean
// "not relevant".
type Ranker interface {
	Score(query string, rec model.Record) float64
}

// Lexical ranks by token overlap between the query and the record's error
// text and tags, plus a bonus when one normalized text contains the other.
// A record sharing no token with the query scores 0 regardless of containment.
type Lexical struct{}

// NewLexical returns the default local ranker.
func NewLexical() Lexical { return Lexical{} }

func (Lexical) Score(query string, rec model.Record) float64 {
	q := tokenSet(Tokenize(query))
	if len(q) == 0 {
		return 0
	}

	target := Tokenize(rec.ErrorText)
	for _, tag := range rec.Tags {
		target = append(target, Tokenize(tag)...)
	}
	r := tokenSet(target)

	hits := 0
	for tok := range q {
		if _, ok := r[tok]; ok {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	overlap := float64(hits) / float64(len(q))

	var containment float64
	nq, ne := normalize(query), normalize(rec.ErrorText)
	if nq != "" && ne != "" && (strings.Contains(ne, nq) || strings.Contains(nq, ne)) {
		containment = 1
	}

	return overlapWeight*overlap + containmentWeight*containment
}

// Top scores every record, drops non-positive scores and returns at most
// limit matches, best first. Ties go to the newer record, then to the
// earlier position in recs.
func Top(r Ranker, query string, recs []model.Record, limit int) []model.Match {
	matches := make([]model.Match, 0, len(recs))
	for _, rec := range recs {
		s := r.Score(query, rec)
		if s <= 0 {
			continue
		}
		matches = append(matches, model.Match{Record: rec, Score: s})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
