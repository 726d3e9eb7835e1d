package remote

import (
	"hash/fnv"
	"sort"
	"strings"

	"github.com/kalambet/errorblob/internal/model"
	"github.com/kalambet/errorblob/internal/ranking"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "to": {}, "was": {}, "with": {},
}

// sparseVector encodes text as term frequencies keyed by a 32-bit hash of
// each token. The service applies IDF, which turns dot-product scoring of
// these vectors into BM25-style ranking. Indices are sorted and unique.
func sparseVector(text string) ([]uint32, []float32) {
	counts := make(map[uint32]float32)
	for _, tok := range ranking.Tokenize(text) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		counts[h.Sum32()]++
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = counts[idx]
	}
	return indices, values
}

// indexText is the text a record is searchable by: error, fix and tags.
func indexText(r model.Record) string {
	parts := []string{r.ErrorText, r.FixText}
	parts = append(parts, r.Tags...)
	return strings.Join(parts, " ")
}
