package ranking

import (
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/errorblob/internal/model"
)

func rec(id, errText string, age time.Duration, tags ...string) model.Record {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Record{ID: id, ErrorText: errText, FixText: "fix", Tags: tags, CreatedAt: base.Add(-age)}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("ModuleNotFoundError: No module named 'pandas'")
	want := []string{"modulenotfounderror", "module", "not", "found", "error", "no", "module", "named", "pandas"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestSplitCamelAcronym(t *testing.T) {
	got := splitCamel("HTTPError")
	want := []string{"http", "error"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitCamel = %v, want %v", got, want)
	}
}

func TestSplitCamelDigits(t *testing.T) {
	got := splitCamel("HTTP2Error")
	want := []string{"http", "2", "error"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitCamel = %v, want %v", got, want)
	}

	toks := Tokenize("utf8 decode failed")
	want = []string{"utf8", "utf", "8", "decode", "failed"}
	if !reflect.DeepEqual(toks, want) {
		t.Errorf("Tokenize = %v, want %v", toks, want)
	}
}

func TestScoreSubstringWithoutSharedTokenIsZero(t *testing.T) {
	r := rec("1", "KeyError: 'x'", 0)
	for _, q := range []string{"e", "yerr", "ror"} {
		if s := NewLexical().Score(q, r); s != 0 {
			t.Errorf("Score(%q) = %f, want 0", q, s)
		}
		if got := Top(NewLexical(), q, []model.Record{r}, 5); len(got) != 0 {
			t.Errorf("Top(%q) = %+v, want no matches", q, got)
		}
	}
}

func TestScorePandasRelevanceFloor(t *testing.T) {
	r := rec("1", "ModuleNotFoundError: No module named 'pandas'", 0)
	score := NewLexical().Score("pandas module not found", r)
	if score <= 0 {
		t.Fatalf("score = %f, want > 0", score)
	}
}

func TestScoreZeroOverlap(t *testing.T) {
	r := rec("1", "KeyError: 'x'", 0)
	if s := NewLexical().Score("segmentation fault", r); s != 0 {
		t.Errorf("score = %f, want 0", s)
	}
	if s := NewLexical().Score("  ", r); s != 0 {
		t.Errorf("empty query score = %f, want 0", s)
	}
}

func TestScoreContainmentBonus(t *testing.T) {
	r := rec("1", "connection refused on port 5432", 0)
	full := NewLexical().Score("connection refused", r)
	partial := NewLexical().Score("connection timeout", r)
	if full <= partial {
		t.Errorf("containment score %f should exceed partial overlap %f", full, partial)
	}
	if full < 0.99 {
		t.Errorf("full containment score = %f, want ~1.0", full)
	}
}

func TestScoreUsesTags(t *testing.T) {
	r := rec("1", "build failed", 0, "docker")
	if s := NewLexical().Score("docker", r); s <= 0 {
		t.Errorf("tag-only match score = %f, want > 0", s)
	}
}

func TestTopOrderingAndTies(t *testing.T) {
	recs := []model.Record{
		rec("1", "disk full", time.Hour),
		rec("2", "disk full", time.Minute),
		rec("3", "disk quota exceeded", 0),
		rec("4", "unrelated network error", 0),
	}

	got := Top(NewLexical(), "disk full", recs, 10)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	want := []string{"2", "1", "3"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Top ids = %v, want %v", ids, want)
	}
}

func TestTopLimitAndDeterminism(t *testing.T) {
	recs := []model.Record{
		rec("1", "panic: runtime error: index out of range", 0),
		rec("2", "panic: runtime error: nil map", 0),
		rec("3", "runtime error", 0),
	}
	first := Top(NewLexical(), "runtime error", recs, 2)
	second := Top(NewLexical(), "runtime error", recs, 2)
	if len(first) != 2 {
		t.Fatalf("len = %d, want 2", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ between calls: %v vs %v", first, second)
	}
}

func TestTopEmpty(t *testing.T) {
	if got := Top(NewLexical(), "anything", nil, 5); len(got) != 0 {
		t.Errorf("Top on empty = %v, want empty", got)
	}
}
