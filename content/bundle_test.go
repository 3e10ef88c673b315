package content

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"winequiz/store"
)

const sampleBundle = `{
  "vocab": [{"for_date": "2026-03-04", "term": "Malolactic", "definition": "Secondary fermentation",
             "options": ["Yeast", "Bacteria"], "correct_index": 1, "points_award": 5}],
  "trial_quizzes": [{"for_date": "2026-03-04", "locale": "en", "title": "Basics",
                     "questions": [{"q": "Rosé colour comes from?"}], "points_award": 2}],
  "swirdle": [{"for_date": "2026-03-04", "word": "CUVEE", "hint": "A blend", "points_award": 6}],
  "guess_what": [{"week_start": "2026-03-02", "clues": ["White", "Loire"],
                  "options": ["Chenin Blanc", "Riesling"], "correct_index": 0, "points_award": 10}],
  "badges": [{"code": "first_100", "name": "Centurion", "tier": "bronze", "rule": "total_points", "threshold": 100}]
}`

func TestLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		b, err := Decode(strings.NewReader(sampleBundle))
		if err != nil {
			t.Fatal(err)
		}
		sum, err := Load(ctx, db, b)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if *sum != (Summary{Vocab: 1, TrialQuizzes: 1, Swirdle: 1, GuessWhat: 1, Badges: 1}) {
			t.Fatalf("unexpected summary %+v", sum)
		}
	}

	v, err := db.GetVocabForDate(ctx, "2026-03-04")
	if err != nil || v == nil || v.CorrectIndex != 1 {
		t.Fatalf("vocab = %+v, %v", v, err)
	}
	badges, err := db.ListBadges(ctx)
	if err != nil || len(badges) != 1 {
		t.Fatalf("badges = %v, %v", badges, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		b    Bundle
	}{
		{"bad date", Bundle{Swirdle: []store.SwirdleWord{{ForDate: "04/03/2026", Word: "CUVEE"}}}},
		{"index out of range", Bundle{Vocab: []VocabItem{{ForDate: "2026-03-04", Term: "x", Options: []string{"a", "b"}, CorrectIndex: 2}}}},
		{"week not monday", Bundle{GuessWhat: []GuessWhatItem{{WeekStart: "2026-03-04", Options: []string{"a", "b"}}}}},
		{"badge without rule", Bundle{Badges: []store.Badge{{Code: "x"}}}},
		{"quiz without questions", Bundle{TrialQuizzes: []store.TrialQuiz{{ForDate: "2026-03-04"}}}},
		{"quiz questions not a list", Bundle{TrialQuizzes: []store.TrialQuiz{{ForDate: "2026-03-04", Questions: json.RawMessage(`{"q":"x"}`)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.b.Validate(); !errors.Is(err, ErrInvalidBundle) {
				t.Fatalf("expected ErrInvalidBundle, got %v", err)
			}
		})
	}

	if _, err := Decode(strings.NewReader(`{"wines": []}`)); !errors.Is(err, ErrInvalidBundle) {
		t.Fatalf("unknown field should be rejected, got %v", err)
	}
}
