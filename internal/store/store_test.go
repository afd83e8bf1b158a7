package store

import (
	"testing"
	"time"

	"github.com/libelia/libelia/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func saveTestEvaluation(t *testing.T, s *Store, student, subject string, at time.Time) string {
	t.Helper()
	id, err := s.SaveEvaluation(model.Evaluation{
		StudentName: student,
		Subject:     subject,
		Grade:       5.5,
		Score:       8,
		MaxScore:    10,
		Response: model.GradingResponse{
			Success:         true,
			Score:           "8/10",
			Grade:           5.5,
			Alternatives:    []model.CorrectedAlternative{},
			Development:     model.DevelopmentResults{{ItemID: "P1", Score: "3/4", Obtained: 3, Max: 4}},
			GeneralFeedback: "buen trabajo",
		},
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("saveTestEvaluation: %v", err)
	}
	return id
}

func TestEvaluationCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.EvaluationCount()
	if err != nil {
		t.Fatalf("EvaluationCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 evaluations, got %d", count)
	}

	// Missing rows are not an error.
	e, err := s.GetEvaluation("missing")
	if err != nil {
		t.Fatalf("GetEvaluation(missing): %v", err)
	}
	if e != nil {
		t.Fatalf("expected nil for missing evaluation, got %+v", e)
	}

	now := time.Now().UTC().Truncate(time.Second)
	id := saveTestEvaluation(t, s, "Ana", "matematicas", now)
	if id == "" {
		t.Fatal("SaveEvaluation returned empty id")
	}

	e, err = s.GetEvaluation(id)
	if err != nil {
		t.Fatalf("GetEvaluation: %v", err)
	}
	if e == nil {
		t.Fatal("expected evaluation, got nil")
	}
	if e.StudentName != "Ana" || e.Subject != "matematicas" || e.Grade != 5.5 || e.Score != 8 || e.MaxScore != 10 {
		t.Errorf("unexpected evaluation %+v", e)
	}
	if !e.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, now)
	}
	if e.Response.EvaluationID != id {
		t.Errorf("response evaluationId = %q, want %q", e.Response.EvaluationID, id)
	}
	if len(e.Response.Development) != 1 || e.Response.Development[0].ItemID != "P1" || e.Response.GeneralFeedback != "buen trabajo" {
		t.Errorf("response did not round-trip: %+v", e.Response)
	}
}

func TestListEvaluations(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first := saveTestEvaluation(t, s, "Ana", "matematicas", base)
	second := saveTestEvaluation(t, s, "Luis", "historia", base.Add(time.Hour))
	third := saveTestEvaluation(t, s, "Sofía", "matematicas", base.Add(2*time.Hour))

	tests := []struct {
		name    string
		subject string
		limit   int
		want    []string
	}{
		{"all newest first", "", 0, []string{third, second, first}},
		{"subject filter", "matematicas", 0, []string{third, first}},
		{"limit", "", 2, []string{third, second}},
		{"unknown subject", "artes", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListEvaluations(tt.subject, tt.limit)
			if err != nil {
				t.Fatalf("ListEvaluations: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("got %d evaluations, want %d", len(list), len(tt.want))
			}
			for i, id := range tt.want {
				if list[i].ID != id {
					t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
				}
			}
		})
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetSetting(SettingPromptVariant)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "" {
		t.Fatalf("expected empty value for missing key, got %q", v)
	}

	if err := s.SetSetting(SettingPromptVariant, "strict"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(SettingPromptVariant, "lenient"); err != nil {
		t.Fatalf("SetSetting (update): %v", err)
	}
	v, err = s.GetSetting(SettingPromptVariant)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "lenient" {
		t.Errorf("GetSetting = %q, want lenient", v)
	}
}

func TestExportEvaluations(t *testing.T) {
	s := newTestStore(t)

	exp, err := s.ExportEvaluations("")
	if err != nil {
		t.Fatalf("ExportEvaluations: %v", err)
	}
	if exp.Count != 0 || exp.Evaluations == nil {
		t.Fatalf("empty export = %+v, want zero count and empty list", exp)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := saveTestEvaluation(t, s, "Ana", "ciencias", base)
	newer := saveTestEvaluation(t, s, "Luis", "ciencias", base.Add(time.Minute))
	saveTestEvaluation(t, s, "Sofía", "historia", base.Add(2*time.Minute))

	exp, err = s.ExportEvaluations("ciencias")
	if err != nil {
		t.Fatalf("ExportEvaluations: %v", err)
	}
	if exp.Count != 2 || exp.Subject != "ciencias" {
		t.Fatalf("unexpected export header %+v", exp)
	}
	if exp.Evaluations[0].ID != older || exp.Evaluations[1].ID != newer {
		t.Errorf("export should be oldest first, got %s, %s", exp.Evaluations[0].ID, exp.Evaluations[1].ID)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
	if _, err := Open("oracle", "x"); err == nil {
		t.Error("unknown driver should fail")
	}
}
