package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/libelia/libelia/internal/batch"
	"github.com/libelia/libelia/internal/jobs"
	"github.com/libelia/libelia/internal/model"
	"github.com/libelia/libelia/internal/ocr"
	"github.com/libelia/libelia/internal/omr"
)

type fakeGrader struct {
	eval  *model.LLMEvaluation
	err   error
	calls int
}

func (f *fakeGrader) Evaluate(ctx context.Context, req model.GradingRequest) (*model.LLMEvaluation, error) {
	f.calls++
	return f.eval, f.err
}

func (f *fakeGrader) Ping(ctx context.Context) error { return f.err }

type fakeStore struct {
	saved []model.Evaluation
	err   error
}

func (f *fakeStore) SaveEvaluation(e model.Evaluation) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, e)
	return "eval-1", nil
}

type fakeOCR struct{ mime string }

func (f *fakeOCR) ExtractText(ctx context.Context, content []byte, mimeType string) (*ocr.Result, error) {
	f.mime = mimeType
	return &ocr.Result{Text: string(content), PageCount: 1}, nil
}

func (f *fakeOCR) Close() error { return nil }

type fakeMarks struct{ pages [][]model.SelectionMark }

func (f fakeMarks) SelectionMarks(ctx context.Context, content []byte, mimeType string) ([][]model.SelectionMark, error) {
	return f.pages, nil
}

func scenarioEval() *model.LLMEvaluation {
	return &model.LLMEvaluation{
		Alternatives: []model.AlternativeFeedback{
			{Question: "SM1", StudentAnswer: "A", CorrectAnswer: "A"},
			{Question: "SM2", StudentAnswer: "C", CorrectAnswer: "B"},
		},
		Development: model.DevelopmentDetails{{ItemID: "P1", Score: "3/4", Feedback: "falta un paso"}},
	}
}

func scenarioRequest() model.GradingRequest {
	return model.GradingRequest{
		RubricStructured: "SM1:1;SM2:1;P1:4",
		AnswerKey:        "SM1:A;SM2:B",
		MaxTotalScore:    6,
		ExtractedText:    "SM1: A\nSM2: C\nP1: ...",
		StudentName:      "Ana",
		Subject:          "ciencias",
	}
}

func TestGrade(t *testing.T) {
	ctx := context.Background()

	t.Run("calls grader and stores", func(t *testing.T) {
		g := &fakeGrader{eval: scenarioEval()}
		st := &fakeStore{}
		s := New(model.AppConfig{}, WithGrader(g), WithStore(st))

		resp, err := s.Grade(ctx, scenarioRequest())
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if g.calls != 1 {
			t.Errorf("grader calls = %d, want 1", g.calls)
		}
		if resp.Score != "4/6" || resp.Grade != 4.0 || resp.ApprovalPoints != 4 {
			t.Errorf("unexpected response %+v", resp)
		}
		if resp.EvaluationID != "eval-1" {
			t.Errorf("EvaluationID = %q", resp.EvaluationID)
		}
		if len(st.saved) != 1 || st.saved[0].Score != 4 || st.saved[0].MaxScore != 6 || st.saved[0].StudentName != "Ana" {
			t.Errorf("unexpected saved evaluation %+v", st.saved)
		}
	})

	t.Run("precomputed evaluation skips grader", func(t *testing.T) {
		g := &fakeGrader{err: errors.New("should not be called")}
		s := New(model.AppConfig{}, WithGrader(g))
		req := scenarioRequest()
		req.LLMResult = scenarioEval()

		resp, err := s.Grade(ctx, req)
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if g.calls != 0 || resp.Grade != 4.0 {
			t.Errorf("calls=%d grade=%v", g.calls, resp.Grade)
		}
	})

	t.Run("llm failure", func(t *testing.T) {
		s := New(model.AppConfig{}, WithGrader(&fakeGrader{err: errors.New("503")}))
		if _, err := s.Grade(ctx, scenarioRequest()); !errors.Is(err, ErrLLMFailed) {
			t.Errorf("err = %v, want ErrLLMFailed", err)
		}
	})

	t.Run("no grader", func(t *testing.T) {
		if _, err := New(model.AppConfig{}).Grade(ctx, scenarioRequest()); !errors.Is(err, ErrGraderUnavailable) {
			t.Errorf("err = %v, want ErrGraderUnavailable", err)
		}
	})

	t.Run("storage failure keeps the grade", func(t *testing.T) {
		s := New(model.AppConfig{}, WithGrader(&fakeGrader{eval: scenarioEval()}), WithStore(&fakeStore{err: errors.New("disk full")}))
		resp, err := s.Grade(ctx, scenarioRequest())
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if resp.EvaluationID != "" || resp.Grade != 4.0 {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("configured default approval", func(t *testing.T) {
		s := New(model.AppConfig{DefaultApprovalPercent: 50}, WithGrader(&fakeGrader{eval: scenarioEval()}))
		resp, err := s.Grade(ctx, scenarioRequest())
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if resp.ApprovalPoints != 3 {
			t.Errorf("ApprovalPoints = %v, want 3", resp.ApprovalPoints)
		}
	})
}

func TestGradeItem(t *testing.T) {
	s := New(model.AppConfig{}, WithGrader(&fakeGrader{eval: scenarioEval()}))
	payload, err := json.Marshal(scenarioRequest())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"ok", string(payload), nil},
		{"bad payload", `{"rubricStructured": 5}`, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.GradeItem(context.Background(), batch.Item{GroupID: "g1", Payload: json.RawMessage(tt.payload)})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GradeItem: %v", err)
			}
			if resp, ok := data.(*model.GradingResponse); !ok || resp.Score != "4/6" {
				t.Errorf("data = %#v", data)
			}
		})
	}

	if s.Batch().MaxItems() != 135 {
		t.Errorf("MaxItems = %d, want 135", s.Batch().MaxItems())
	}
}

func TestSubmitJob(t *testing.T) {
	ctx := context.Background()
	if _, err := New(model.AppConfig{}).SubmitJob(ctx, scenarioRequest()); !errors.Is(err, ErrJobsUnavailable) {
		t.Fatalf("err = %v, want ErrJobsUnavailable", err)
	}

	runner := jobs.NewRunner(jobs.NewMemoryStore(time.Hour), time.Minute)
	s := New(model.AppConfig{}, WithGrader(&fakeGrader{eval: scenarioEval()}), WithJobs(runner))
	job, err := s.SubmitJob(ctx, scenarioRequest())
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := s.Job(ctx, job.ID)
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != model.JobCompleted || got.Result == nil || got.Result.Grade != 4.0 {
				t.Fatalf("unexpected job %+v", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %s", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExtractText(t *testing.T) {
	ctx := context.Background()
	if _, err := New(model.AppConfig{}).ExtractText(ctx, []byte("x"), ""); !errors.Is(err, ErrOCRUnavailable) {
		t.Errorf("err = %v, want ErrOCRUnavailable", err)
	}

	f := &fakeOCR{}
	res, err := New(model.AppConfig{}, WithOCR(f)).ExtractText(ctx, []byte("%PDF-1.7 hola"), "application/octet-stream")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.HasPrefix(res.Text, "%PDF") || f.mime != "application/pdf" {
		t.Errorf("text=%q mime=%q", res.Text, f.mime)
	}
}

func TestReadMarks(t *testing.T) {
	ctx := context.Background()
	if res := New(model.AppConfig{}).ReadMarks(ctx, []byte("img"), "image/png", 1); res.Success || res.Error == "" {
		t.Errorf("unconfigured OMR should fail, got %+v", res)
	}

	mark := func(x float64) model.SelectionMark {
		return model.SelectionMark{
			Polygon:    []model.Point{{X: x, Y: 100}, {X: x + 10, Y: 100}, {X: x + 10, Y: 110}, {X: x, Y: 110}},
			Confidence: 0.95,
			State:      model.MarkSelected,
		}
	}
	src := fakeMarks{pages: [][]model.SelectionMark{{mark(10), mark(50), mark(90)}}}
	res := New(model.AppConfig{}, WithOMR(omr.NewExtractor(src, 0))).ReadMarks(ctx, []byte("img"), "image/png", 1)
	if !res.Success || len(res.Items) != 1 || res.Items[0].Value != "C" {
		t.Errorf("unexpected result %+v", res)
	}
}
