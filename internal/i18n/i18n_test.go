package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang string
		id   string
		want string
	}{
		{"es", "ReportTitle", "Informe de evaluación"},
		{"es", "Grade", "Nota"},
		{"en", "ReportTitle", "Evaluation report"},
		{"en", "ApprovalPoints", "Passing points"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestDefaultLanguage(t *testing.T) {
	if err := Init(""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// No localizer in the context: the default language applies.
	if got := T(context.Background(), "Student"); got != "Estudiante" {
		t.Errorf("T(Student) = %q, want 'Estudiante'", got)
	}
	if tags := Languages(); len(tags) != 2 {
		t.Errorf("Languages() = %v, want es and en", tags)
	}
	if err := Init("not a tag!"); err == nil {
		t.Error("invalid tag should fail")
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "es")

	if got := Tp(ctx, "ReviewCount", 1); got != "1 respuesta requiere revisión" {
		t.Errorf("Tp(ReviewCount, 1) = %q", got)
	}
	if got := Tp(ctx, "ReviewCount", 3); got != "3 respuestas requieren revisión" {
		t.Errorf("Tp(ReviewCount, 3) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ScoreOf", map[string]any{"Obtained": "4", "Max": "6"})
	if got != "4 of 6 points" {
		t.Errorf("Td(ScoreOf) = %q, want '4 of 6 points'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("es"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := Middleware("es")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(T(r.Context(), "Grade")))
	}))

	tests := []struct {
		name   string
		target string
		accept string
		want   string
	}{
		{"default", "/", "", "Nota"},
		{"accept-language", "/", "en-US,en;q=0.9", "Grade"},
		{"query wins", "/?lang=es", "en", "Nota"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}
