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

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NotFound")
	if got != "Evaluation not found." {
		t.Errorf("T(NotFound) = %q, want 'Evaluation not found.'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "NotFound")
	if got != "Оценка не найдена." {
		t.Errorf("T(NotFound) = %q, want 'Оценка не найдена.'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "EvaluationsListed", 1); got != "1 evaluation" {
		t.Errorf("Tp(EvaluationsListed, 1) = %q, want '1 evaluation'", got)
	}
	if got := Tp(ctx, "EvaluationsListed", 5); got != "5 evaluations" {
		t.Errorf("Tp(EvaluationsListed, 5) = %q, want '5 evaluations'", got)
	}

	ctx = initLang(t, "ru")
	if got := Tp(ctx, "EvaluationsListed", 5); got != "5 оценок" {
		t.Errorf("Tp(EvaluationsListed, 5) = %q, want '5 оценок'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ContentTooShort", map[string]any{"Param": "100"})
	if got != "The answer must be at least 100 characters long." {
		t.Errorf("Td(ContentTooShort) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "NotFound")
	}))

	tests := []struct {
		header string
		want   string
	}{
		{"", "Evaluation not found."},
		{"ru-RU,ru;q=0.9,en;q=0.8", "Оценка не найдена."},
		{"de-DE", "Evaluation not found."},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Accept-Language", tt.header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.header, got, tt.want)
		}
	}
}
