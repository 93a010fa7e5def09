package i18n

import "net/http"

// Middleware injects a localizer into every request context. The request's
// Accept-Language header wins over lang.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			langs := []string{lang}
			if al := r.Header.Get("Accept-Language"); al != "" {
				langs = []string{al, lang}
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(langs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
