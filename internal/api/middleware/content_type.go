package middleware

import (
	"mime"
	"net/http"

	"github.com/voyaai/voyaai/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only set if not already set (allows handlers to override)
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireContentType rejects POST, PUT and PATCH bodies whose media type is
// not one of allowed. Empty bodies without a Content-Type pass.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Content-Type")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(header)
			if err == nil {
				for _, a := range allowed {
					if mediaType == a {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()), header)
			problem.Instance = r.URL.Path
			problem.Write(w)
		})
	}
}

// RequireJSON is RequireContentType("application/json").
func RequireJSON(next http.Handler) http.Handler {
	return RequireContentType("application/json")(next)
}
