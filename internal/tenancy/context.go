package tenancy

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const businessKey ctxKey = "nailspa.business_id"

// HeaderBusinessID carries the tenant on web requests.
const HeaderBusinessID = "X-Business-Id"

// WithBusinessID stores the business id in context.
func WithBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, businessKey, businessID)
}

// BusinessIDFromContext extracts the business id if present.
func BusinessIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(businessKey)
	if val == nil {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

// RequireBusinessID rejects requests without an X-Business-Id header and
// scopes the request context to that business. onMissing writes the
// rejection; nil falls back to a plain 400.
func RequireBusinessID(onMissing http.Handler) func(http.Handler) http.Handler {
	if onMissing == nil {
		onMissing = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"missing X-Business-Id"}`, http.StatusBadRequest)
		})
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderBusinessID))
			if id == "" {
				onMissing.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBusinessID(r.Context(), id)))
		})
	}
}
