package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kus-aws/backend-go/internal/config"
	"github.com/kus-aws/backend-go/internal/logger"
)

// CorrelationHeader is echoed on every response: the caller's value when
// supplied, a generated one otherwise.
const CorrelationHeader = "x-client-request-id"

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the correlation id attached to the request context.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// corsPolicy is the resolved cross-origin policy applied to every route.
type corsPolicy struct {
	origins          []string
	wildcard         bool
	methods          string
	headers          string
	allowCredentials bool
}

func newCORSPolicy(cfg config.CORSConfig) corsPolicy {
	p := corsPolicy{
		origins:          cfg.AllowedOrigins(),
		wildcard:         cfg.Wildcard(),
		methods:          cfg.Methods,
		headers:          cfg.Headers,
		allowCredentials: cfg.AllowCredentials,
	}
	// Browsers reject credentialed responses with a wildcard origin, so a
	// wildcard config silently granting credentials would break every
	// caller. Downgrade and say so.
	if p.wildcard && p.allowCredentials {
		logger.L.Warn("cors: wildcard origins cannot be combined with credentials; disabling credentials")
		p.allowCredentials = false
	}
	if p.methods == "" {
		p.methods = "*"
	}
	if p.headers == "" {
		p.headers = "*"
	}
	return p
}

func (p corsPolicy) allowOrigin(origin string) string {
	if p.wildcard {
		return "*"
	}
	for _, o := range p.origins {
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func (p corsPolicy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if allowed := p.allowOrigin(origin); allowed != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Allow-Methods", p.methods)
				h.Set("Access-Control-Allow-Headers", p.headers)
				if p.allowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if !p.wildcard {
					h.Add("Vary", "Origin")
				}
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
