package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists what browsers on other origins may do. Origins may be
// "*", an exact origin or a subdomain wildcard such as
// "https://*.workgate.app".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// originRule is one compiled AllowedOrigins entry.
type originRule struct {
	any    bool
	exact  string
	scheme string
	suffix string
}

func compileOrigin(raw string) originRule {
	raw = strings.ToLower(raw)
	if raw == "*" {
		return originRule{any: true}
	}
	if scheme, domain, ok := strings.Cut(raw, "://*."); ok {
		return originRule{scheme: scheme + "://", suffix: "." + domain}
	}
	return originRule{exact: raw}
}

func (o originRule) matches(origin string) bool {
	switch {
	case o.any:
		return true
	case o.exact != "":
		return o.exact == origin
	}
	host, ok := strings.CutPrefix(origin, o.scheme)
	return ok && len(host) > len(o.suffix) && strings.HasSuffix(host, o.suffix)
}

// WithCORS answers preflight requests and decorates responses for allowed
// origins. An empty AllowedOrigins turns the middleware off.
func WithCORS(cfg CORSPolicy) Middleware {
	var rules []originRule
	for _, o := range trimmed(cfg.AllowedOrigins) {
		rules = append(rules, compileOrigin(o))
	}
	if len(rules) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	static := http.Header{}
	if cfg.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if m := trimmed(cfg.AllowedMethods); len(m) > 0 {
		static.Set("Access-Control-Allow-Methods", strings.Join(m, ", "))
	}
	if h := trimmed(cfg.AllowedHeaders); len(h) > 0 {
		static.Set("Access-Control-Allow-Headers", strings.Join(h, ", "))
	}
	if secs := int(cfg.MaxAge / time.Second); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}

	allow := func(origin string) (string, bool) {
		lower := strings.ToLower(origin)
		for _, rule := range rules {
			if !rule.matches(lower) {
				continue
			}
			// Browsers reject "*" on credentialed requests.
			if rule.any && !cfg.AllowCredentials {
				return "*", true
			}
			return origin, true
		}
		return "", false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			value, ok := allow(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", value)
			for k := range static {
				h.Set(k, static.Get(k))
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimmed(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
