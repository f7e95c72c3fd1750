package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const clientIPKey contextKey = "client_ip"

// ClientIPMiddleware resolves the caller's address and stores it in the
// request context. With trustProxy set, the X-Forwarded-For entry appended
// by the outermost of proxyHops trusted proxies (then X-Real-IP) wins over
// the socket address. Entries to its left are caller-supplied and ignored.
func ClientIPMiddleware(trustProxy bool, proxyHops int) func(http.Handler) http.Handler {
	if proxyHops < 1 {
		proxyHops = 1
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustProxy, proxyHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// WithClientIP returns a copy of ctx carrying ip.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the address stored by ClientIPMiddleware, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

func resolveClientIP(r *http.Request, trustProxy bool, proxyHops int) string {
	if trustProxy {
		if ip := forwardedFor(r.Header.Values("X-Forwarded-For"), proxyHops); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedFor picks the entry proxyHops positions from the right of the
// combined X-Forwarded-For list. A shorter list never passed through every
// trusted proxy, so its leftmost entry is used.
func forwardedFor(headers []string, proxyHops int) string {
	var entries []string
	for _, h := range headers {
		for _, part := range strings.Split(h, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				entries = append(entries, ip)
			}
		}
	}
	if len(entries) == 0 {
		return ""
	}
	idx := len(entries) - proxyHops
	if idx < 0 {
		idx = 0
	}
	return entries[idx]
}
