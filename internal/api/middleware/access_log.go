package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// Response headers set by the export handlers and copied into the log line.
const (
	exportIDHeader      = "X-Export-ID"
	exportOutcomeHeader = "X-Export-Outcome"
)

type accessLogEntry struct {
	Timestamp     string `json:"ts"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	Bytes         int    `json:"bytes"`
	DurationMS    int64  `json:"duration_ms"`
	RequestID     string `json:"request_id,omitempty"`
	Principal     string `json:"principal,omitempty"`
	ExportID      string `json:"export_id,omitempty"`
	ExportOutcome string `json:"export_outcome,omitempty"`
	RemoteAddr    string `json:"remote_addr,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// AccessLog writes one JSON line per request, including the authenticated
// principal and, for exports, the export id and outcome.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}

		r, holder := withPrincipalHolder(r)
		next.ServeHTTP(rec, r)

		entry := accessLogEntry{
			Timestamp:     start.UTC().Format(time.RFC3339Nano),
			Method:        r.Method,
			Path:          r.URL.Path,
			Status:        rec.statusCode(),
			Bytes:         rec.bytes,
			DurationMS:    time.Since(start).Milliseconds(),
			RequestID:     GetRequestID(r.Context()),
			Principal:     holder.value,
			ExportID:      rec.Header().Get(exportIDHeader),
			ExportOutcome: rec.Header().Get(exportOutcomeHeader),
			RemoteAddr:    clientIP(r),
			UserAgent:     r.UserAgent(),
		}

		payload, err := json.Marshal(entry)
		if err != nil {
			log.Printf("access_log_marshal_error: %v", err)
			return
		}
		log.Println(string(payload))
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// The principal is resolved by BearerAuth further down the chain, on a
// derived context. Outer middleware reads it back through a shared holder.
const principalHolderKey contextKey = "principal_holder"

type principalHolder struct {
	value string
}

// withPrincipalHolder returns r carrying a holder, reusing one installed
// by an outer middleware.
func withPrincipalHolder(r *http.Request) (*http.Request, *principalHolder) {
	if h, ok := r.Context().Value(principalHolderKey).(*principalHolder); ok {
		return r, h
	}
	h := &principalHolder{}
	return r.WithContext(context.WithValue(r.Context(), principalHolderKey, h)), h
}

func recordPrincipal(ctx context.Context, principal string) {
	if h, ok := ctx.Value(principalHolderKey).(*principalHolder); ok {
		h.value = principal
	}
}
