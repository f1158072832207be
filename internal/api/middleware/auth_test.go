package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func TestBearerAuth_Success(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateAPIKey", mock.Anything, "dsc_token").Return("token:abcd", nil)

	var captured string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer dsc_token")
	w := httptest.NewRecorder()

	BearerAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "token:abcd", captured)
	mockValidator.AssertExpectations(t)
}

func TestBearerAuth_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "invalid token", header: "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockValidator := new(MockAuthValidator)
			mockValidator.On("ValidateAPIKey", mock.Anything, "nope").Return("", errors.New("invalid")).Maybe()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			BearerAuth(mockValidator)(handler).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestBearerAuth_Disabled(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	BearerAuth(nil)(handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, called)
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", string(make([]byte, 200)))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Len(t, seen, 36)
}

func TestMaxBodyBytes(t *testing.T) {
	handler := MaxBodyBytes(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAccessLog_SeesPrincipalFromAuth(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateAPIKey", mock.Anything, "dsc_token").Return("token:abcd", nil)

	var holder *principalHolder
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		holder, _ = r.Context().Value(principalHolderKey).(*principalHolder)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer dsc_token")
	AccessLog(BearerAuth(mockValidator)(inner)).ServeHTTP(httptest.NewRecorder(), req)

	if assert.NotNil(t, holder) {
		assert.Equal(t, "token:abcd", holder.value)
	}
}

func TestAccessLog_RecordsExport(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	})

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Export-ID", "exp-1")
		w.Header().Set("X-Export-Outcome", "completed")
		w.Write([]byte("host\n"))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/discover/export/csv", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	RequestID(AccessLog(inner)).ServeHTTP(httptest.NewRecorder(), req)

	var entry accessLogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, http.MethodPost, entry.Method)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, 5, entry.Bytes)
	assert.Equal(t, "exp-1", entry.ExportID)
	assert.Equal(t, "completed", entry.ExportOutcome)
	assert.Equal(t, "10.0.0.1", entry.RemoteAddr)
	assert.NotEmpty(t, entry.RequestID)
}

func TestSpanStatus(t *testing.T) {
	tests := []struct {
		status int
		want   sentry.SpanStatus
	}{
		{http.StatusOK, sentry.SpanStatusOK},
		{http.StatusBadRequest, sentry.SpanStatusInvalidArgument},
		{http.StatusUnauthorized, sentry.SpanStatusUnauthenticated},
		{http.StatusConflict, sentry.SpanStatusAborted},
		{http.StatusBadGateway, sentry.SpanStatusUnavailable},
		{http.StatusGatewayTimeout, sentry.SpanStatusDeadlineExceeded},
		{http.StatusInternalServerError, sentry.SpanStatusInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, spanStatus(tt.status), "status %d", tt.status)
	}
}
