package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
)

func TestRecovererWritesInternalError(t *testing.T) {
	handler := RequestID(nil)(Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeInternal) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeInternal, code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestRecovererReraisesAbortHandler(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRequestIDHeaderHandling(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	}))

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "caller id", header: "req-123", keep: true},
		{name: "trace style", header: "trace:abc.def_1", keep: true},
		{name: "oversized", header: strings.Repeat("a", maxRequestIDLen+1)},
		{name: "control chars", header: "req\n{\"level\":\"error\"}"},
		{name: "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(requestIDHeader, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if tt.keep {
				if seen != tt.header {
					t.Fatalf("expected %q to propagate, got %q", tt.header, seen)
				}
				return
			}
			if seen == tt.header || seen == "" {
				t.Fatalf("expected a minted id, got %q", seen)
			}
		})
	}
}

type sample struct {
	method, route string
	status        int
}

type recordingObserver struct {
	samples []sample
}

func (r *recordingObserver) Observe(method, route string, status int, _ time.Duration) {
	r.samples = append(r.samples, sample{method: method, route: route, status: status})
}

func TestLoggingReportsRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(Logging(nil, obs))
	r.Get("/api/v1/redemptions/{redemptionId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/redemptions/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	want := []sample{
		{method: http.MethodGet, route: "/api/v1/redemptions/{redemptionId}", status: http.StatusAccepted},
		{method: http.MethodGet, route: "", status: http.StatusNotFound},
	}
	if len(obs.samples) != len(want) {
		t.Fatalf("expected %d samples, got %+v", len(want), obs.samples)
	}
	for i := range want {
		if obs.samples[i] != want[i] {
			t.Fatalf("sample %d: expected %+v got %+v", i, want[i], obs.samples[i])
		}
	}
}
