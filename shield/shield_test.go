package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/scrollguard/kit"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(h http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	for _, mw := range DefaultStack(quietLogger()) {
		r.Use(mw)
	}
	r.Get("/test", h)
	r.Post("/test", h)
	return r
}

func TestDefaultStack_Headers(t *testing.T) {
	var traceInCtx, transport string
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		traceInCtx = kit.GetTraceID(r.Context())
		transport = kit.GetTransport(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
	}
	for header, want := range checks {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	if !strings.Contains(w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'") {
		t.Errorf("CSP: %q", w.Header().Get("Content-Security-Policy"))
	}

	traceID := w.Header().Get("X-Trace-ID")
	if len(traceID) != 8 {
		t.Errorf("X-Trace-ID: got %q, want 8 hex chars", traceID)
	}
	if traceInCtx != traceID {
		t.Errorf("context trace id %q != header %q", traceInCtx, traceID)
	}
	if transport != kit.TransportHTTP {
		t.Errorf("transport: %q", transport)
	}
}

func TestHeadToGet(t *testing.T) {
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/test", nil))
	if w.Code != http.StatusOK {
		t.Errorf("HEAD: got %d, want 200", w.Code)
	}
}

func TestMaxBody(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MaxBody(16))
	r.Post("/test", func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("small")))
	if w.Code != http.StatusNoContent {
		t.Errorf("small body: got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large body: got %d, want 413", w.Code)
	}

	// Unknown length: the cap is enforced while the handler reads.
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("streamed body: got %d, want 413", w.Code)
	}
}

func TestGetLogger_Default(t *testing.T) {
	if GetLogger(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != slog.Default() {
		t.Error("expected slog.Default without middleware")
	}
}
