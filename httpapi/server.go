// Package httpapi is the daemon's local HTTP surface: the message endpoint
// for out-of-process UIs, the intervention page the popup loads, and a
// small control API for pages, settings and the journal.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/scrollguard/bus"
	"github.com/hazyhaar/scrollguard/coordinator"
	"github.com/hazyhaar/scrollguard/observability"
	"github.com/hazyhaar/scrollguard/pagehost"
	"github.com/hazyhaar/scrollguard/protocol"
	"github.com/hazyhaar/scrollguard/settings"
	"github.com/hazyhaar/scrollguard/shield"
)

// Dispatcher routes envelopes to their handlers. *bus.Router implements it.
type Dispatcher interface {
	Call(ctx context.Context, env protocol.Envelope) (json.RawMessage, error)
}

// StatusSource reports the coordinator state.
type StatusSource interface {
	Status() coordinator.Status
}

// PageLister lists observed pages. *pagehost.Registry implements it.
type PageLister interface {
	List() []pagehost.PageStatus
}

// PageOpener opens and closes observed tabs. *pagehost.Host implements it.
type PageOpener interface {
	OpenPage(ctx context.Context, pageURL string) (string, error)
	ClosePage(id string)
}

// JournalReader reads the intervention journal. *observability.Journal
// implements it.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]observability.Entry, error)
	Counts(ctx context.Context, since time.Time) (map[coordinator.Outcome]int, error)
}

// SettingsEditor is the write side of the settings store.
type SettingsEditor interface {
	Load(ctx context.Context) (settings.Settings, error)
	SetScrollSettings(ctx context.Context, threshold, windowSeconds any) error
	SetPremium(ctx context.Context, premium bool) error
	SetIgnoredDomains(ctx context.Context, domains []string) error
}

// Config wires the server. Bus is required; the rest is optional and the
// matching routes answer 503 when absent.
type Config struct {
	Bus      Dispatcher
	Status   StatusSource
	Pages    PageLister
	Opener   PageOpener
	Journal  JournalReader
	Settings SettingsEditor
	Logger   *slog.Logger
}

// Server serves the HTTP surface.
type Server struct {
	cfg    Config
	log    *slog.Logger
	router chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, log: cfg.Logger}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(cfg.Logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/intervention", s.handleIntervention)
	r.Post("/intervention/todos/{id}/complete", s.handleCompleteTodo)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages/{type}", s.handleMessage)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)

		r.Get("/pages", s.handleListPages)
		r.Post("/pages", s.handleOpenPage)
		r.Delete("/pages/{id}", s.handleClosePage)

		r.Get("/settings", s.handleGetSettings)
		r.Patch("/settings", s.handlePatchSettings)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleMessage accepts an envelope whose type matches the path. A body
// without a type takes the one from the path.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	t := protocol.Type(chi.URLParam(r, "type"))
	if !t.Valid() {
		writeError(w, http.StatusBadRequest, &bus.ErrUnknownType{Type: t})
		return
	}

	var env protocol.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid envelope"))
		return
	}
	if env.Type == "" {
		env.Type = t
	}
	if env.Type != t {
		writeError(w, http.StatusBadRequest, errors.New("envelope type does not match path"))
		return
	}

	resp, err := s.cfg.Bus.Call(r.Context(), env)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if len(resp) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

func statusFor(err error) int {
	var unknown *bus.ErrUnknownType
	var noHandler *bus.ErrNoHandler
	var bad *bus.ErrBadPayload
	switch {
	case errors.As(err, &unknown), errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &noHandler):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type statusResponse struct {
	Coordinator *coordinator.Status         `json:"coordinator,omitempty"`
	Pages       int                         `json:"pages"`
	Last24h     map[coordinator.Outcome]int `json:"last_24h,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var out statusResponse
	if s.cfg.Status != nil {
		st := s.cfg.Status.Status()
		out.Coordinator = &st
	}
	if s.cfg.Pages != nil {
		out.Pages = len(s.cfg.Pages.List())
	}
	if s.cfg.Journal != nil {
		counts, err := s.cfg.Journal.Counts(r.Context(), time.Now().Add(-24*time.Hour))
		if err != nil {
			shield.GetLogger(r.Context()).Warn("httpapi: journal counts", "error", err)
		} else {
			out.Last24h = counts
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("journal disabled"))
		return
	}
	entries, err := s.cfg.Journal.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []observability.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListPages(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Pages == nil {
		writeJSON(w, http.StatusOK, []pagehost.PageStatus{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Pages.List())
}

func (s *Server) handleOpenPage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Opener == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("browser disabled"))
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	id, err := s.cfg.Opener.OpenPage(r.Context(), req.URL)
	if errors.Is(err, pagehost.ErrUnsafeURL) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "url": req.URL})
}

func (s *Server) handleClosePage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Opener == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("browser disabled"))
		return
	}
	s.cfg.Opener.ClosePage(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Settings == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings disabled"))
		return
	}
	st, err := s.cfg.Settings.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// settingsPatch carries the fields a settings form may change. Threshold
// and window keep their raw JSON type; the store validates them.
type settingsPatch struct {
	ScrollThreshold   any       `json:"scrollThreshold"`
	TimeWindowSeconds any       `json:"timeWindowSeconds"`
	IsPremium         *bool     `json:"isPremium"`
	IgnoredDomains    *[]string `json:"ignoredDomains"`
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Settings == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings disabled"))
		return
	}
	var p settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid settings"))
		return
	}
	ctx := r.Context()

	if p.ScrollThreshold != nil || p.TimeWindowSeconds != nil {
		cur, err := s.cfg.Settings.Load(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		threshold, window := p.ScrollThreshold, p.TimeWindowSeconds
		if threshold == nil {
			threshold = cur.ScrollThreshold
		}
		if window == nil {
			window = cur.TimeWindowSeconds
		}
		if err := s.cfg.Settings.SetScrollSettings(ctx, threshold, window); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if p.IsPremium != nil {
		if err := s.cfg.Settings.SetPremium(ctx, *p.IsPremium); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if p.IgnoredDomains != nil {
		if err := s.cfg.Settings.SetIgnoredDomains(ctx, *p.IgnoredDomains); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.handleGetSettings(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}
