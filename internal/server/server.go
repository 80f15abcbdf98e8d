// Package server exposes the board store over HTTP and streams change
// notifications to subscribed clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/fanout"
	"github.com/h0rv/kanban/internal/persist"
)

// Server serves the board API.
type Server struct {
	store *persist.Store
	hub   *fanout.Hub
	pub   fanout.Publisher
	log   *slog.Logger
}

// New creates a Server. Subscribers attach to hub; pub announces mutations and
// may be the hub itself or a broker that relays through it.
func New(store *persist.Store, hub *fanout.Hub, pub fanout.Publisher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if pub == nil {
		pub = hub
	}
	return &Server{store: store, hub: hub, pub: pub, log: log}
}

// Handler returns the HTTP handler with access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return withLogging(s.log, mux)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/boards", s.requireUser(s.handleListBoards))
	mux.HandleFunc("POST /api/boards", s.requireUser(s.handleCreateBoard))
	mux.HandleFunc("GET /api/boards/{id}", s.requireUser(s.handleGetBoard))
	mux.HandleFunc("DELETE /api/boards/{id}", s.requireUser(s.handleDeleteBoard))
	mux.HandleFunc("POST /api/boards/{id}/members", s.requireUser(s.handleAddMember))
	mux.HandleFunc("DELETE /api/boards/{id}/members/{uid}", s.requireUser(s.handleRemoveMember))
	mux.HandleFunc("POST /api/boards/{id}/labels", s.requireUser(s.handleCreateLabel))
	mux.HandleFunc("GET /api/boards/{id}/events", s.requireUser(s.handleBoardEvents))

	mux.HandleFunc("POST /api/boards/{id}/lists", s.requireUser(s.handleCreateList))
	mux.HandleFunc("PUT /api/boards/{id}/lists/order", s.requireUser(s.handleReorderLists))
	mux.HandleFunc("PATCH /api/lists/{id}", s.requireUser(s.handleUpdateList))
	mux.HandleFunc("DELETE /api/lists/{id}", s.requireUser(s.handleDeleteList))

	mux.HandleFunc("POST /api/lists/{id}/cards", s.requireUser(s.handleCreateCard))
	mux.HandleFunc("PUT /api/lists/{id}/cards/order", s.requireUser(s.handleReorderCards))
	mux.HandleFunc("PATCH /api/cards/{id}", s.requireUser(s.handleUpdateCard))
	mux.HandleFunc("DELETE /api/cards/{id}", s.requireUser(s.handleDeleteCard))
	mux.HandleFunc("POST /api/cards/{id}/move", s.requireUser(s.handleMoveCard))
	mux.HandleFunc("POST /api/cards/{id}/approve", s.requireUser(s.handleApproveCard))

	mux.HandleFunc("GET /api/cards/{id}/comments", s.requireUser(s.handleListComments))
	mux.HandleFunc("POST /api/cards/{id}/comments", s.requireUser(s.handleAddComment))
	mux.HandleFunc("GET /api/cards/{id}/checklist", s.requireUser(s.handleListChecklist))
	mux.HandleFunc("POST /api/cards/{id}/checklist", s.requireUser(s.handleAddChecklistItem))
	mux.HandleFunc("PATCH /api/checklist/{id}", s.requireUser(s.handleSetChecklistItem))
	mux.HandleFunc("GET /api/cards/{id}/attachments", s.requireUser(s.handleListAttachments))
	mux.HandleFunc("POST /api/cards/{id}/attachments", s.requireUser(s.handleAddAttachment))
}

type userKey struct{}

func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(api.HeaderUserID)
		if user == "" {
			s.writeError(w, domain.ErrUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func userFrom(r *http.Request) string {
	user, _ := r.Context().Value(userKey{}).(string)
	return user
}

// publish announces a persisted mutation. The requesting client is named as
// the origin so it is not notified of its own change.
func (s *Server) publish(r *http.Request, typ string, rcpt domain.Receipt, entity, entityID string) {
	ev := fanout.Event{
		Type:     typ,
		BoardID:  rcpt.BoardID,
		Version:  rcpt.Version,
		Origin:   r.Header.Get(api.HeaderClientID),
		Entity:   entity,
		EntityID: entityID,
	}
	// The request context may already be gone once the response is written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event", "board", ev.BoardID, "version", ev.Version, "err", err)
	}
}

func (s *Server) changed(r *http.Request, rcpt domain.Receipt, entity, entityID string) {
	s.publish(r, fanout.TypeChanged, rcpt, entity, entityID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Error("health", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up"})
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, api.ErrorBody{Code: api.CodeInvalid, Error: "invalid payload: " + err.Error()})
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as an internal error without detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if pe, ok := domain.AsPolicy(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, api.ErrorBody{Code: api.CodePolicyRejected, Error: pe.Error(), Reason: pe.Reason})
		return
	}

	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, api.CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, api.CodeForbidden
	case errors.Is(err, domain.ErrStale):
		status, code = http.StatusConflict, api.CodeStale
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, api.CodeNotFound
	case errors.Is(err, domain.ErrInvalid):
		status, code = http.StatusBadRequest, api.CodeInvalid
	default:
		s.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, api.ErrorBody{Code: api.CodeInternal, Error: "internal error"})
		return
	}
	writeJSON(w, status, api.ErrorBody{Code: code, Error: err.Error()})
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"user", r.Header.Get(api.HeaderUserID),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Flush lets event streams pass through the logger.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
