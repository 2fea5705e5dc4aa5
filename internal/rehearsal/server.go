package rehearsal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/transport"
	"github.com/MrWong99/intervox/pkg/transport/ws"
)

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithMetrics instruments every request with the observe middleware.
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metricsHandler = h }
}

// WithHealthCheckers adds readiness checks served at /readyz.
func WithHealthCheckers(checkers ...health.Checker) ServerOption {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// Server exposes the session and channel endpoints.
type Server struct {
	store       *Store
	interviewer *Interviewer

	metrics        *observe.Metrics
	metricsHandler http.Handler
	checkers       []health.Checker
}

// NewServer returns a server that creates sessions in store and conducts
// them with iv.
func NewServer(store *Store, iv *Interviewer, opts ...ServerOption) *Server {
	s := &Server{store: store, interviewer: iv}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}

	health.New(s.checkers...).Register(r)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Route("/api/v1/interview", func(r chi.Router) {
		r.Post("/session", s.createSession)
		r.Get("/session/{id}", s.serveChannel)
		r.Get("/session/{id}/feedback", s.getFeedback)
	})
	return r
}

// ---- sessions ----

type createSessionRequest struct {
	SubjectID string `json:"ats_analysis_id"`
	UserID    string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}
	if req.SubjectID == "" {
		req.SubjectID = config.DefaultSubject
	}
	sess := s.store.Create(req.SubjectID, req.UserID)
	observe.Logger(observe.WithSession(r.Context(), sess.ID)).Info("rehearsal: session created",
		"user_id", sess.UserID, "subject", sess.SubjectID)
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: sess.ID})
}

func (s *Server) getFeedback(w http.ResponseWriter, r *http.Request) {
	fb, ok := s.store.Feedback(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no feedback for session"})
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

// ---- channel ----

func (s *Server) serveChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	ctx := observe.WithSession(r.Context(), id)
	log := observe.Logger(ctx).With("user_id", userID)

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("rehearsal: websocket accept failed", "err", err)
		return
	}
	ch := ws.Wrap(c, 0)
	defer ch.Close()

	sess, ok := s.store.Get(id)
	switch {
	case !ok:
		log.Warn("rehearsal: channel for unknown session")
		_ = ch.CloseWith(websocket.StatusPolicyViolation, "unknown session")
		return
	case sess.UserID != userID:
		log.Warn("rehearsal: channel user does not own session")
		_ = ch.CloseWith(websocket.StatusPolicyViolation, "user mismatch")
		return
	}
	if err := s.store.Acquire(id); err != nil {
		log.Warn("rehearsal: channel rejected", "err", err)
		_ = ch.CloseWith(websocket.StatusPolicyViolation, "session busy")
		return
	}
	defer s.store.Release(id)

	err = s.interviewer.Conduct(ctx, sess, &channelConn{ch: ch})
	switch {
	case err == nil:
		_ = ch.CloseWith(websocket.StatusNormalClosure, "interview complete")
	case errors.Is(err, io.EOF), errors.Is(err, transport.ErrClosed), errors.Is(err, context.Canceled):
		log.Info("rehearsal: candidate left", "err", err)
	default:
		log.Error("rehearsal: interview failed", "err", err)
		_ = ch.CloseWith(websocket.StatusInternalError, "interview failed")
	}
}

// channelConn adapts a server-side websocket channel to [Conn].
type channelConn struct {
	ch *ws.Channel
}

var _ Conn = (*channelConn)(nil)

func (c *channelConn) ReadText(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f, ok := <-c.ch.Frames():
			if !ok {
				return nil, io.EOF
			}
			if f.Kind == transport.FrameText {
				return f.Data, nil
			}
			slog.Debug("rehearsal: dropping binary frame from client", "bytes", len(f.Data))
		}
	}
}

func (c *channelConn) WriteControl(ctx context.Context, ctl transport.Control) error {
	data, err := transport.EncodeControl(ctl)
	if err != nil {
		return fmt.Errorf("encode control: %w", err)
	}
	return c.ch.Send(ctx, data)
}

func (c *channelConn) WriteAudio(ctx context.Context, audio []byte) error {
	return c.ch.SendBinary(ctx, audio)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
