// Package api exposes the CoachPipe HTTP surface: user enrollment, the
// onboarding conversation, persona generation and adjustment, and activity
// tracking for the engagement policy.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/analytics"
	"github.com/BTreeMap/CoachPipe/internal/conversation"
	"github.com/BTreeMap/CoachPipe/internal/engagement"
	"github.com/BTreeMap/CoachPipe/internal/persona"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown on context cancellation.
const DefaultShutdownTimeout = 10 * time.Second

// ContextKey is the type for request context values set by the router.
type ContextKey string

// ContextKeyUserID carries the user ID extracted from the request path.
const ContextKeyUserID ContextKey = "userID"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP handlers to the store and domain services.
type Server struct {
	st         store.Store
	graph      *conversation.Graph
	personaSvc *persona.Service
	policy     *engagement.Policy
	recorder   analytics.Recorder
	addr       string
}

// NewServer creates an API server. A nil recorder falls back to the no-op
// recorder.
func NewServer(st store.Store, graph *conversation.Graph, personaSvc *persona.Service, policy *engagement.Policy, recorder analytics.Recorder, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if recorder == nil {
		recorder = analytics.Noop()
	}
	return &Server{
		st:         st,
		graph:      graph,
		personaSvc: personaSvc,
		policy:     policy,
		recorder:   recorder,
		addr:       cfg.Addr,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/users", s.usersHandler)
	mux.HandleFunc("/users/", s.userRouteHandler)
	return mux
}

// Run serves the API until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Server.Run: API listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// usersHandler handles the collection route: POST /users.
func (s *Server) usersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.enrollUserHandler(w, r)
}

// userRouteHandler dispatches /users/{id}[/...] routes. The user ID is
// placed on the request context under ContextKeyUserID.
func (s *Server) userRouteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	rest := strings.TrimPrefix(r.URL.Path, "/users/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		http.NotFound(w, r)
		return
	}
	userID := segments[0]
	r = r.WithContext(context.WithValue(r.Context(), ContextKeyUserID, userID))

	sub := strings.Join(segments[1:], "/")
	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.getUserHandler(w, r)
	case sub == "activity" && r.Method == http.MethodPost:
		s.activityHandler(w, r)
	case sub == "session" && r.Method == http.MethodPost:
		s.startSessionHandler(w, r)
	case sub == "session" && r.Method == http.MethodGet:
		s.getSessionStateHandler(w, r)
	case sub == "session/responses" && r.Method == http.MethodPost:
		s.submitResponseHandler(w, r)
	case sub == "session/skip" && r.Method == http.MethodPost:
		s.skipResponseHandler(w, r)
	case sub == "persona" && r.Method == http.MethodPost:
		s.savePersonaHandler(w, r)
	case sub == "persona" && r.Method == http.MethodGet:
		s.getPersonaHandler(w, r)
	case sub == "persona/generate" && r.Method == http.MethodPost:
		s.generatePersonaHandler(w, r)
	case sub == "persona/adjust" && r.Method == http.MethodPost:
		s.adjustPersonaHandler(w, r)
	case sub == "profile" && r.Method == http.MethodGet:
		s.getProfileHandler(w, r)
	default:
		http.NotFound(w, r)
	}
}

func requestUserID(r *http.Request) string {
	id, _ := r.Context().Value(ContextKeyUserID).(string)
	return id
}
