// Package api provides the REST surface for Salesloop: cadence and
// enrollment management, reply ingestion, blocklist administration, and
// reporting.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/salesloop/salesloop/internal/classify"
	"github.com/salesloop/salesloop/internal/engine"
	"github.com/salesloop/salesloop/internal/stats"
	"github.com/salesloop/salesloop/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// ReplyClassifier categorizes inbound reply bodies. Nil means classification
// must be supplied by the caller.
type ReplyClassifier interface {
	ClassifyReply(ctx context.Context, body string) (*classify.Result, error)
}

// Server hosts the REST endpoints.
type Server struct {
	addr       string
	st         store.Store
	engine     *engine.Engine
	stats      *stats.Aggregator
	classifier ReplyClassifier
	httpServer *http.Server
}

// Opts holds server configuration.
type Opts struct {
	Addr       string
	Classifier ReplyClassifier
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithClassifier enables AI classification of ingested replies.
func WithClassifier(c ReplyClassifier) Option {
	return func(o *Opts) { o.Classifier = c }
}

// NewServer creates the API server.
func NewServer(st store.Store, eng *engine.Engine, agg *stats.Aggregator, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		addr:       cfg.Addr,
		st:         st,
		engine:     eng,
		stats:      agg,
		classifier: cfg.Classifier,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/cadences", s.cadencesHandler)
	mux.HandleFunc("/cadences/", s.cadenceSubtreeHandler)
	mux.HandleFunc("/reply-classification", s.ingestReplyHandler)
	mux.HandleFunc("/reply-classification/recent", s.recentClassificationsHandler)
	mux.HandleFunc("/blocklist", s.blocklistHandler)
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// cadenceSubtreeHandler routes everything under /cadences/ by path shape:
//
//	/cadences/{id}
//	/cadences/{id}/enrollments
//	/cadences/{id}/tasks
//	/cadences/enrollments/{id}/pause
//	/cadences/enrollments/{id}/resume
//	/cadences/stats/overview
func (s *Server) cadenceSubtreeHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/cadences/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 2 && parts[0] == "stats" && parts[1] == "overview":
		s.overviewStatsHandler(w, r)
	case len(parts) == 3 && parts[0] == "enrollments":
		s.enrollmentActionHandler(w, r, parts[1], parts[2])
	case len(parts) == 1 && parts[0] != "":
		s.cadenceHandler(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "enrollments":
		s.enrollmentsHandler(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "tasks":
		s.tasksHandler(w, r, parts[0])
	default:
		slog.Debug("Server.cadenceSubtreeHandler: no route", "path", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}
