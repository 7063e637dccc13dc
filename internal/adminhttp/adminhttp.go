// Package adminhttp is the tiny JSON admin surface spec.md §9 calls for: a
// stdlib net/http.ServeMux exposing queue stats and flush operations,
// modeled directly on the teacher's server package (ServeMux routing,
// BaseContext, ReadHeaderTimeout) minus the embedded frontend and SSE
// streaming the teacher serves to its web UI — this system has no
// user-facing UI to stream to (spec.md Non-goals).
package adminhttp

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/caic-xyz/orchestrator/internal/apierr"
	"github.com/caic-xyz/orchestrator/internal/orchestrator"
)

// Server serves the admin JSON API.
type Server struct {
	orch *orchestrator.Orchestrator
}

// New builds a Server bound to orch.
func New(orch *orchestrator.Orchestrator) *Server {
	return &Server{orch: orch}
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects/{project}/stats", s.handleProjectStats)
	mux.HandleFunc("POST /api/flush-stuck", s.handleFlushStuck)
	mux.HandleFunc("POST /api/jobs/{id}/flush", s.handleFlushJob)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	slog.Info("adminhttp: listening", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	if project == "" {
		apierr.Write(w, apierr.BadRequest("project is required"))
		return
	}
	stats, err := s.orch.ProjectStats(r.Context(), project)
	if err != nil {
		apierr.Write(w, apierr.Internal("failed to load project stats").Wrap(err))
		return
	}
	apierr.WriteJSON(w, &stats, nil)
}

func (s *Server) handleFlushStuck(w http.ResponseWriter, r *http.Request) {
	n, err := s.orch.FlushStuck(r.Context())
	if err != nil {
		apierr.Write(w, apierr.Internal("failed to flush stuck jobs").Wrap(err))
		return
	}
	out := struct {
		Recovered int `json:"recovered"`
	}{Recovered: n}
	apierr.WriteJSON(w, &out, nil)
}

func (s *Server) handleFlushJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		apierr.Write(w, apierr.BadRequest("job id is required"))
		return
	}
	if err := s.orch.FlushJob(r.Context(), id); err != nil {
		apierr.Write(w, apierr.NotFound("job").Wrap(err))
		return
	}
	out := struct {
		Status string `json:"status"`
	}{Status: "flushed"}
	apierr.WriteJSON(w, &out, nil)
}
