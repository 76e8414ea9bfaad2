package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handover-sim/internal/remote"
	"handover-sim/internal/sim"
)

// Run is the part of the driver the admin endpoint controls.
type Run interface {
	Status() sim.RunStatus
	JournalSince(idx int) []sim.RunEvent
	Cancel() bool
}

// RemoteStatus reports the companion device channel, when one is in use.
type RemoteStatus interface {
	Status() remote.Status
}

type Server struct {
	Run    Run
	Remote RemoteStatus
	mux    *http.ServeMux
	gather prometheus.Gatherer
	srv    *http.Server
}

// NewServer serves run status, the run journal, cancellation and the
// metrics gathered from g. g may be nil.
func NewServer(run Run, g prometheus.Gatherer) *Server {
	s := &Server{Run: run, mux: http.NewServeMux(), gather: g}
	s.srv = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/journal", s.handleJournal)
	s.mux.HandleFunc("/cancel", s.handleCancel)
	s.mux.HandleFunc("/remote", s.handleRemote)
	if s.gather != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr until Shutdown is called. It returns
// http.ErrServerClosed after a shutdown, including one that happened first.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

// Shutdown stops accepting requests and waits for active ones until ctx is
// done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Run.Status())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.Atoi(r.URL.Query().Get("since"))
	if since < 0 {
		since = 0
	}
	events := s.Run.JournalSince(since)
	if events == nil {
		events = []sim.RunEvent{}
	}
	writeJSON(w, events)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"cancelled": s.Run.Cancel()})
}

func (s *Server) handleRemote(w http.ResponseWriter, r *http.Request) {
	if s.Remote == nil {
		http.Error(w, "no remote device configured", http.StatusNotFound)
		return
	}
	writeJSON(w, s.Remote.Status())
}
