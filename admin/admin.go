// Package admin is the broker's operator-facing HTTP surface: Prometheus
// metrics, a health check, a connection-table dump, and the live
// packet-trace feed in trace.go. Grounded on the teacher's Httpd
// (stat.go): same golang-io/requests mux, same promhttp.Handler and
// pprof registration, pointed at the broker's own collaborators instead
// of a package-level mqtt.Stat.
package admin

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/golang-io/requests"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mqttsn "github.com/golang-io/mqttsn"
)

// Server is the admin HTTP surface for one Broker. Unlike the teacher's
// package-level stat/Httpd, it holds its own Registry rather than
// reaching for prometheus's global one, so a process can run more than
// one broker without metric name collisions (same design note as
// NewStat).
type Server struct {
	stat  *mqttsn.Stat
	conns *mqttsn.ConnTable
	trace *TraceHub
	reg   *prometheus.Registry
}

// New wires an admin Server around stat, conns, and trace, registering
// stat's metrics into a fresh Registry; the trace hub's websocket handler
// is mounted by ListenAndServe.
func New(stat *mqttsn.Stat, conns *mqttsn.ConnTable, trace *TraceHub) *Server {
	reg := prometheus.NewRegistry()
	stat.Register(reg)
	return &Server{stat: stat, conns: conns, trace: trace, reg: reg}
}

// ListenAndServe binds addr and serves /metrics, /healthz, /debug/conns,
// /debug/trace, and pprof until the process exits or the listener errors.
func (s *Server) ListenAndServe(addr string) error {
	mux := requests.NewServeMux(requests.URL(addr))
	mux.Route("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.Route("/healthz", http.HandlerFunc(s.healthz))
	mux.Route("/debug/conns", http.HandlerFunc(s.debugConns))
	mux.Route("/debug/trace", s.trace)
	mux.Pprof()

	srv := requests.NewServer(context.Background(), mux, requests.OnStart(func(hs *http.Server) {
		log.Printf("admin serve: %s", hs.Addr)
	}))
	return srv.ListenAndServe()
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// connSummary is one row of the /debug/conns dump: just enough to see
// what the broker thinks is happening without exposing Will payloads or
// client ids to an unauthenticated admin listener.
type connSummary struct {
	Peer  string `json:"peer"`
	State string `json:"state"`
}

func (s *Server) debugConns(w http.ResponseWriter, r *http.Request) {
	out := make([]connSummary, 0, s.conns.Len())
	s.conns.Range(func(c *mqttsn.Conn) {
		out = append(out, connSummary{Peer: string(c.Peer), State: c.State().String()})
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
