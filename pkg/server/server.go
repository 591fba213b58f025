package server

import (
	"context"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slim-bean/dcs-presence/pkg/presence"
)

type Config struct {
	HTTPListenAddress string `yaml:"http_listen_address"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddress, "server.http-listen-address", "", "Address to serve /metrics and /status on, empty disables the server")
}

// Snapshots is where the server reads the current presence state from.
type Snapshots interface {
	Load() presence.Snapshot
}

// Server exposes metrics and the presence snapshot over HTTP on localhost.
type Server struct {
	logger log.Logger
	srv    *http.Server
	ln     net.Listener
	done   chan struct{}
}

func New(logger log.Logger, cfg Config, snapshots Snapshots, gatherer prometheus.Gatherer) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.HTTPListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", cfg.HTTPListenAddress)
	}

	s := &Server{
		logger: log.With(logger, "component", "server"),
		srv: &http.Server{
			Handler:           Router(snapshots, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:   ln,
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			level.Error(s.logger).Log("msg", "http server failed", "err", err)
		}
	}()
	level.Info(s.logger).Log("msg", "http server listening", "addr", ln.Addr())
	return s, nil
}

// Router returns the handler serving /metrics, /status and /ready.
func Router(snapshots Snapshots, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := jsoniter.NewEncoder(w).Encode(snapshots.Load()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)
	r.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !snapshots.Load().Connected {
			http.Error(w, "presence link down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ready\n"))
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		level.Warn(s.logger).Log("msg", "http server shutdown", "err", err)
	}
	<-s.done
}
