package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"tracker-codec/internal/observability"
	"tracker-codec/internal/pipeline"
	"tracker-codec/internal/uplink"
)

type Ingester interface {
	Process(ctx context.Context, rec uplink.Record) (*pipeline.TrackingObject, error)
}

type LastStore interface {
	Last(ctx context.Context, devEUI string) (*pipeline.TrackingObject, error)
}

type History interface {
	Uplinks(ctx context.Context, devEUI string, limit int) ([]*pipeline.TrackingObject, error)
}

type Server struct {
	proc    Ingester
	last    LastStore
	history History
	resolve pipeline.OptionsResolver
	log     *logrus.Entry
}

type Option func(*Server)

func WithLastStore(s LastStore) Option { return func(srv *Server) { srv.last = s } }

func WithHistory(h History) Option { return func(srv *Server) { srv.history = h } }

func WithOptionsResolver(r pipeline.OptionsResolver) Option {
	return func(srv *Server) { srv.resolve = r }
}

func New(proc Ingester, lg *logrus.Logger, opts ...Option) *Server {
	srv := &Server{proc: proc, log: observability.Component(lg, "api")}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// NewRouter registra las rutas HTTP del servicio.
func NewRouter(srv *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/decode", srv.DecodeHandler).Methods(http.MethodPost)
	v1.HandleFunc("/uplinks", srv.IngestHandler).Methods(http.MethodPost)
	v1.HandleFunc("/devices/{dev_eui}/last", srv.LastHandler).Methods(http.MethodGet)
	v1.HandleFunc("/devices/{dev_eui}/uplinks", srv.UplinksHandler).Methods(http.MethodGet)
	return r
}
