package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tracker-codec/internal/observability"
	"tracker-codec/internal/pipeline"
	"tracker-codec/internal/uplink"
	"tracker-codec/internal/utilities"
)

const maxLineBytes = 64 * 1024

// Ingester procesa un uplink ya parseado.
type Ingester interface {
	Process(ctx context.Context, rec uplink.Record) (*pipeline.TrackingObject, error)
}

// TcpServer recibe registros NDJSON y responde una línea de ack por registro.
type TcpServer struct {
	proc      Ingester
	log       *logrus.Entry
	rawLogDir string
	idle      time.Duration

	wg sync.WaitGroup
}

type Option func(*TcpServer)

// WithRawLog guarda cada línea recibida en <dir>/ALLUPLINKS_<fecha>.log.
func WithRawLog(dir string) Option {
	return func(s *TcpServer) { s.rawLogDir = dir }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(s *TcpServer) { s.idle = d }
}

func New(proc Ingester, lg *logrus.Logger, opts ...Option) *TcpServer {
	s := &TcpServer{
		proc: proc,
		log:  observability.Component(lg, "tcp"),
		idle: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ack struct {
	ID        string `json:"id,omitempty"`
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

func Start(ctx context.Context, addr string, srv *TcpServer) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error starting TCP server: %w", err)
	}
	srv.log.WithField("addr", listener.Addr().String()).Info("TCP server listening")
	return srv.Serve(ctx, listener)
}

// Serve acepta conexiones hasta que ctx termina y espera a que las
// conexiones abiertas cierren.
func (srv *TcpServer) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	defer srv.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			srv.log.WithError(err).Error("accept error")
			continue
		}
		observability.TCPConnections.Inc()

		srv.wg.Add(1)
		go func(c net.Conn) {
			defer srv.wg.Done()
			srv.HandleConnection(ctx, c)
		}(conn)
	}
}

func (srv *TcpServer) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := srv.log.WithField("remote", conn.RemoteAddr().String())
	log.Debug("connection opened")
	defer log.Debug("connection closed")

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	r := bufio.NewReader(conn)
	enc := json.NewEncoder(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(srv.idle))
		line, err := utilities.ReadLine(r, maxLineBytes)
		var res ack
		switch {
		case errors.Is(err, utilities.ErrLineTooLong):
			log.WithField("max_bytes", maxLineBytes).Warn("record too large")
			res = ack{Error: "record too large"}
		case err != nil:
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.WithError(err).Warn("read error")
			}
			return
		case len(line) == 0:
			continue
		default:
			if err := utilities.CreateLog(srv.rawLogDir, "ALLUPLINKS", string(line)); err != nil {
				log.WithError(err).Warn("raw log write failed")
			}
			res = srv.handleLine(ctx, line)
		}
		if err := enc.Encode(res); err != nil {
			log.WithError(err).Warn("ack write failed")
			return
		}
	}
}

func (srv *TcpServer) handleLine(ctx context.Context, line []byte) ack {
	rec, err := uplink.Parse(line)
	if err != nil {
		return ack{Error: err.Error()}
	}
	_, err = srv.proc.Process(ctx, rec)
	switch {
	case errors.Is(err, pipeline.ErrDuplicate):
		return ack{ID: rec.ID, OK: true, Duplicate: true}
	case err != nil:
		srv.log.WithError(err).WithField("dev_eui", rec.DevEUI).Warn("uplink rejected")
		return ack{ID: rec.ID, Error: err.Error()}
	default:
		return ack{ID: rec.ID, OK: true}
	}
}
