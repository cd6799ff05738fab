package link

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
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

// subscribe es la primera línea NDJSON enviada al feed tras conectar.
type subscribe struct {
	Subscribe bool     `json:"subscribe"`
	Client    string   `json:"client"`
	DevEUIs   []string `json:"dev_euis,omitempty"`
}

// Client lee uplinks NDJSON del feed en vivo y se reconecta si se cae.
type Client struct {
	addr    string
	proc    Ingester
	log     *logrus.Entry
	retry   time.Duration
	devEUIs []string
	dialer  net.Dialer

	state atomic.Int32
}

type Option func(*Client)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retry = d }
}

// WithDevices limita la suscripción a esos dispositivos.
func WithDevices(devEUIs ...string) Option {
	return func(c *Client) { c.devEUIs = devEUIs }
}

func NewClient(addr string, proc Ingester, lg *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		addr:  addr,
		proc:  proc,
		log:   observability.Component(lg, "link"),
		retry: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Run bloquea hasta que ctx termina. Si addr == "" el link queda deshabilitado.
func (c *Client) Run(ctx context.Context) error {
	if c.addr == "" {
		c.log.Info("feed disabled (no address configured)")
		return nil
	}
	defer c.setState(StateStopped)

	for {
		c.setState(StateConnecting)
		conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WithError(err).WithField("addr", c.addr).Error("dial failed")
		} else {
			c.setState(StateConnected)
			c.log.WithField("remote", conn.RemoteAddr().String()).Info("connected")
			if err := c.session(ctx, conn); err != nil && ctx.Err() == nil {
				c.log.WithError(err).Warn("connection lost")
			}
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("connection closed, reconnecting")
		}
		observability.FeedReconnects.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retry):
		}
	}
}

func (c *Client) session(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := sendNDJSON(conn, subscribe{Subscribe: true, Client: "tracker-codec", DevEUIs: c.devEUIs}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	r := bufio.NewReader(conn)
	for {
		line, err := utilities.ReadLine(r, maxLineBytes)
		switch {
		case errors.Is(err, utilities.ErrLineTooLong):
			c.log.WithField("max_bytes", maxLineBytes).Warn("feed event too large, skipped")
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		case len(line) > 0:
			c.handleIncomingLine(ctx, line)
		}
	}
}

func (c *Client) handleIncomingLine(ctx context.Context, line []byte) {
	rec, err := uplink.Parse(line)
	if err != nil {
		c.log.WithError(err).Warn("bad feed line")
		return
	}
	_, err = c.proc.Process(ctx, rec)
	switch {
	case errors.Is(err, pipeline.ErrDuplicate):
		c.log.WithField("dev_eui", rec.DevEUI).Debug("duplicate uplink")
	case err != nil:
		c.log.WithError(err).WithField("dev_eui", rec.DevEUI).Warn("uplink rejected")
	}
}

func sendNDJSON(conn net.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(b, '\n'))
	return err
}
