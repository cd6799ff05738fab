package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"tracker-codec/internal/pipeline"
)

var ErrRejected = errors.New("forwarder rejected telemetry")

const defaultTimeout = 5 * time.Second

// Client entrega cada trackeo al forwarder como google.protobuf.Struct.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: defaultTimeout}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Name() string { return "grpc" }

// Save implementa pipeline.Sink.
func (c *Client) Save(ctx context.Context, tr *pipeline.TrackingObject) error {
	req, err := ToStruct(tr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, sendTelemetryMethod, req, res); err != nil {
		return fmt.Errorf("send telemetry %s: %w", tr.DevEUI, err)
	}
	if !res.GetFields()["success"].GetBoolValue() {
		return fmt.Errorf("%w: %s", ErrRejected, res.GetFields()["message"].GetStringValue())
	}
	return nil
}

// ToStruct convierte el trackeo usando su forma JSON.
func ToStruct(tr *pipeline.TrackingObject) (*structpb.Struct, error) {
	b, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("marshal tracking: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal tracking: %w", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("tracking to struct: %w", err)
	}
	return st, nil
}
