package forward

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"tracker-codec/internal/payload"
	"tracker-codec/internal/pipeline"
)

type fakeForwarder struct {
	mu     sync.Mutex
	got    []*structpb.Struct
	reject string
}

func (f *fakeForwarder) SendTelemetry(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.reject != "" {
		return Reply(false, f.reject), nil
	}
	return Reply(true, ""), nil
}

func startForwarder(t *testing.T, srv ForwarderServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleTracking() *pipeline.TrackingObject {
	return &pipeline.TrackingObject{
		ID:          "u-1",
		DevEUI:      "a84041000181c2e1",
		FPort:       2,
		FCnt:        42,
		Datetime:    time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
		Kind:        payload.KindLocationFixed,
		Lat:         4.0535033,
		Lon:         9.694495,
		Flags:       map[string]bool{"motion_detected": true},
		Diagnostics: []string{"low battery voltage: 2.900V, risk of failure"},
		MsgType:     1,
		Fix:         1,
	}
}

func TestClientSave(t *testing.T) {
	fwd := &fakeForwarder{}
	c := startForwarder(t, fwd)
	require.Equal(t, "grpc", c.Name())

	require.NoError(t, c.Save(context.Background(), sampleTracking()))
	require.Len(t, fwd.got, 1)

	f := fwd.got[0].GetFields()
	require.Equal(t, "a84041000181c2e1", f["dev_eui"].GetStringValue())
	require.Equal(t, "location_fixed", f["kind"].GetStringValue())
	require.Equal(t, 4.0535033, f["lat"].GetNumberValue())
	require.Equal(t, 42.0, f["f_cnt"].GetNumberValue())
	require.True(t, f["flags"].GetStructValue().GetFields()["motion_detected"].GetBoolValue())
	require.Len(t, f["diagnostics"].GetListValue().GetValues(), 1)
}

func TestClientSaveRejected(t *testing.T) {
	c := startForwarder(t, &fakeForwarder{reject: "unknown device"})
	err := c.Save(context.Background(), sampleTracking())
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "unknown device")
}

func TestClientSaveUnavailable(t *testing.T) {
	c, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return nil, net.ErrClosed
	}))
	require.NoError(t, err)
	defer c.Close()
	c.timeout = 200 * time.Millisecond

	require.Error(t, c.Save(context.Background(), sampleTracking()))
}

func TestToStructNilSlices(t *testing.T) {
	tr := sampleTracking()
	tr.Diagnostics = nil
	st, err := ToStruct(tr)
	require.NoError(t, err)
	_, isNull := st.GetFields()["diagnostics"].GetKind().(*structpb.Value_NullValue)
	require.True(t, isNull)
}
