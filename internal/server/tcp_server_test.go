package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"tracker-codec/internal/pipeline"
)

func startServer(t *testing.T, opts ...Option) (net.Addr, context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	p := pipeline.NewProcessor(pipeline.WithDeduper(&memDedup{seen: map[string]bool{}}))
	srv := New(p, lg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr(), cancel
}

type memDedup struct{ seen map[string]bool }

func (d *memDedup) MarkSeen(_ context.Context, fp string) (bool, error) {
	if d.seen[fp] {
		return false, nil
	}
	d.seen[fp] = true
	return true, nil
}

func TestIngestAcks(t *testing.T) {
	dir := t.TempDir()
	addr, _ := startServer(t, WithRawLog(dir))

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	lines := []string{
		`{"id":"u-1","dev_eui":"a840","f_port":2,"f_cnt":1,"payload":"011d9000000309026a83f905c7433628695d116d"}`,
		`{"id":"u-2","dev_eui":"a840","f_port":2,"f_cnt":1,"payload":"011d9000000309026a83f905c7433628695d116d"}`,
		`{"id":"u-3","dev_eui":"a840","f_port":2,"f_cnt":2,"payload":"011"}`,
		`not json`,
		``,
		`{"dev_eui":"a840","f_port":1,"f_cnt":3,"payload":"000ed809601234050300"}`,
	}
	for _, l := range lines {
		_, err := conn.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}

	r := bufio.NewScanner(conn)
	var acks []ack
	for len(acks) < 5 && r.Scan() {
		var a ack
		require.NoError(t, json.Unmarshal(r.Bytes(), &a))
		acks = append(acks, a)
	}
	require.Len(t, acks, 5)

	require.Equal(t, ack{ID: "u-1", OK: true}, acks[0])
	require.Equal(t, ack{ID: "u-2", OK: true, Duplicate: true}, acks[1])
	require.Equal(t, "u-3", acks[2].ID)
	require.False(t, acks[2].OK)
	require.Contains(t, acks[2].Error, "malformed payload")
	require.False(t, acks[3].OK)
	require.Contains(t, acks[3].Error, "invalid record")
	require.True(t, acks[4].OK)
	require.NotEmpty(t, acks[4].ID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ALLUPLINKS_"+time.Now().Format("20060102")+".log", entries[0].Name())
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Contains(t, string(data), `"id":"u-3"`)
}

func TestServeStopsOnCancel(t *testing.T) {
	addr, cancel := startServer(t)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestIngestOversizedRecordKeepsConnection(t *testing.T) {
	addr, _ := startServer(t)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	big := `{"dev_eui":"a840","f_port":2,"payload":"` + strings.Repeat("00", 40*1024) + `"}`
	go func() {
		_, _ = conn.Write([]byte(big + "\n"))
		_, _ = conn.Write([]byte(`{"id":"u-9","dev_eui":"a840","f_port":2,"f_cnt":9,"payload":"011d9000000309026a83f905c7433628695d116d"}` + "\n"))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewScanner(conn)
	var acks []ack
	for len(acks) < 2 && r.Scan() {
		var a ack
		require.NoError(t, json.Unmarshal(r.Bytes(), &a))
		acks = append(acks, a)
	}
	require.Equal(t, []ack{
		{Error: "record too large"},
		{ID: "u-9", OK: true},
	}, acks)
}
