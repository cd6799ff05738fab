package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tracker-codec/internal/payload"
)

const sampleHex = "011d9000000309026a83f905c7433628695d116d"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "TCP_PORT", "HTTP_PORT", "GRPC_FORWARDER", "REDIS_ADDR",
		"REDIS_DB", "SQLITE_PATH", "FEED_ADDR", "LOG_LEVEL", "RAW_LOG_DIR",
		"DEFAULT_ENCODING", "DEDUP_TTL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8001", cfg.TCPPort)
	require.Equal(t, "9000", cfg.HTTPPort)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, "offset-micro", cfg.DefaultEncoding)
	require.Equal(t, 10*time.Minute, cfg.DedupTTL)
	require.Empty(t, cfg.FeedAddr)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tcpPort: "7000"
redisDB: 2
dedupTTL: 90s
defaultEncoding: signed-e7
devices:
  A84041000181C2E1:
    encoding: offset-micro
    flagSet: fix
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TCP_PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "7100", cfg.TCPPort)
	require.Equal(t, 2, cfg.RedisDB)
	require.Equal(t, 90*time.Second, cfg.DedupTTL)
	require.Equal(t, "signed-e7", cfg.DefaultEncoding)
	require.Equal(t, DeviceConfig{Encoding: "offset-micro", FlagSet: "fix"}, cfg.Devices["A84041000181C2E1"])
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "redis db", env: map[string]string{"REDIS_DB": "zero"}},
		{name: "dedup ttl", env: map[string]string{"DEDUP_TTL": "soon"}},
		{name: "encoding", env: map[string]string{"DEFAULT_ENCODING": "utm"}},
		{name: "missing file", env: map[string]string{"CONFIG_FILE": "/nonexistent/tracker.yaml"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidateDeviceFlagSet(t *testing.T) {
	cfg := defaults()
	cfg.Devices = map[string]DeviceConfig{"abc": {FlagSet: "sos"}}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestDeviceOptions(t *testing.T) {
	cfg := defaults()
	cfg.Devices = map[string]DeviceConfig{
		"A84041000181C2E1": {Encoding: "signed-e7"},
		"a84041000181c2e2": {FlagSet: "fix"},
	}

	got := payload.DecodeBytes(mustHex(t), payload.PortLocationFixed, cfg.DeviceOptions("a84041000181c2e1")...)
	require.Equal(t, payload.CoordSignedE7, got.Encoding)

	got = payload.DecodeBytes(mustHex(t), payload.PortLocationFixed, cfg.DeviceOptions("A84041000181C2E2")...)
	require.Equal(t, payload.CoordOffsetMicro, got.Encoding)
	require.Equal(t, payload.FlagSetFix, got.Flags.Set)

	got = payload.DecodeBytes(mustHex(t), payload.PortLocationFixed, cfg.DeviceOptions("unknown")...)
	require.Equal(t, payload.CoordOffsetMicro, got.Encoding)
	require.Equal(t, payload.FlagSetAlarm, got.Flags.Set)
}

func mustHex(t *testing.T) []byte {
	t.Helper()
	b, err := payload.ParseHex(sampleHex)
	require.NoError(t, err)
	return b
}
