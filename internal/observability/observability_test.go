package observability

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, "debug")
	require.Equal(t, logrus.DebugLevel, lg.GetLevel())

	Component(lg, "pipeline").WithField("dev_eui", "a840").Debug("decoded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "pipeline", line["component"])
	require.Equal(t, "a840", line["dev_eui"])
	require.Equal(t, "decoded", line["msg"])
}

func TestNewLoggerBadLevel(t *testing.T) {
	lg := newLogger(&bytes.Buffer{}, "loud")
	require.Equal(t, logrus.InfoLevel, lg.GetLevel())
}

func TestObserveDecodeLatency(t *testing.T) {
	before := testutil.CollectAndCount(DecodeLatency)
	ObserveDecodeLatency(time.Now())
	require.Equal(t, before, testutil.CollectAndCount(DecodeLatency))
	require.NotNil(t, Handler())
}
