package uplink

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	r, err := Parse([]byte(`{"dev_eui":" A84041000181C2E1 ","f_port":2,"f_cnt":17,"payload":"011D90 0000","rssi":-97.5,"snr":7.25}`))
	require.NoError(t, err)
	require.Equal(t, "a84041000181c2e1", r.DevEUI)
	require.EqualValues(t, 2, r.FPort)
	require.EqualValues(t, 17, r.FCnt)
	require.Equal(t, "011d900000", r.Hex())
	require.Equal(t, -97.5, r.RSSI)
	require.False(t, r.ReceivedAt.IsZero())
	_, err = uuid.Parse(r.ID)
	require.NoError(t, err)
}

func TestParseRawPayloadAlias(t *testing.T) {
	r, err := Parse([]byte(`{"id":"u-1","dev_eui":"abc","f_port":1,"raw_payload":"00ff","received_at":"2026-10-01T08:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, "u-1", r.ID)
	require.Equal(t, "00ff", r.Hex())
	require.Equal(t, time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC), r.ReceivedAt.UTC())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "not json", in: `dev_eui=abc`, want: ErrInvalidRecord},
		{name: "no device", in: `{"payload":"00"}`, want: ErrMissingDevEUI},
		{name: "no payload", in: `{"dev_eui":"abc","payload":"  "}`, want: ErrMissingPayload},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Record{DevEUI: "ABC", FCnt: 5, Payload: "01 02", ID: "gw-1"}
	b := Record{DevEUI: "abc", FCnt: 5, Payload: "0102", ID: "gw-2", RSSI: -120}
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Len(t, a.Fingerprint(), 32)

	c := b
	c.FCnt = 6
	require.NotEqual(t, b.Fingerprint(), c.Fingerprint())

	d := b
	d.Payload = "0103"
	require.NotEqual(t, b.Fingerprint(), d.Fingerprint())
}
