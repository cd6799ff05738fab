package pipeline

import (
	"time"

	"tracker-codec/internal/payload"
)

// TrackingObject es la vista de un uplink decodificado que se entrega a los
// destinos (Redis, SQLite, forwarder gRPC).
type TrackingObject struct {
	ID       string    `json:"id"`
	DevEUI   string    `json:"dev_eui"`
	FPort    uint8     `json:"f_port"`
	FCnt     uint32    `json:"f_cnt"`
	Datetime time.Time `json:"dt"`
	Payload  string    `json:"payload"`

	Kind     payload.FrameKind `json:"kind"`
	Encoding string            `json:"encoding,omitempty"`

	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy *uint8  `json:"accuracy,omitempty"`

	BatteryMV  uint16  `json:"battery_mv"`
	BatteryPct int     `json:"battery_pct"`
	TempC      float64 `json:"temp_c"`
	Steps      *uint16 `json:"steps,omitempty"`
	Activity   *uint8  `json:"activity,omitempty"`

	StatusRaw byte            `json:"status_raw"`
	Flags     map[string]bool `json:"flags,omitempty"`

	RSSI float64 `json:"rssi,omitempty"`
	SNR  float64 `json:"snr,omitempty"`

	Integrity   bool     `json:"integrity"`
	Plausible   bool     `json:"plausible"`
	Consistent  bool     `json:"consistent"`
	Short       bool     `json:"short,omitempty"`
	Diagnostics []string `json:"diagnostics"`

	MsgType int `json:"msg_type"` // 1=live, 0=buffer
	Fix     int `json:"fix"`      // 1 si hay fix y coords válidas
}
