// Package uplink models one LoRaWAN uplink as delivered by the network
// server feed: device identity, frame counters, radio metadata and the hex
// body the codec decodes.
package uplink

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"tracker-codec/internal/payload"
)

var (
	ErrInvalidRecord  = errors.New("uplink: invalid record")
	ErrMissingDevEUI  = errors.New("uplink: dev_eui required")
	ErrMissingPayload = errors.New("uplink: payload required")
)

type Record struct {
	ID         string            `json:"id"`
	DevEUI     string            `json:"dev_eui"`
	FPort      payload.FramePort `json:"f_port"`
	FCnt       uint32            `json:"f_cnt"`
	Payload    string            `json:"payload,omitempty"`
	RawPayload string            `json:"raw_payload,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	RSSI       float64           `json:"rssi,omitempty"`
	SNR        float64           `json:"snr,omitempty"`
}

// Parse decodes one JSON record and normalizes it.
func Parse(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := r.Normalize(time.Now().UTC()); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Normalize validates the record and fills the fields the feed may omit:
// an ID, the receive time and the payload when only raw_payload was sent.
func (r *Record) Normalize(now time.Time) error {
	r.DevEUI = strings.ToLower(strings.TrimSpace(r.DevEUI))
	if r.DevEUI == "" {
		return ErrMissingDevEUI
	}
	if strings.TrimSpace(r.Payload) == "" {
		r.Payload = r.RawPayload
	}
	if strings.TrimSpace(r.Payload) == "" {
		return ErrMissingPayload
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = now
	}
	return nil
}

// Hex returns the payload lowercased with whitespace removed.
func (r Record) Hex() string {
	return strings.ToLower(strings.Join(strings.Fields(r.Payload), ""))
}

// Fingerprint identifies the uplink independently of the gateway that heard
// it, so copies relayed by several gateways collapse to one.
func (r Record) Fingerprint() string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(strings.ToLower(r.DevEUI)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(uint64(r.FCnt), 10)))
	h.Write([]byte{0})
	h.Write([]byte(r.Hex()))
	return hex.EncodeToString(h.Sum(nil))
}
