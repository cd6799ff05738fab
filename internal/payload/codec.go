package payload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnencodable      = errors.New("telemetry not encodable")
)

const (
	batteryEmptyMV = 3000
	batteryFullMV  = 4200
)

type options struct {
	encoding CoordinateEncoding
	flagSet  FlagSet
}

type Option func(*options)

// WithCoordinateEncoding selects the firmware coordinate convention for
// Location Fixed frames.
func WithCoordinateEncoding(e CoordinateEncoding) Option {
	return func(o *options) { o.encoding = e }
}

// WithFlagSet overrides the frame type's default status bit meanings.
func WithFlagSet(fs FlagSet) Option {
	return func(o *options) { o.flagSet = fs }
}

func buildOptions(opts []Option) options {
	o := options{encoding: CoordOffsetMicro}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.encoding == CoordUnspecified {
		o.encoding = CoordOffsetMicro
	}
	return o
}

// ParseHex strips whitespace and decodes an even-length hex string.
func ParseHex(s string) ([]byte, error) {
	clean := stripWhitespace(s)
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("%w: hex must contain an even number of digits, got %d", ErrMalformedPayload, len(clean))
	}
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return out, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Decode parses hexPayload and decodes it with the layout selected by port.
// Only malformed hex is an error; short frames fall back to a generic result.
func Decode(hexPayload string, port FramePort, opts ...Option) (Telemetry, error) {
	raw, err := ParseHex(hexPayload)
	if err != nil {
		return Telemetry{}, err
	}
	return DecodeBytes(raw, port, opts...), nil
}

// DecodeBytes decodes an already parsed payload. raw is never modified.
func DecodeBytes(raw []byte, port FramePort, opts ...Option) Telemetry {
	o := buildOptions(opts)
	kind := KindForPort(port)

	l, ok := lookupLayout(kind, o.encoding)
	if !ok {
		return generic(raw, port, false)
	}
	if len(raw) < l.minLen {
		return generic(raw, port, true)
	}

	flagSet := l.flagSet
	if o.flagSet != "" {
		flagSet = o.flagSet
	}

	mv := uint16(readUint(raw, l.battery))
	t := Telemetry{
		Kind:               l.kind,
		Port:               port,
		Encoding:           l.encoding,
		Header:             raw[0],
		BatteryMillivolts:  mv,
		BatteryPercent:     batteryPercent(mv),
		TemperatureCelsius: float64(readInt(raw, l.temperature)) / 100,
		Flags:              decodeFlags(flagSet, raw[l.flags.offset]),
		Raw:                slices.Clone(raw),
		Size:               len(raw),
	}

	if l.latitude.present() {
		t.Coordinates = decodeCoordinates(raw, l)
	}
	if l.steps.present() {
		t.Movement = &Movement{
			Steps:         uint16(readUint(raw, l.steps)),
			ActivityLevel: raw[l.activity.offset],
		}
	}
	return t
}

func generic(raw []byte, port FramePort, short bool) Telemetry {
	return Telemetry{
		Kind:  KindGeneric,
		Port:  port,
		Raw:   slices.Clone(raw),
		Size:  len(raw),
		Short: short,
	}
}

func decodeCoordinates(raw []byte, l layout) *Coordinates {
	c := &Coordinates{}
	switch l.encoding {
	case CoordSignedE7:
		c.Latitude = float64(readInt(raw, l.latitude)) / 1e7
		c.Longitude = float64(readInt(raw, l.longitude)) / 1e7
	default:
		c.Latitude = float64(readUint(raw, l.latitude))/1e6 - 90
		c.Longitude = float64(readUint(raw, l.longitude))/1e6 - 180
	}
	if l.accuracy.present() {
		acc := raw[l.accuracy.offset]
		c.Accuracy = &acc
	}
	return c
}

// batteryPercent maps 3000..4200 mV linearly onto 0..100, clamped.
func batteryPercent(mv uint16) int {
	v := min(max(int(mv), batteryEmptyMV), batteryFullMV)
	return int(math.Round(float64(v-batteryEmptyMV) / float64(batteryFullMV-batteryEmptyMV) * 100))
}

// Analyze decodes hexPayload and runs every check over it.
func Analyze(hexPayload string, port FramePort, opts ...Option) (Analysis, error) {
	raw, err := ParseHex(hexPayload)
	if err != nil {
		return Analysis{}, err
	}
	t := DecodeBytes(raw, port, opts...)
	diags := slices.Collect(Diagnostics(raw, port, opts...))
	if diags == nil {
		diags = []string{}
	}
	return Analysis{
		HexPayload:  hex.EncodeToString(raw),
		Telemetry:   t,
		Integrity:   CheckIntegrity(raw, port, opts...),
		Plausible:   CheckPlausibility(t),
		Consistent:  CheckConsistency(raw),
		Diagnostics: diags,
	}, nil
}
