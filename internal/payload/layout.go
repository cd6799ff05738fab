package payload

import (
	"fmt"
	"strings"
)

// FramePort is the LoRaWAN fPort of the uplink; it selects the decoding table.
type FramePort uint8

const (
	PortStatusUpdate  FramePort = 1
	PortLocationFixed FramePort = 2
)

type FrameKind string

const (
	KindGeneric       FrameKind = "generic"
	KindLocationFixed FrameKind = "location_fixed"
	KindStatusUpdate  FrameKind = "status_update"
)

// KindForPort maps an fPort onto its frame type. Unknown ports are generic.
func KindForPort(port FramePort) FrameKind {
	switch port {
	case PortLocationFixed:
		return KindLocationFixed
	case PortStatusUpdate:
		return KindStatusUpdate
	default:
		return KindGeneric
	}
}

// CoordinateEncoding selects how the firmware packs latitude/longitude in a
// Location Fixed frame. Two incompatible conventions exist in the field.
type CoordinateEncoding int

const (
	// CoordUnspecified marks telemetry without coordinates. Options and
	// Encode treat it as CoordOffsetMicro.
	CoordUnspecified CoordinateEncoding = iota
	// CoordOffsetMicro: unsigned 24-bit, 1e-6 degrees, shifted by +90/+180.
	CoordOffsetMicro
	// CoordSignedE7: signed 32-bit, 1e-7 degrees, centred on zero, followed
	// by a GPS accuracy byte.
	CoordSignedE7
)

var encodingNames = map[CoordinateEncoding]string{
	CoordOffsetMicro: "offset-micro",
	CoordSignedE7:    "signed-e7",
}

func (e CoordinateEncoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

func (e CoordinateEncoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *CoordinateEncoding) UnmarshalText(b []byte) error {
	v, err := ParseCoordinateEncoding(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseCoordinateEncoding accepts the names returned by String. An empty
// string yields the default encoding.
func ParseCoordinateEncoding(s string) (CoordinateEncoding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CoordOffsetMicro, nil
	}
	for e, name := range encodingNames {
		if name == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown coordinate encoding %q", s)
}

// FlagSet names one interpretation of the status byte. The same bits mean
// different things depending on firmware and frame type.
type FlagSet string

const (
	FlagSetAlarm  FlagSet = "alarm"
	FlagSetMotion FlagSet = "motion"
	FlagSetFix    FlagSet = "fix"
)

func ParseFlagSet(s string) (FlagSet, error) {
	switch fs := FlagSet(strings.ToLower(strings.TrimSpace(s))); fs {
	case FlagSetAlarm, FlagSetMotion, FlagSetFix:
		return fs, nil
	default:
		return "", fmt.Errorf("unknown flag set %q", s)
	}
}

type flagDef struct {
	mask byte
	name string
	get  func(*StatusFlags) *bool
}

var flagDefs = map[FlagSet][]flagDef{
	FlagSetAlarm: {
		{0x01, "man_down", func(f *StatusFlags) *bool { return &f.ManDown }},
		{0x02, "motion_detected", func(f *StatusFlags) *bool { return &f.MotionDetected }},
		{0x04, "battery_critical", func(f *StatusFlags) *bool { return &f.BatteryCritical }},
		{0x08, "gps_fixed", func(f *StatusFlags) *bool { return &f.GPSFixed }},
	},
	FlagSetMotion: {
		{0x01, "man_down", func(f *StatusFlags) *bool { return &f.ManDown }},
		{0x02, "motion_detected", func(f *StatusFlags) *bool { return &f.MotionDetected }},
	},
	FlagSetFix: {
		{0x01, "position_fixed", func(f *StatusFlags) *bool { return &f.PositionFixed }},
		{0x02, "motion_detected", func(f *StatusFlags) *bool { return &f.MotionDetected }},
	},
}

// FlagNames lists the flags a set defines, lowest bit first.
func FlagNames(set FlagSet) []string {
	defs := flagDefs[set]
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.name)
	}
	return out
}

// Values maps each flag name of the set to its state.
func (f StatusFlags) Values() map[string]bool {
	defs := flagDefs[f.Set]
	out := make(map[string]bool, len(defs))
	for _, def := range defs {
		out[def.name] = *def.get(&f)
	}
	return out
}

func decodeFlags(set FlagSet, raw byte) StatusFlags {
	f := StatusFlags{Raw: raw, Set: set}
	for _, def := range flagDefs[set] {
		*def.get(&f) = raw&def.mask != 0
	}
	return f
}

// encodeFlags rebuilds the status byte from the named booleans; bits the set
// does not name are taken from Raw.
func encodeFlags(f StatusFlags) byte {
	var named byte
	out := byte(0)
	for _, def := range flagDefs[f.Set] {
		named |= def.mask
		if *def.get(&f) {
			out |= def.mask
		}
	}
	return out | (f.Raw &^ named)
}

// field is a fixed-width big-endian integer at a fixed offset. width 0 means
// the layout does not carry the field.
type field struct {
	offset int
	width  int
	signed bool
}

func (f field) present() bool { return f.width > 0 }

func (f field) end() int { return f.offset + f.width }

type layout struct {
	kind     FrameKind
	encoding CoordinateEncoding
	minLen   int

	battery     field
	latitude    field
	longitude   field
	accuracy    field
	temperature field
	steps       field
	activity    field
	flags       field

	flagSet FlagSet
}

type layoutKey struct {
	kind     FrameKind
	encoding CoordinateEncoding
}

var layouts = map[layoutKey]layout{
	{KindLocationFixed, CoordOffsetMicro}: {
		kind:        KindLocationFixed,
		encoding:    CoordOffsetMicro,
		minLen:      12,
		battery:     field{offset: 1, width: 2},
		latitude:    field{offset: 3, width: 3},
		longitude:   field{offset: 6, width: 3},
		temperature: field{offset: 9, width: 2, signed: true},
		flags:       field{offset: 11, width: 1},
		flagSet:     FlagSetAlarm,
	},
	{KindLocationFixed, CoordSignedE7}: {
		kind:        KindLocationFixed,
		encoding:    CoordSignedE7,
		minLen:      15,
		battery:     field{offset: 1, width: 2},
		latitude:    field{offset: 3, width: 4, signed: true},
		longitude:   field{offset: 7, width: 4, signed: true},
		accuracy:    field{offset: 11, width: 1},
		temperature: field{offset: 12, width: 2, signed: true},
		flags:       field{offset: 14, width: 1},
		flagSet:     FlagSetAlarm,
	},
}

// Status Update frames carry no coordinates, so the encoding does not apply.
var statusUpdateLayout = layout{
	kind:        KindStatusUpdate,
	minLen:      10,
	battery:     field{offset: 1, width: 2},
	temperature: field{offset: 3, width: 2, signed: true},
	steps:       field{offset: 5, width: 2},
	activity:    field{offset: 7, width: 1},
	flags:       field{offset: 8, width: 1},
	flagSet:     FlagSetMotion,
}

// lookupLayout returns the descriptor for a frame type; ok is false for
// generic frames.
func lookupLayout(kind FrameKind, enc CoordinateEncoding) (layout, bool) {
	switch kind {
	case KindStatusUpdate:
		return statusUpdateLayout, true
	case KindLocationFixed:
		l, ok := layouts[layoutKey{kind, enc}]
		return l, ok
	default:
		return layout{}, false
	}
}

// MinLength reports the minimum byte count of a frame type, 0 for generic.
func MinLength(port FramePort, opts ...Option) int {
	o := buildOptions(opts)
	l, ok := lookupLayout(KindForPort(port), o.encoding)
	if !ok {
		return 0
	}
	return l.minLen
}

// readUint reads an unsigned big-endian integer of 1..4 bytes.
func readUint(data []byte, f field) uint32 {
	var v uint32
	for _, b := range data[f.offset:f.end()] {
		v = v<<8 | uint32(b)
	}
	return v
}

// readInt applies two's complement when the field is signed.
func readInt(data []byte, f field) int64 {
	v := int64(readUint(data, f))
	if f.signed {
		bits := uint(f.width * 8)
		if v >= 1<<(bits-1) {
			v -= 1 << bits
		}
	}
	return v
}

func putUint(dst []byte, f field, v uint32) {
	for i := f.width - 1; i >= 0; i-- {
		dst[f.offset+i] = byte(v)
		v >>= 8
	}
}

// fits reports whether v is representable in the field.
func fits(f field, v int64) bool {
	bits := uint(f.width * 8)
	if f.signed {
		return v >= -(1<<(bits-1)) && v < 1<<(bits-1)
	}
	return v >= 0 && v < 1<<bits
}
