package payload

import (
	"encoding/hex"
	"fmt"
	"math"
)

// Encode builds the hex payload the decoder expects for t. Bytes of t.Raw
// past the layout's fixed part are carried over, so decoding a payload and
// encoding it again reproduces it.
//
// Frame (location fixed, offset-micro):
//
//	hdr(1) | battery mV(2) | lat(3) | lon(3) | temp(2) | flags(1)
func Encode(t Telemetry) (string, error) {
	if t.Kind == KindGeneric || t.Kind == "" {
		return hex.EncodeToString(t.Raw), nil
	}
	enc := t.Encoding
	if enc == CoordUnspecified {
		enc = CoordOffsetMicro
	}
	l, ok := lookupLayout(t.Kind, enc)
	if !ok {
		return "", fmt.Errorf("%w: no layout for %s/%s", ErrUnencodable, t.Kind, t.Encoding)
	}

	buf := make([]byte, l.minLen)
	buf[0] = t.Header
	putUint(buf, l.battery, uint32(t.BatteryMillivolts))

	temp := int64(math.Round(t.TemperatureCelsius * 100))
	if !fits(l.temperature, temp) {
		return "", fmt.Errorf("%w: temperature %.2f out of range", ErrUnencodable, t.TemperatureCelsius)
	}
	putUint(buf, l.temperature, uint32(temp))

	if l.latitude.present() {
		if err := encodeCoordinates(buf, l, t.Coordinates); err != nil {
			return "", err
		}
	}
	if l.steps.present() {
		var m Movement
		if t.Movement != nil {
			m = *t.Movement
		}
		putUint(buf, l.steps, uint32(m.Steps))
		buf[l.activity.offset] = m.ActivityLevel
	}

	flags := t.Flags
	if flags.Set == "" {
		flags.Set = l.flagSet
	}
	buf[l.flags.offset] = encodeFlags(flags)

	if len(t.Raw) > l.minLen {
		buf = append(buf, t.Raw[l.minLen:]...)
	}
	return hex.EncodeToString(buf), nil
}

func encodeCoordinates(buf []byte, l layout, c *Coordinates) error {
	if c == nil {
		return fmt.Errorf("%w: location frame without coordinates", ErrUnencodable)
	}
	var lat, lon int64
	switch l.encoding {
	case CoordSignedE7:
		lat = int64(math.Round(c.Latitude * 1e7))
		lon = int64(math.Round(c.Longitude * 1e7))
	default:
		lat = int64(math.Round((c.Latitude + 90) * 1e6))
		lon = int64(math.Round((c.Longitude + 180) * 1e6))
	}
	if !fits(l.latitude, lat) || !fits(l.longitude, lon) {
		return fmt.Errorf("%w: coordinates (%f, %f) not representable in %s", ErrUnencodable, c.Latitude, c.Longitude, l.encoding)
	}
	putUint(buf, l.latitude, uint32(lat))
	putUint(buf, l.longitude, uint32(lon))
	if l.accuracy.present() && c.Accuracy != nil {
		buf[l.accuracy.offset] = *c.Accuracy
	}
	return nil
}
