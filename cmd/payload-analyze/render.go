package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"tracker-codec/internal/payload"
)

func render(w io.Writer, a payload.Analysis) {
	t := a.Telemetry
	fmt.Fprintf(w, "payload      %s (%s)\n", a.HexPayload, humanize.Bytes(uint64(t.Size)))

	switch t.Kind {
	case payload.KindGeneric:
		note := ""
		if t.Short {
			note = ", too short for its frame type"
		}
		fmt.Fprintf(w, "frame        generic (f_port %d%s)\n", t.Port, note)
	case payload.KindLocationFixed:
		fmt.Fprintf(w, "frame        %s (f_port %d, %s)\n", t.Kind, t.Port, t.Encoding)
	default:
		fmt.Fprintf(w, "frame        %s (f_port %d)\n", t.Kind, t.Port)
	}

	if t.Kind != payload.KindGeneric {
		fmt.Fprintf(w, "battery      %.3f V (%d%%)\n", t.BatteryVolts(), t.BatteryPercent)
		if c := t.Coordinates; c != nil {
			fmt.Fprintf(w, "position     %.7f, %.7f", c.Latitude, c.Longitude)
			if c.Accuracy != nil {
				fmt.Fprintf(w, " ±%d m", *c.Accuracy)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "temperature  %.2f °C\n", t.TemperatureCelsius)
		if m := t.Movement; m != nil {
			fmt.Fprintf(w, "movement     %s steps, activity %d\n", humanize.Comma(int64(m.Steps)), m.ActivityLevel)
		}
		fmt.Fprintf(w, "flags        0x%02X [%s] %s\n", t.Flags.Raw, t.Flags.Set, strings.Join(activeFlags(t.Flags), " "))
	}

	fmt.Fprintf(w, "checks       integrity=%s plausibility=%s consistency=%s\n",
		verdict(a.Integrity), verdict(a.Plausible), verdict(a.Consistent))
	for _, d := range a.Diagnostics {
		fmt.Fprintf(w, "  ! %s\n", d)
	}
}

func activeFlags(f payload.StatusFlags) []string {
	values := f.Values()
	var out []string
	for _, name := range payload.FlagNames(f.Set) {
		if values[name] {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return []string{"-"}
	}
	return out
}

func verdict(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}
