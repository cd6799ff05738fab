package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"tracker-codec/internal/observability"
	"tracker-codec/internal/payload"
	"tracker-codec/internal/uplink"
)

var ErrDuplicate = errors.New("pipeline: duplicate uplink")

// liveWindow: uplinks más viejos se consideran reenvío de buffer.
const liveWindow = 120 * time.Second

// Sink recibe cada trackeo decodificado.
type Sink interface {
	Name() string
	Save(ctx context.Context, tr *TrackingObject) error
}

// Deduper indica si una huella se ve por primera vez.
type Deduper interface {
	MarkSeen(ctx context.Context, fingerprint string) (bool, error)
}

// OptionsResolver devuelve las opciones del codec para un dispositivo.
type OptionsResolver func(devEUI string) []payload.Option

type Processor struct {
	sinks   []Sink
	dedup   Deduper
	resolve OptionsResolver
	log     *logrus.Entry
	now     func() time.Time
}

type Option func(*Processor)

func WithSinks(sinks ...Sink) Option {
	return func(p *Processor) { p.sinks = append(p.sinks, sinks...) }
}

func WithDeduper(d Deduper) Option {
	return func(p *Processor) { p.dedup = d }
}

func WithOptionsResolver(r OptionsResolver) Option {
	return func(p *Processor) { p.resolve = r }
}

func WithLogger(lg *logrus.Logger) Option {
	return func(p *Processor) { p.log = observability.Component(lg, "pipeline") }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		log: observability.Component(nil, "pipeline"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process decodifica un uplink y lo reparte a los destinos. Sólo el hex
// malformado y los duplicados son errores; un destino que falla se registra
// y no detiene a los demás.
func (p *Processor) Process(ctx context.Context, rec uplink.Record) (*TrackingObject, error) {
	observability.UplinksRecv.WithLabelValues(strconv.Itoa(int(rec.FPort))).Inc()
	log := p.log.WithFields(logrus.Fields{"dev_eui": rec.DevEUI, "f_cnt": rec.FCnt, "f_port": rec.FPort})

	if p.dedup != nil {
		first, err := p.dedup.MarkSeen(ctx, rec.Fingerprint())
		if err != nil {
			log.WithError(err).Warn("dedup check failed, processing anyway")
		} else if !first {
			observability.Duplicates.Inc()
			return nil, ErrDuplicate
		}
	}

	var opts []payload.Option
	if p.resolve != nil {
		opts = p.resolve(rec.DevEUI)
	}

	start := time.Now()
	analysis, err := payload.Analyze(rec.Hex(), rec.FPort, opts...)
	observability.ObserveDecodeLatency(start)
	if err != nil {
		observability.DecodeErrors.Inc()
		return nil, fmt.Errorf("decode %s f_cnt=%d: %w", rec.DevEUI, rec.FCnt, err)
	}

	t := analysis.Telemetry
	if t.Short {
		observability.ShortPayloads.Inc()
	}
	if t.Kind != payload.KindGeneric && !analysis.Plausible {
		observability.ImplausibleRecords.Inc()
	}
	observability.DiagnosticsEmitted.Add(float64(len(analysis.Diagnostics)))

	tr := BuildTracking(rec, analysis, DecideMsgType(rec.ReceivedAt, p.now()))
	log.WithFields(logrus.Fields{"kind": tr.Kind, "fix": tr.Fix, "diagnostics": len(tr.Diagnostics)}).Debug("uplink decoded")

	for _, s := range p.sinks {
		if err := s.Save(ctx, tr); err != nil {
			observability.SinkErrors.WithLabelValues(s.Name()).Inc()
			log.WithError(err).WithField("sink", s.Name()).Warn("sink failed")
		}
	}
	return tr, nil
}

func coordsValid(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

// CalcFix: 1 si el frame trae coordenadas válidas y el header o los flags
// indican posición fijada.
func CalcFix(t payload.Telemetry) int {
	c := t.Coordinates
	if c == nil || !coordsValid(c.Latitude, c.Longitude) {
		return 0
	}
	if t.PositionFixed() || t.Flags.GPSFixed || t.Flags.PositionFixed {
		return 1
	}
	return 0
}

func DecideMsgType(receivedAt, now time.Time) int {
	if !receivedAt.IsZero() && now.Sub(receivedAt) > liveWindow {
		return 0
	}
	return 1
}

func BuildTracking(rec uplink.Record, a payload.Analysis, msgType int) *TrackingObject {
	t := a.Telemetry
	tr := &TrackingObject{
		ID:          rec.ID,
		DevEUI:      rec.DevEUI,
		FPort:       uint8(rec.FPort),
		FCnt:        rec.FCnt,
		Datetime:    rec.ReceivedAt.UTC(),
		Payload:     a.HexPayload,
		Kind:        t.Kind,
		RSSI:        rec.RSSI,
		SNR:         rec.SNR,
		Integrity:   a.Integrity,
		Plausible:   a.Plausible,
		Consistent:  a.Consistent,
		Short:       t.Short,
		Diagnostics: a.Diagnostics,
		MsgType:     msgType,
		Fix:         CalcFix(t),
	}
	if t.Kind == payload.KindGeneric {
		return tr
	}

	tr.BatteryMV = t.BatteryMillivolts
	tr.BatteryPct = t.BatteryPercent
	tr.TempC = t.TemperatureCelsius
	tr.StatusRaw = t.Flags.Raw
	tr.Flags = t.Flags.Values()
	if c := t.Coordinates; c != nil {
		tr.Encoding = t.Encoding.String()
		tr.Lat, tr.Lon, tr.Accuracy = c.Latitude, c.Longitude, c.Accuracy
	}
	if m := t.Movement; m != nil {
		steps, act := m.Steps, m.ActivityLevel
		tr.Steps, tr.Activity = &steps, &act
	}
	return tr
}
