package payload

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Accuracy is only reported by signed-e7 firmware.
	Accuracy *uint8 `json:"accuracy,omitempty"`
}

type StatusFlags struct {
	Raw byte    `json:"raw"`
	Set FlagSet `json:"set"`

	ManDown         bool `json:"man_down"`
	MotionDetected  bool `json:"motion_detected"`
	BatteryCritical bool `json:"battery_critical"`
	GPSFixed        bool `json:"gps_fixed"`
	PositionFixed   bool `json:"position_fixed"`
}

type Movement struct {
	Steps         uint16 `json:"steps"`
	ActivityLevel uint8  `json:"activity_level"`
}

// Telemetry is the decoded view of one uplink body. Generic results only
// carry Raw and Size.
type Telemetry struct {
	Kind     FrameKind          `json:"kind"`
	Port     FramePort          `json:"f_port"`
	Encoding CoordinateEncoding `json:"coordinate_encoding,omitempty"`

	Header             byte         `json:"header"`
	BatteryMillivolts  uint16       `json:"battery_mv"`
	BatteryPercent     int          `json:"battery_pct"`
	Coordinates        *Coordinates `json:"coordinates,omitempty"`
	TemperatureCelsius float64      `json:"temperature_c"`
	Flags              StatusFlags  `json:"flags"`
	Movement           *Movement    `json:"movement,omitempty"`

	Raw  []byte `json:"raw"`
	Size int    `json:"size"`
	// Short marks a known frame type below its minimum length.
	Short bool `json:"short,omitempty"`
}

// BatteryVolts returns the battery voltage in volts.
func (t Telemetry) BatteryVolts() float64 {
	return float64(t.BatteryMillivolts) / 1000
}

// PositionFixed reports the header "position fixed" bit.
func (t Telemetry) PositionFixed() bool {
	return t.Header&0x01 == 0x01
}

// Analysis bundles a decoded payload with its diagnostic checks.
type Analysis struct {
	HexPayload  string    `json:"hex_payload"`
	Telemetry   Telemetry `json:"telemetry"`
	Integrity   bool      `json:"integrity"`
	Plausible   bool      `json:"plausibility"`
	Consistent  bool      `json:"consistency"`
	Diagnostics []string  `json:"diagnostics"`
}
