package measurement

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/wwagdikala/vision/calibration"
)

// DefaultAccuracyThresholdMM is the discrepancy above which a measurement is
// flagged as invalid: 1 millimeter.
const DefaultAccuracyThresholdMM = 1.0

// Position is a single probe position from either the camera rig or the
// reference positioning system.
type Position struct {
	Point r3.Vector `json:"point_mm"`
	// Timestamp is when the measurement was taken.
	Timestamp time.Time `json:"timestamp"`
	// Confidence is 0 to 1; the reference system is trusted at 1.
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Measurement is one probe's paired camera and reference positions.
// Discrepancy and Valid are meaningful only once both sides are present
// (Compared is true).
type Measurement struct {
	ID            uuid.UUID `json:"id"`
	Probe         int       `json:"probe"`
	Camera        *Position `json:"camera,omitempty"`
	Reference     *Position `json:"reference,omitempty"`
	Compared      bool      `json:"compared"`
	DiscrepancyMM float64   `json:"discrepancy_mm"`
	Valid         bool      `json:"valid"`
}

// Session accumulates per-probe measurements, triangulating camera picks and
// matching them against reference positions as they arrive from either side.
type Session struct {
	triangulator *Triangulator
	clock        clock.Clock
	logger       golog.Logger
	thresholdMM  float64
	measurements map[int]*Measurement
	// onWarning fires when a compared measurement exceeds the threshold.
	onWarning func(discrepancyMM float64, msg string)
}

// NewSession returns a measurement session reading calibrations from storage.
func NewSession(storage *calibration.Storage, clk clock.Clock, logger golog.Logger) *Session {
	if clk == nil {
		clk = clock.New()
	}
	return &Session{
		triangulator: NewTriangulator(storage),
		clock:        clk,
		logger:       logger,
		thresholdMM:  DefaultAccuracyThresholdMM,
		measurements: map[int]*Measurement{},
	}
}

// SetAccuracyWarning registers a callback for threshold violations.
func (ms *Session) SetAccuracyWarning(fn func(discrepancyMM float64, msg string)) {
	ms.onWarning = fn
}

// Measure triangulates a probe position from camera picks and folds it into
// the probe's measurement record.
func (ms *Session) Measure(probeID int, picks []PointPick) (*Measurement, error) {
	point, conf, err := ms.triangulator.Triangulate(picks)
	if err != nil {
		return nil, err
	}
	pos := &Position{
		Point:      point,
		Timestamp:  ms.clock.Now(),
		Confidence: conf,
		Source:     "camera",
	}
	m := ms.record(probeID)
	m.Camera = pos
	ms.compare(m)
	return m, nil
}

// AddReferencePosition folds a position from the reference system into the
// probe's measurement record.
func (ms *Session) AddReferencePosition(probeID int, point r3.Vector) *Measurement {
	pos := &Position{
		Point:      point,
		Timestamp:  ms.clock.Now(),
		Confidence: 1.0,
		Source:     "reference",
	}
	m := ms.record(probeID)
	m.Reference = pos
	ms.compare(m)
	return m
}

// Measurement returns the record for a probe, or nil if none exists.
func (ms *Session) Measurement(probeID int) *Measurement {
	return ms.measurements[probeID]
}

func (ms *Session) record(probeID int) *Measurement {
	if m, ok := ms.measurements[probeID]; ok {
		return m
	}
	m := &Measurement{ID: uuid.New(), Probe: probeID}
	ms.measurements[probeID] = m
	return m
}

func (ms *Session) compare(m *Measurement) {
	if m.Camera == nil || m.Reference == nil {
		return
	}
	m.DiscrepancyMM = m.Camera.Point.Sub(m.Reference.Point).Norm()
	m.Compared = true
	m.Valid = m.DiscrepancyMM <= ms.thresholdMM
	if !m.Valid {
		msg := "measurement accuracy exceeds threshold"
		ms.logger.Warnw(msg, "probe", m.Probe, "discrepancy_mm", m.DiscrepancyMM, "threshold_mm", ms.thresholdMM)
		if ms.onWarning != nil {
			ms.onWarning(m.DiscrepancyMM, msg)
		}
	}
}
