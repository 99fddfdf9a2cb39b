package measurement

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestSessionMeasureAndCompare(t *testing.T) {
	logger := golog.NewTestLogger(t)
	storage := calibratedStorage()
	mockClock := clock.NewMock()
	session := NewSession(storage, mockClock, logger)

	world := r3.Vector{X: 25, Y: 40, Z: 10}
	m, err := session.Measure(3, pickPoint(t, storage, world))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Probe, test.ShouldEqual, 3)
	test.That(t, m.Camera, test.ShouldNotBeNil)
	test.That(t, m.Camera.Source, test.ShouldEqual, "camera")
	test.That(t, m.Camera.Timestamp, test.ShouldResemble, mockClock.Now())
	test.That(t, m.Compared, test.ShouldBeFalse)

	mockClock.Add(250 * time.Millisecond)
	// reference agrees to within a fraction of a millimeter
	got := session.AddReferencePosition(3, world.Add(r3.Vector{X: 0.1, Y: -0.2, Z: 0.05}))
	test.That(t, got, test.ShouldEqual, m)
	test.That(t, m.Compared, test.ShouldBeTrue)
	test.That(t, m.Valid, test.ShouldBeTrue)
	test.That(t, m.DiscrepancyMM, test.ShouldBeLessThan, 0.3)
	test.That(t, m.Reference.Confidence, test.ShouldEqual, 1.0)
	test.That(t, m.Reference.Timestamp.Sub(m.Camera.Timestamp), test.ShouldEqual, 250*time.Millisecond)

	test.That(t, session.Measurement(3), test.ShouldEqual, m)
	test.That(t, session.Measurement(99), test.ShouldBeNil)
}

func TestSessionAccuracyWarning(t *testing.T) {
	logger := golog.NewTestLogger(t)
	storage := calibratedStorage()
	session := NewSession(storage, clock.NewMock(), logger)

	var warned float64
	session.SetAccuracyWarning(func(discrepancyMM float64, msg string) {
		warned = discrepancyMM
	})

	world := r3.Vector{X: 25, Y: 40, Z: 10}
	// reference arrives first, 3 mm away from where the cameras will see it
	session.AddReferencePosition(1, world.Add(r3.Vector{X: 3}))
	m, err := session.Measure(1, pickPoint(t, storage, world))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Compared, test.ShouldBeTrue)
	test.That(t, m.Valid, test.ShouldBeFalse)
	test.That(t, m.DiscrepancyMM, test.ShouldAlmostEqual, 3, 1e-3)
	test.That(t, warned, test.ShouldAlmostEqual, 3, 1e-3)
}

func TestSessionMeasureWithoutCalibration(t *testing.T) {
	logger := golog.NewTestLogger(t)
	storage := calibratedStorage()
	session := NewSession(storage, nil, logger)
	storage.Clear()

	_, err := session.Measure(0, []PointPick{{Camera: 0}, {Camera: 1}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, session.Measurement(0), test.ShouldBeNil)
}
