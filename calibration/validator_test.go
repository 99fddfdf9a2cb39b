package calibration

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestPhysicalRMSCleanViews(t *testing.T) {
	logger := golog.NewTestLogger(t)
	rig := twoCameraRig()
	store := NewObservationStore()
	recordCleanViews(t, store, rig, planarGrid(), 5)

	rms, ok := NewValidator(logger).PhysicalRMS(rig[0], rig[1], store)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rms, test.ShouldBeLessThan, 1e-6)
}

func TestPhysicalRMSExcludesOutlierView(t *testing.T) {
	logger := golog.NewTestLogger(t)
	rig := twoCameraRig()
	store := NewObservationStore()
	test.That(t, store.BeginSession(2), test.ShouldBeNil)

	template := planarGrid()
	clean0 := mustProjectView(t, rig[0], template)
	clean1 := mustProjectView(t, rig[1], template)
	for viewIdx := 0; viewIdx < 6; viewIdx++ {
		det0 := clean0
		if viewIdx == 3 {
			// mis-detected pattern, 40 pixels off in one camera
			det0 = make([]r2.Point, len(clean0))
			for i, p := range clean0 {
				det0[i] = r2.Point{X: p.X + 40, Y: p.Y - 40}
			}
		}
		_, err := store.RecordView(viewIdx, template, [][]r2.Point{det0, clean1})
		test.That(t, err, test.ShouldBeNil)
	}

	// an unscreened mean over all six views would be tens of millimeters
	rms, ok := NewValidator(logger).PhysicalRMS(rig[0], rig[1], store)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rms, test.ShouldBeLessThan, 0.01)
}

func TestPhysicalRMSNoOverlap(t *testing.T) {
	logger := golog.NewTestLogger(t)
	rig := twoCameraRig()
	store := NewObservationStore()
	test.That(t, store.BeginSession(2), test.ShouldBeNil)

	template := planarGrid()
	// the cameras never see the target at the same time
	_, err := store.RecordView(0, template, [][]r2.Point{mustProjectView(t, rig[0], template), nil})
	test.That(t, err, test.ShouldBeNil)
	_, err = store.RecordView(1, template, [][]r2.Point{nil, mustProjectView(t, rig[1], template)})
	test.That(t, err, test.ShouldBeNil)

	_, ok := NewValidator(logger).PhysicalRMS(rig[0], rig[1], store)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPhysicalRMSBadIntrinsics(t *testing.T) {
	logger := golog.NewTestLogger(t)
	rig := twoCameraRig()
	store := NewObservationStore()
	recordCleanViews(t, store, rig, planarGrid(), 2)

	broken := rig[0].Clone()
	broken.CameraMatrix = nil
	_, ok := NewValidator(logger).PhysicalRMS(broken, rig[1], store)
	test.That(t, ok, test.ShouldBeFalse)
}
