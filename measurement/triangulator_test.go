package measurement

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/wwagdikala/vision/calibration"
	"github.com/wwagdikala/vision/transform"
)

// calibratedStorage publishes a two-camera stereo rig.
func calibratedStorage() *calibration.Storage {
	k := mat.NewDense(3, 3, []float64{
		900, 0, 960,
		0, 900, 540,
		0, 0, 1,
	})
	storage := calibration.NewStorage()
	storage.Store([]*calibration.CameraParameters{
		{
			CameraMatrix: mat.DenseCopyOf(k),
			DistCoeffs:   make([]float64, 5),
			Rotation:     r3.Vector{X: 0.2, Y: -0.1, Z: 0.05},
			Translation:  r3.Vector{X: -20, Y: -30, Z: 500},
		},
		{
			CameraMatrix: mat.DenseCopyOf(k),
			DistCoeffs:   make([]float64, 5),
			Rotation:     r3.Vector{X: -0.15, Y: 0.25, Z: -0.08},
			Translation:  r3.Vector{X: 180, Y: -30, Z: 520},
		},
	})
	return storage
}

// pickPoint projects a world point into every camera of the stored rig.
func pickPoint(t *testing.T, storage *calibration.Storage, world r3.Vector) []PointPick {
	t.Helper()
	cameras, ok := storage.Get()
	test.That(t, ok, test.ShouldBeTrue)
	picks := make([]PointPick, len(cameras))
	for i, cam := range cameras {
		px, err := transform.ProjectPoint(world, cam.CameraMatrix, nil, cam.Rotation, cam.Translation)
		test.That(t, err, test.ShouldBeNil)
		picks[i] = PointPick{Camera: i, X: px.X, Y: px.Y}
	}
	return picks
}

func TestTriangulateRoundTrip(t *testing.T) {
	storage := calibratedStorage()
	tr := NewTriangulator(storage)

	world := r3.Vector{X: 25, Y: 40, Z: 10}
	point, conf, err := tr.Triangulate(pickPoint(t, storage, world))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf, test.ShouldEqual, 1.0)
	test.That(t, point.Sub(world).Norm(), test.ShouldBeLessThan, 1e-6)
}

func TestTriangulateErrors(t *testing.T) {
	empty := NewTriangulator(calibration.NewStorage())
	_, _, err := empty.Triangulate([]PointPick{{Camera: 0}, {Camera: 1}})
	test.That(t, errors.Is(err, ErrNoCalibration), test.ShouldBeTrue)

	storage := calibratedStorage()
	tr := NewTriangulator(storage)

	_, _, err = tr.Triangulate([]PointPick{{Camera: 0, X: 900, Y: 500}})
	test.That(t, errors.Is(err, ErrTriangulationFailed), test.ShouldBeTrue)

	_, _, err = tr.Triangulate([]PointPick{{Camera: 0, X: 900, Y: 500}, {Camera: 7, X: 900, Y: 500}})
	test.That(t, errors.Is(err, ErrTriangulationFailed), test.ShouldBeTrue)
}

func TestTriangulateSeesNewCalibration(t *testing.T) {
	storage := calibratedStorage()
	tr := NewTriangulator(storage)
	world := r3.Vector{X: 10, Y: 20, Z: 5}
	picks := pickPoint(t, storage, world)

	// clearing the calibration takes effect on the next call
	storage.Clear()
	_, _, err := tr.Triangulate(picks)
	test.That(t, errors.Is(err, ErrNoCalibration), test.ShouldBeTrue)
}

func TestConfidence(t *testing.T) {
	test.That(t, confidence(0), test.ShouldEqual, 0.0)
	test.That(t, confidence(1), test.ShouldEqual, 0.0)
	test.That(t, confidence(2), test.ShouldEqual, 1.0)
	test.That(t, confidence(4), test.ShouldEqual, 1.0)
}
