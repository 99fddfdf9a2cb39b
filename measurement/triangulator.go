// Package measurement turns 2D point picks from calibrated cameras into 3D
// positions and compares them against a reference positioning system.
package measurement

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/wwagdikala/vision/calibration"
	"github.com/wwagdikala/vision/transform"
)

var (
	// ErrNoCalibration is when no stored calibration exists.
	ErrNoCalibration = errors.New("no calibration data available")
	// ErrTriangulationFailed is when the projection or triangulation step failed.
	ErrTriangulationFailed = errors.New("triangulation failed")
)

// PointPick is one camera's pixel pick of a physical point.
type PointPick struct {
	Camera int     `json:"camera"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Triangulator reconstructs 3D points from picks in two or more calibrated
// cameras. It reads the published calibration on every call, so it always
// uses the latest stored parameters and is safe for concurrent use.
type Triangulator struct {
	storage *calibration.Storage
}

// NewTriangulator returns a triangulator reading from the given storage.
func NewTriangulator(storage *calibration.Storage) *Triangulator {
	return &Triangulator{storage: storage}
}

// Triangulate reconstructs the 3D point the picks refer to and returns it
// with a confidence score: 0 below two views, saturating at 1.0 from two
// views on. Callers must not trust a point with confidence 0.
func (tr *Triangulator) Triangulate(picks []PointPick) (r3.Vector, float64, error) {
	cameras, ok := tr.storage.Get()
	if !ok {
		return r3.Vector{}, 0, ErrNoCalibration
	}
	if len(picks) < 2 {
		return r3.Vector{}, 0, errors.Wrapf(ErrTriangulationFailed,
			"need at least 2 camera views, got %d", len(picks))
	}

	views := make([]transform.ProjectedPoint, len(picks))
	for i, pick := range picks {
		if pick.Camera < 0 || pick.Camera >= len(cameras) {
			return r3.Vector{}, 0, errors.Wrapf(ErrTriangulationFailed,
				"pick %d refers to camera %d, calibration has %d cameras", i, pick.Camera, len(cameras))
		}
		proj, err := cameras[pick.Camera].ProjectionMatrix()
		if err != nil {
			return r3.Vector{}, 0, errors.Wrapf(ErrTriangulationFailed, "camera %d: %v", pick.Camera, err)
		}
		views[i] = transform.ProjectedPoint{ProjMat: proj, Point: r2.Point{X: pick.X, Y: pick.Y}}
	}
	point, err := transform.TriangulatePoint(views)
	if err != nil {
		return r3.Vector{}, 0, errors.Wrapf(ErrTriangulationFailed, "%v", err)
	}
	return point, confidence(len(picks)), nil
}

// confidence is monotonic in the number of contributing views and saturates
// at 1.0 once two views are present.
func confidence(nViews int) float64 {
	if nViews < 2 {
		return 0
	}
	c := float64(nViews) / 2
	if c > 1 {
		c = 1
	}
	return c
}
