package calibration

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/wwagdikala/vision/transform"
)

// testCameraMatrix is a full-HD pinhole with the principal point at the image
// center, matching what the resectioner assumes.
func testCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		900, 0, 960,
		0, 900, 540,
		0, 0, 1,
	})
}

// planarGrid is a 3x3 grid of template points on z=0, 30 mm apart.
func planarGrid() []r3.Vector {
	var pts []r3.Vector
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			pts = append(pts, r3.Vector{X: float64(x) * 30, Y: float64(y) * 30})
		}
	}
	return pts
}

// volumetricTemplate is a 60 mm cube's corners plus two interior points.
func volumetricTemplate() []r3.Vector {
	return []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 60, Y: 0, Z: 0},
		{X: 60, Y: 60, Z: 0},
		{X: 0, Y: 60, Z: 0},
		{X: 0, Y: 0, Z: 60},
		{X: 60, Y: 0, Z: 60},
		{X: 60, Y: 60, Z: 60},
		{X: 0, Y: 60, Z: 60},
		{X: 20, Y: 30, Z: 25},
		{X: 45, Y: 15, Z: 40},
	}
}

// twoCameraRig is a stereo pair about 180 mm apart, both tilted toward the
// template so planar resectioning is well conditioned.
func twoCameraRig() []*CameraParameters {
	return []*CameraParameters{
		{
			CameraMatrix: testCameraMatrix(),
			DistCoeffs:   make([]float64, 5),
			Rotation:     r3.Vector{X: 0.2, Y: -0.1, Z: 0.05},
			Translation:  r3.Vector{X: -20, Y: -30, Z: 500},
		},
		{
			CameraMatrix: testCameraMatrix(),
			DistCoeffs:   make([]float64, 5),
			Rotation:     r3.Vector{X: -0.15, Y: 0.25, Z: -0.08},
			Translation:  r3.Vector{X: 180, Y: -30, Z: 520},
		},
	}
}

func mustProjectView(t *testing.T, cam *CameraParameters, template []r3.Vector) []r2.Point {
	t.Helper()
	pts, err := transform.ProjectPoints(template, cam.CameraMatrix, nil, cam.Rotation, cam.Translation)
	test.That(t, err, test.ShouldBeNil)
	return pts
}

// recordCleanViews fills a store with numViews identical noise-free views of
// the template as seen by each camera in the rig.
func recordCleanViews(t *testing.T, store *ObservationStore, rig []*CameraParameters, template []r3.Vector, numViews int) {
	t.Helper()
	test.That(t, store.BeginSession(len(rig)), test.ShouldBeNil)
	detections := make([][]r2.Point, len(rig))
	for camIdx, cam := range rig {
		detections[camIdx] = mustProjectView(t, cam, template)
	}
	for viewIdx := 0; viewIdx < numViews; viewIdx++ {
		_, err := store.RecordView(viewIdx, template, detections)
		test.That(t, err, test.ShouldBeNil)
	}
}

// perturbedRig deep-copies a rig and offsets every pose, simulating the
// linear initialization error bundle adjustment has to absorb.
func perturbedRig(rig []*CameraParameters) []*CameraParameters {
	out := make([]*CameraParameters, len(rig))
	for i, cam := range rig {
		out[i] = cam.Clone()
		out[i].Rotation = cam.Rotation.Add(r3.Vector{X: 0.02, Y: -0.015, Z: 0.01})
		out[i].Translation = cam.Translation.Add(r3.Vector{X: 4, Y: -3, Z: 6})
	}
	return out
}
