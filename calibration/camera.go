package calibration

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wwagdikala/vision/transform"
)

// CameraParameters owns one camera's full model: a 3x3 intrinsic matrix,
// Brown-Conrady distortion coefficients, and an extrinsic pose as an
// axis-angle rotation plus a translation in the template's physical units
// (millimeters). Intrinsics and distortion are fixed once resectioning
// produces them; the pose is refined by bundle adjustment.
type CameraParameters struct {
	CameraMatrix *mat.Dense
	DistCoeffs   []float64
	Rotation     r3.Vector
	Translation  r3.Vector
}

// Clone returns a deep copy.
func (cp *CameraParameters) Clone() *CameraParameters {
	if cp == nil {
		return nil
	}
	out := &CameraParameters{
		Rotation:    cp.Rotation,
		Translation: cp.Translation,
	}
	if cp.CameraMatrix != nil {
		out.CameraMatrix = mat.DenseCopyOf(cp.CameraMatrix)
	}
	if cp.DistCoeffs != nil {
		out.DistCoeffs = append([]float64(nil), cp.DistCoeffs...)
	}
	return out
}

// Distorter returns the camera's distortion model.
func (cp *CameraParameters) Distorter() (transform.Distorter, error) {
	return transform.NewBrownConrady(cp.DistCoeffs)
}

// ProjectionMatrix builds the camera's 3x4 projection matrix K·[R|t].
func (cp *CameraParameters) ProjectionMatrix() (*mat.Dense, error) {
	return transform.ProjectionMatrix(cp.CameraMatrix, cp.Rotation, cp.Translation)
}
