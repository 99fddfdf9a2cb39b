package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ProjectionMatrix builds the 3x4 projection matrix K·[R|t] from a 3x3
// camera matrix, an axis-angle rotation and a translation.
func ProjectionMatrix(cameraMatrix *mat.Dense, rotation, translation r3.Vector) (*mat.Dense, error) {
	if cameraMatrix == nil {
		return nil, NewNoIntrinsicsError("cannot build projection matrix")
	}
	rot := RotationMatrixFromAxisAngle(rotation)
	rt := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt.Set(i, j, rot.At(i, j))
		}
	}
	rt.Set(0, 3, translation.X)
	rt.Set(1, 3, translation.Y)
	rt.Set(2, 3, translation.Z)
	proj := mat.NewDense(3, 4, nil)
	proj.Mul(cameraMatrix, rt)
	return proj, nil
}

// ProjectPoint maps one 3D world point to pixel coordinates through the full
// camera model: rigid transform into the camera frame, perspective division,
// lens distortion, then the camera matrix.
func ProjectPoint(
	pt r3.Vector,
	cameraMatrix *mat.Dense,
	distortion Distorter,
	rotation, translation r3.Vector,
) (r2.Point, error) {
	if cameraMatrix == nil {
		return r2.Point{}, NewNoIntrinsicsError("cannot project point")
	}
	rot := RotationMatrixFromAxisAngle(rotation)
	xc := rot.At(0, 0)*pt.X + rot.At(0, 1)*pt.Y + rot.At(0, 2)*pt.Z + translation.X
	yc := rot.At(1, 0)*pt.X + rot.At(1, 1)*pt.Y + rot.At(1, 2)*pt.Z + translation.Y
	zc := rot.At(2, 0)*pt.X + rot.At(2, 1)*pt.Y + rot.At(2, 2)*pt.Z + translation.Z
	if zc <= 0 {
		return r2.Point{}, errors.Errorf("point (%v, %v, %v) is behind the camera", pt.X, pt.Y, pt.Z)
	}
	x, y := xc/zc, yc/zc
	if distortion != nil {
		x, y = distortion.Transform(x, y)
	}
	fx, fy := cameraMatrix.At(0, 0), cameraMatrix.At(1, 1)
	ppx, ppy := cameraMatrix.At(0, 2), cameraMatrix.At(1, 2)
	return r2.Point{X: x*fx + ppx, Y: y*fy + ppy}, nil
}

// ProjectPoints maps a set of 3D world points to pixel coordinates through
// the same camera model as ProjectPoint.
func ProjectPoints(
	pts []r3.Vector,
	cameraMatrix *mat.Dense,
	distortion Distorter,
	rotation, translation r3.Vector,
) ([]r2.Point, error) {
	projected := make([]r2.Point, len(pts))
	for i, pt := range pts {
		p, err := ProjectPoint(pt, cameraMatrix, distortion, rotation, translation)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot project point %d", i)
		}
		projected[i] = p
	}
	return projected, nil
}
