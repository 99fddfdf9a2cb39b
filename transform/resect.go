package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Coplanar reports whether a 3D point set lies on a single plane, within a
// relative tolerance on the smallest singular value of the centered set.
func Coplanar(pts []r3.Vector) bool {
	if len(pts) < 4 {
		return true
	}
	var centroid r3.Vector
	for _, pt := range pts {
		centroid = centroid.Add(pt)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))
	m := mat.NewDense(len(pts), 3, nil)
	for i, pt := range pts {
		c := pt.Sub(centroid)
		m.SetRow(i, []float64{c.X, c.Y, c.Z})
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return false
	}
	values := svd.Values(nil)
	return values[2] < 1e-6*math.Max(values[0], 1)
}

// PoseFromHomography extracts the extrinsic pose of a camera observing a
// planar target, given the camera matrix and the homography mapping template
// plane coordinates (X,Y of the template points) to pixels. The first two
// rotation columns come from K⁻¹·h1 and K⁻¹·h2 scaled to unit norm, the
// third from their cross product, and the result is orthonormalized by SVD.
func PoseFromHomography(cameraMatrix, homography *mat.Dense) (r3.Vector, r3.Vector, error) {
	var kInv mat.Dense
	if err := kInv.Inverse(cameraMatrix); err != nil {
		return r3.Vector{}, r3.Vector{}, errors.Wrap(err, "cannot invert camera matrix")
	}
	var a mat.Dense
	a.Mul(&kInv, homography)

	col := func(j int) r3.Vector {
		return r3.Vector{X: a.At(0, j), Y: a.At(1, j), Z: a.At(2, j)}
	}
	h1, h2, h3 := col(0), col(1), col(2)
	norm := (h1.Norm() + h2.Norm()) / 2
	if norm == 0 {
		return r3.Vector{}, r3.Vector{}, errors.New("degenerate homography columns")
	}
	lambda := 1 / norm
	// target must be in front of the camera
	if h3.Z < 0 {
		lambda = -lambda
	}
	r1 := h1.Mul(lambda)
	r2c := h2.Mul(lambda)
	r3c := r1.Cross(r2c)
	t := h3.Mul(lambda)

	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2c.X, r3c.X,
		r1.Y, r2c.Y, r3c.Y,
		r1.Z, r2c.Z, r3c.Z,
	})
	// closest proper rotation: R = U·Vᵀ
	mats := performSVD(rot)
	if mats == nil {
		return r3.Vector{}, r3.Vector{}, errors.New("failed to orthonormalize rotation")
	}
	var ortho mat.Dense
	ortho.Mul(mats.U, mats.VT)
	if mat.Det(&ortho) < 0 {
		u := mat.DenseCopyOf(mats.U)
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		ortho.Mul(u, mats.VT)
	}
	return AxisAngleFromRotationMatrix(&ortho), t, nil
}

// DLTResection computes a camera matrix and pose from at least 6
// non-coplanar 3D-2D correspondences with the 11-parameter direct linear
// transform, decomposing the projection matrix by RQ factorization.
func DLTResection(pts3 []r3.Vector, pts2 []r2.Point) (*mat.Dense, r3.Vector, r3.Vector, error) {
	if len(pts3) != len(pts2) {
		return nil, r3.Vector{}, r3.Vector{}, errors.Errorf(
			"point sets must have the same number of elements, got %d and %d", len(pts3), len(pts2))
	}
	if len(pts3) < 6 {
		return nil, r3.Vector{}, r3.Vector{}, errors.Errorf("resection needs at least 6 points, got %d", len(pts3))
	}
	if Coplanar(pts3) {
		return nil, r3.Vector{}, r3.Vector{}, errors.New("points are coplanar, use the homography path")
	}

	a := mat.NewDense(2*len(pts3), 12, nil)
	for i := range pts3 {
		xw, yw, zw := pts3[i].X, pts3[i].Y, pts3[i].Z
		u, v := pts2[i].X, pts2[i].Y
		a.SetRow(2*i, []float64{
			xw, yw, zw, 1,
			0, 0, 0, 0,
			-u * xw, -u * yw, -u * zw, -u,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, 0,
			xw, yw, zw, 1,
			-v * xw, -v * yw, -v * zw, -v,
		})
	}
	mats := performSVD(a)
	if mats == nil {
		return nil, r3.Vector{}, r3.Vector{}, errors.New("failed to factorize resection system")
	}
	_, cols := mats.V.Dims()
	sol := mats.V.ColView(cols - 1)
	proj := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			proj.Set(i, j, sol.AtVec(4*i+j))
		}
	}

	m := mat.DenseCopyOf(proj.Slice(0, 3, 0, 3))
	k, rot, err := rqDecomposition(m)
	if err != nil {
		return nil, r3.Vector{}, r3.Vector{}, err
	}
	// force a positive diagonal on K
	for i := 0; i < 3; i++ {
		if k.At(i, i) < 0 {
			for j := 0; j < 3; j++ {
				k.Set(j, i, -k.At(j, i))
				rot.Set(i, j, -rot.At(i, j))
			}
		}
	}
	if k.At(2, 2) == 0 {
		return nil, r3.Vector{}, r3.Vector{}, errors.New("degenerate camera matrix")
	}
	scale := k.At(2, 2)
	k.Scale(1/scale, k)

	// t = K⁻¹·p4 with the same scale as M
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return nil, r3.Vector{}, r3.Vector{}, errors.Wrap(err, "cannot invert camera matrix")
	}
	p4 := mat.NewVecDense(3, []float64{proj.At(0, 3) / scale, proj.At(1, 3) / scale, proj.At(2, 3) / scale})
	var t mat.VecDense
	t.MulVec(&kInv, p4)

	trans := r3.Vector{X: t.AtVec(0), Y: t.AtVec(1), Z: t.AtVec(2)}
	if mat.Det(rot) < 0 {
		rot.Scale(-1, rot)
		trans = trans.Mul(-1)
	}
	// target must be in front of the camera
	if trans.Z < 0 {
		rot.Scale(-1, rot)
		trans = trans.Mul(-1)
	}
	return k, AxisAngleFromRotationMatrix(rot), trans, nil
}

// rqDecomposition factors a 3x3 matrix as R·Q with R upper triangular and Q
// orthogonal, via the QR factorization of the row-reversed transpose.
func rqDecomposition(m *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	flip := mat.NewDense(3, 3, []float64{
		0, 0, 1,
		0, 1, 0,
		1, 0, 0,
	})
	var reversed mat.Dense
	reversed.Mul(flip, m)
	var qr mat.QR
	qr.Factorize(transposeDense(&reversed))
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	// R = flip·Rqrᵀ·flip, Q = flip·Qqrᵀ
	var upper, ortho mat.Dense
	upper.Mul(flip, r.T())
	upper.Mul(&upper, flip)
	ortho.Mul(flip, q.T())
	return mat.DenseCopyOf(&upper), mat.DenseCopyOf(&ortho), nil
}
