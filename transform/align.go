package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RigidTransform is a proper rotation plus a translation mapping one point
// set onto another, with no scaling.
type RigidTransform struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// Apply maps a point through the transform.
func (rt *RigidTransform) Apply(pt r3.Vector) r3.Vector {
	r := rt.Rotation
	return r3.Vector{
		X: r.At(0, 0)*pt.X + r.At(0, 1)*pt.Y + r.At(0, 2)*pt.Z + rt.Translation.X,
		Y: r.At(1, 0)*pt.X + r.At(1, 1)*pt.Y + r.At(1, 2)*pt.Z + rt.Translation.Y,
		Z: r.At(2, 0)*pt.X + r.At(2, 1)*pt.Y + r.At(2, 2)*pt.Z + rt.Translation.Z,
	}
}

// EstimateRigidTransform computes the best-fit rigid transform mapping src
// onto dst with the Kabsch algorithm: center both sets on their centroids,
// take the SVD of the cross-covariance matrix and form the rotation as V·Uᵀ.
// If that rotation has a negative determinant the sign of the last column of
// V is flipped and the rotation recomputed so the result is a proper rotation
// rather than a reflection.
func EstimateRigidTransform(src, dst []r3.Vector) (*RigidTransform, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("point sets must have the same number of elements, got %d and %d", len(src), len(dst))
	}
	if len(src) < 3 {
		return nil, errors.Errorf("rigid alignment needs at least 3 points, got %d", len(src))
	}
	n := float64(len(src))
	var srcCentroid, dstCentroid r3.Vector
	for i := range src {
		srcCentroid = srcCentroid.Add(src[i])
		dstCentroid = dstCentroid.Add(dst[i])
	}
	srcCentroid = srcCentroid.Mul(1 / n)
	dstCentroid = dstCentroid.Mul(1 / n)

	// cross-covariance H = Σ (src_i - c_src)(dst_i - c_dst)ᵀ
	h := mat.NewDense(3, 3, nil)
	for i := range src {
		p := src[i].Sub(srcCentroid)
		q := dst[i].Sub(dstCentroid)
		pv := []float64{p.X, p.Y, p.Z}
		qv := []float64{q.X, q.Y, q.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+pv[r]*qv[c])
			}
		}
	}

	mats := performSVD(h)
	if mats == nil {
		return nil, errors.New("failed to factorize cross-covariance matrix")
	}
	var rot mat.Dense
	rot.Mul(mats.V, mats.U.T())
	if mat.Det(&rot) < 0 {
		v := mat.DenseCopyOf(mats.V)
		for r := 0; r < 3; r++ {
			v.Set(r, 2, -v.At(r, 2))
		}
		rot.Mul(v, mats.U.T())
	}

	// t = c_dst - R·c_src
	rotated := r3.Vector{
		X: rot.At(0, 0)*srcCentroid.X + rot.At(0, 1)*srcCentroid.Y + rot.At(0, 2)*srcCentroid.Z,
		Y: rot.At(1, 0)*srcCentroid.X + rot.At(1, 1)*srcCentroid.Y + rot.At(1, 2)*srcCentroid.Z,
		Z: rot.At(2, 0)*srcCentroid.X + rot.At(2, 1)*srcCentroid.Y + rot.At(2, 2)*srcCentroid.Z,
	}
	return &RigidTransform{
		Rotation:    mat.DenseCopyOf(&rot),
		Translation: dstCentroid.Sub(rotated),
	}, nil
}
