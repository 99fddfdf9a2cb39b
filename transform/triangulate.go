package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ProjectedPoint pairs one camera's 3x4 projection matrix with the pixel
// coordinates of a world point observed by that camera.
type ProjectedPoint struct {
	ProjMat *mat.Dense
	Point   r2.Point
}

// TriangulatePoint reconstructs a 3D point from its projections in two or
// more views by direct linear triangulation: each view contributes two rows
// to a homogeneous system solved by SVD, and the solution is the right
// singular vector of the smallest singular value, dehomogenized.
func TriangulatePoint(views []ProjectedPoint) (r3.Vector, error) {
	if len(views) < 2 {
		return r3.Vector{}, errors.Errorf("triangulation needs at least 2 views, got %d", len(views))
	}
	a := mat.NewDense(2*len(views), 4, nil)
	for i, view := range views {
		if view.ProjMat == nil {
			return r3.Vector{}, errors.Errorf("view %d has no projection matrix", i)
		}
		// rows: x·P_3 - P_1 and y·P_3 - P_2
		for j := 0; j < 4; j++ {
			p1, p2, p3 := view.ProjMat.At(0, j), view.ProjMat.At(1, j), view.ProjMat.At(2, j)
			a.Set(2*i, j, view.Point.X*p3-p1)
			a.Set(2*i+1, j, view.Point.Y*p3-p2)
		}
	}
	mats := performSVD(a)
	if mats == nil {
		return r3.Vector{}, errors.New("failed to factorize triangulation system")
	}
	_, cols := mats.V.Dims()
	sol := mats.V.ColView(cols - 1)
	w := sol.AtVec(3)
	if w == 0 {
		return r3.Vector{}, errors.New("triangulated point is at infinity")
	}
	return r3.Vector{X: sol.AtVec(0) / w, Y: sol.AtVec(1) / w, Z: sol.AtVec(2) / w}, nil
}

// TriangulatePoints reconstructs a set of corresponding points observed by
// two cameras with the given projection matrices.
func TriangulatePoints(proj1, proj2 *mat.Dense, pts1, pts2 []r2.Point) ([]r3.Vector, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.Errorf("point sets must have the same number of elements, got %d and %d", len(pts1), len(pts2))
	}
	out := make([]r3.Vector, len(pts1))
	for i := range pts1 {
		pt, err := TriangulatePoint([]ProjectedPoint{
			{ProjMat: proj1, Point: pts1[i]},
			{ProjMat: proj2, Point: pts2[i]},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "cannot triangulate point %d", i)
		}
		out[i] = pt
	}
	return out, nil
}
