package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ComputeHomographyAllPoints estimates the 3x3 homography H mapping pts1 to
// pts2 from all correspondences with the normalized direct linear transform.
func ComputeHomographyAllPoints(pts1, pts2 []r2.Point) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < 4 {
		return nil, errors.New("sets of points must have at least 4 elements")
	}
	nPoints := len(pts1)

	points1, t1 := normalizePoints(pts1)
	points2, t2 := normalizePoints(pts2)

	m := mat.NewDense(2*nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		m.SetRow(2*i, []float64{
			-v1.X, -v1.Y, -1,
			0, 0, 0,
			v2.X * v1.X, v2.X * v1.Y, v2.X,
		})
		m.SetRow(2*i+1, []float64{
			0, 0, 0,
			-v1.X, -v1.Y, -1,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
		})
	}

	mats := performSVD(m)
	if mats == nil {
		return nil, errors.New("failed to factorize homography system")
	}
	lastColV := mats.V.ColView(8)
	hData := make([]float64, 9)
	for i := range hData {
		hData[i] = lastColV.AtVec(i)
	}
	h := mat.NewDense(3, 3, hData)

	// denormalize: T2⁻¹ @ H @ T1
	var t2Inv mat.Dense
	if err := t2Inv.Inverse(t2); err != nil {
		return nil, errors.Wrap(err, "cannot invert normalization transform")
	}
	h.Mul(&t2Inv, h)
	h.Mul(h, t1)

	if h.At(2, 2) == 0 {
		return nil, errors.New("degenerate homography")
	}
	h.Scale(1/h.At(2, 2), h)
	return h, nil
}

// ApplyHomography maps a point through the homography with perspective division.
func ApplyHomography(h *mat.Dense, pt r2.Point) r2.Point {
	w := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{
		X: (h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)) / w,
		Y: (h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)) / w,
	}
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	// compute centroid of points
	mu := r2.Point{}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		x2 := (pt.X - mu.X) * (pt.X - mu.X)
		y2 := (pt.Y - mu.Y) * (pt.Y - mu.Y)
		d += math.Sqrt(x2+y2) / float64(nPoints)
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	t := mat.NewDense(3, 3, transformData)
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return pointsTransformed, t
}
