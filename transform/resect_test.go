package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestCoplanar(t *testing.T) {
	planar := []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 60, Y: 0, Z: 0}, {X: 60, Y: 60, Z: 0}, {X: 0, Y: 60, Z: 0},
	}
	test.That(t, Coplanar(planar), test.ShouldBeTrue)

	cube := append(append([]r3.Vector{}, planar...),
		r3.Vector{X: 0, Y: 0, Z: 60}, r3.Vector{X: 60, Y: 0, Z: 60})
	test.That(t, Coplanar(cube), test.ShouldBeFalse)
}

func TestDLTResection(t *testing.T) {
	k := testCameraMatrix()
	rot := r3.Vector{X: 0.25, Y: -0.15, Z: 0.1}
	trans := r3.Vector{X: -30, Y: 20, Z: 600}

	// corners of a 60 mm cube plus two face centers
	pts3 := []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 60, Y: 0, Z: 0}, {X: 60, Y: 60, Z: 0}, {X: 0, Y: 60, Z: 0},
		{X: 0, Y: 0, Z: 60}, {X: 60, Y: 0, Z: 60}, {X: 60, Y: 60, Z: 60}, {X: 0, Y: 60, Z: 60},
		{X: 30, Y: 30, Z: 60}, {X: 30, Y: 0, Z: 30},
	}
	pts2 := make([]r2.Point, len(pts3))
	for i, pt := range pts3 {
		px, err := ProjectPoint(pt, k, nil, rot, trans)
		test.That(t, err, test.ShouldBeNil)
		pts2[i] = px
	}

	gotK, gotRot, gotTrans, err := DLTResection(pts3, pts2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotK.At(0, 0), test.ShouldAlmostEqual, 900, 1e-3)
	test.That(t, gotK.At(1, 1), test.ShouldAlmostEqual, 900, 1e-3)
	test.That(t, gotK.At(0, 2), test.ShouldAlmostEqual, 960, 1e-3)
	test.That(t, gotK.At(1, 2), test.ShouldAlmostEqual, 540, 1e-3)
	test.That(t, gotRot.Sub(rot).Norm(), test.ShouldBeLessThan, 1e-5)
	test.That(t, gotTrans.Sub(trans).Norm(), test.ShouldBeLessThan, 1e-2)
}

func TestDLTResectionRejectsCoplanar(t *testing.T) {
	pts3 := []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 60, Y: 0, Z: 0}, {X: 60, Y: 60, Z: 0},
		{X: 0, Y: 60, Z: 0}, {X: 30, Y: 30, Z: 0}, {X: 10, Y: 50, Z: 0},
	}
	pts2 := make([]r2.Point, len(pts3))
	_, _, _, err := DLTResection(pts3, pts2)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPoseFromHomography(t *testing.T) {
	k := testCameraMatrix()
	rot := r3.Vector{X: 0.2, Y: -0.1, Z: 0.05}
	trans := r3.Vector{X: -20, Y: -30, Z: 500}

	planePts := []r2.Point{
		{X: 0, Y: 0}, {X: 60, Y: 0}, {X: 60, Y: 60}, {X: 0, Y: 60},
		{X: 20, Y: 35}, {X: 45, Y: 10},
	}
	imgPts := make([]r2.Point, len(planePts))
	for i, pt := range planePts {
		px, err := ProjectPoint(r3.Vector{X: pt.X, Y: pt.Y}, k, nil, rot, trans)
		test.That(t, err, test.ShouldBeNil)
		imgPts[i] = px
	}
	h, err := ComputeHomographyAllPoints(planePts, imgPts)
	test.That(t, err, test.ShouldBeNil)

	gotRot, gotTrans, err := PoseFromHomography(k, h)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotRot.Sub(rot).Norm(), test.ShouldBeLessThan, 1e-6)
	test.That(t, gotTrans.Sub(trans).Norm(), test.ShouldBeLessThan, 1e-3)
}
