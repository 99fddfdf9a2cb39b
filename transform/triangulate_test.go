package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func testCameraMatrix() *mat.Dense {
	intrinsics := &PinholeCameraIntrinsics{Width: 1920, Height: 1080, Fx: 900, Fy: 900, Ppx: 960, Ppy: 540}
	return intrinsics.CameraMatrix()
}

func TestTriangulatePointRoundTrip(t *testing.T) {
	k := testCameraMatrix()
	rot0 := r3.Vector{X: 0.2, Y: -0.1, Z: 0.05}
	trans0 := r3.Vector{X: -20, Y: -30, Z: 500}
	rot1 := r3.Vector{X: -0.15, Y: 0.25, Z: -0.08}
	trans1 := r3.Vector{X: 180, Y: -30, Z: 520}

	proj0, err := ProjectionMatrix(k, rot0, trans0)
	test.That(t, err, test.ShouldBeNil)
	proj1, err := ProjectionMatrix(k, rot1, trans1)
	test.That(t, err, test.ShouldBeNil)

	world := r3.Vector{X: 25, Y: 40, Z: 10}
	px0, err := ProjectPoint(world, k, nil, rot0, trans0)
	test.That(t, err, test.ShouldBeNil)
	px1, err := ProjectPoint(world, k, nil, rot1, trans1)
	test.That(t, err, test.ShouldBeNil)

	got, err := TriangulatePoint([]ProjectedPoint{
		{ProjMat: proj0, Point: px0},
		{ProjMat: proj1, Point: px1},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.X, test.ShouldAlmostEqual, world.X, 1e-6)
	test.That(t, got.Y, test.ShouldAlmostEqual, world.Y, 1e-6)
	test.That(t, got.Z, test.ShouldAlmostEqual, world.Z, 1e-6)
}

func TestTriangulatePointDeterministic(t *testing.T) {
	k := testCameraMatrix()
	proj0, err := ProjectionMatrix(k, r3.Vector{X: 0.2, Y: -0.1, Z: 0.05}, r3.Vector{X: -20, Y: -30, Z: 500})
	test.That(t, err, test.ShouldBeNil)
	proj1, err := ProjectionMatrix(k, r3.Vector{X: -0.15, Y: 0.25, Z: -0.08}, r3.Vector{X: 180, Y: -30, Z: 520})
	test.That(t, err, test.ShouldBeNil)

	views := []ProjectedPoint{
		{ProjMat: proj0, Point: mustProject(t, k, r3.Vector{X: 25, Y: 40, Z: 10}, r3.Vector{X: 0.2, Y: -0.1, Z: 0.05}, r3.Vector{X: -20, Y: -30, Z: 500})},
		{ProjMat: proj1, Point: mustProject(t, k, r3.Vector{X: 25, Y: 40, Z: 10}, r3.Vector{X: -0.15, Y: 0.25, Z: -0.08}, r3.Vector{X: 180, Y: -30, Z: 520})},
	}
	first, err := TriangulatePoint(views)
	test.That(t, err, test.ShouldBeNil)
	second, err := TriangulatePoint(views)
	test.That(t, err, test.ShouldBeNil)
	// bit-identical, not merely close
	test.That(t, first.X, test.ShouldEqual, second.X)
	test.That(t, first.Y, test.ShouldEqual, second.Y)
	test.That(t, first.Z, test.ShouldEqual, second.Z)
}

func TestTriangulatePointTooFewViews(t *testing.T) {
	k := testCameraMatrix()
	proj, err := ProjectionMatrix(k, r3.Vector{}, r3.Vector{Z: 500})
	test.That(t, err, test.ShouldBeNil)
	_, err = TriangulatePoint([]ProjectedPoint{{ProjMat: proj}})
	test.That(t, err, test.ShouldNotBeNil)
}

func mustProject(t *testing.T, k *mat.Dense, world, rot, trans r3.Vector) r2.Point {
	t.Helper()
	px, err := ProjectPoint(world, k, nil, rot, trans)
	test.That(t, err, test.ShouldBeNil)
	return px
}
