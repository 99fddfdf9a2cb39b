package transform

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestIntrinsicsCheckValid(t *testing.T) {
	good := &PinholeCameraIntrinsics{Width: 1920, Height: 1080, Fx: 900, Fy: 900, Ppx: 960, Ppy: 540}
	test.That(t, good.CheckValid(), test.ShouldBeNil)

	var nilParams *PinholeCameraIntrinsics
	err := nilParams.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	bad := &PinholeCameraIntrinsics{Width: 1920, Height: 1080, Fx: -1, Fy: 900}
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
}

func TestCameraMatrixRoundTrip(t *testing.T) {
	params := &PinholeCameraIntrinsics{Width: 1920, Height: 1080, Fx: 850, Fy: 870, Ppx: 955, Ppy: 545}
	k := params.CameraMatrix()
	back, err := IntrinsicsFromCameraMatrix(k, 1920, 1080)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, params)
}

func TestBrownConradyTransform(t *testing.T) {
	noDistortion, err := NewBrownConrady(nil)
	test.That(t, err, test.ShouldBeNil)
	x, y := noDistortion.Transform(0.1, -0.2)
	test.That(t, x, test.ShouldAlmostEqual, 0.1)
	test.That(t, y, test.ShouldAlmostEqual, -0.2)

	radial, err := NewBrownConrady([]float64{0.1, 0.01})
	test.That(t, err, test.ShouldBeNil)
	// radial distortion pushes points away from the center
	x, y = radial.Transform(0.3, 0.0)
	test.That(t, x, test.ShouldBeGreaterThan, 0.3)
	test.That(t, y, test.ShouldAlmostEqual, 0.0)

	_, err = NewBrownConrady([]float64{1, 2, 3, 4, 5, 6})
	test.That(t, err, test.ShouldNotBeNil)
}
