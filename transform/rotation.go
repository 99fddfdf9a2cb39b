package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrixFromAxisAngle converts an R3 axis-angle rotation vector
// (direction = axis, norm = angle in radians) to a 3x3 rotation matrix using
// the Rodrigues formula.
func RotationMatrixFromAxisAngle(aa r3.Vector) *mat.Dense {
	theta := aa.Norm()
	if theta < 1e-12 {
		return eye(3)
	}
	k := aa.Mul(1 / theta)
	// K is the cross-product matrix of the unit axis
	kMat := mat.NewDense(3, 3, []float64{
		0, -k.Z, k.Y,
		k.Z, 0, -k.X,
		-k.Y, k.X, 0,
	})
	// R = I + sin(θ)K + (1-cos(θ))K²
	var k2 mat.Dense
	k2.Mul(kMat, kMat)
	rot := eye(3)
	var sinTerm, cosTerm mat.Dense
	sinTerm.Scale(math.Sin(theta), kMat)
	cosTerm.Scale(1-math.Cos(theta), &k2)
	rot.Add(rot, &sinTerm)
	rot.Add(rot, &cosTerm)
	return rot
}

// AxisAngleFromRotationMatrix converts a 3x3 rotation matrix to the R3
// axis-angle rotation vector.
func AxisAngleFromRotationMatrix(rot mat.Matrix) r3.Vector {
	trace := rot.At(0, 0) + rot.At(1, 1) + rot.At(2, 2)
	cosTheta := (trace - 1) / 2
	// clamp for numerical safety
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	if math.Pi-theta < 1e-6 {
		// near θ=π the antisymmetric part vanishes, recover the axis from R+I
		xx := (rot.At(0, 0) + 1) / 2
		yy := (rot.At(1, 1) + 1) / 2
		zz := (rot.At(2, 2) + 1) / 2
		axis := r3.Vector{
			X: math.Sqrt(math.Max(xx, 0)),
			Y: math.Sqrt(math.Max(yy, 0)),
			Z: math.Sqrt(math.Max(zz, 0)),
		}
		// fix signs using the off-diagonal sums
		if rot.At(0, 1)+rot.At(1, 0) < 0 {
			axis.Y = -axis.Y
		}
		if rot.At(0, 2)+rot.At(2, 0) < 0 {
			axis.Z = -axis.Z
		}
		return axis.Normalize().Mul(theta)
	}
	scale := theta / (2 * math.Sin(theta))
	return r3.Vector{
		X: (rot.At(2, 1) - rot.At(1, 2)) * scale,
		Y: (rot.At(0, 2) - rot.At(2, 0)) * scale,
		Z: (rot.At(1, 0) - rot.At(0, 1)) * scale,
	}
}

// ComposeRotations returns the axis-angle vector of R(aa2)·R(aa1), the
// rotation aa1 followed by aa2.
func ComposeRotations(aa1, aa2 r3.Vector) r3.Vector {
	r1 := RotationMatrixFromAxisAngle(aa1)
	r2 := RotationMatrixFromAxisAngle(aa2)
	var composed mat.Dense
	composed.Mul(r2, r1)
	return AxisAngleFromRotationMatrix(&composed)
}
