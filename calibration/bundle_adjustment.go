package calibration

import (
	"fmt"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wwagdikala/vision/nlls"
	"github.com/wwagdikala/vision/transform"
)

// BundleAdjustment jointly refines every camera's extrinsics to minimize the
// total reprojection error across all valid (camera, view) pairs. Intrinsics
// and distortion are frozen; each camera contributes 6 parameters (axis-angle
// rotation and translation).
type BundleAdjustment struct {
	cameras   []*CameraParameters
	store     *ObservationStore
	config    *Config
	validator *Validator
	logger    golog.Logger
}

// NewBundleAdjustment wires the optimizer to the session's cameras and
// observations. The cameras slice is mutated in place on success.
func NewBundleAdjustment(
	cameras []*CameraParameters,
	store *ObservationStore,
	config *Config,
	logger golog.Logger,
) *BundleAdjustment {
	return &BundleAdjustment{
		cameras:   cameras,
		store:     store,
		config:    config,
		validator: NewValidator(logger),
		logger:    logger,
	}
}

// Optimize runs the joint refinement and always returns a Result; failures
// inside the solver are converted into an unsuccessful Result rather than
// propagated, so callers can still inspect partial statistics.
func (ba *BundleAdjustment) Optimize() *Result {
	if len(ba.cameras) < ba.config.MinCameras || ba.store.NumViews() == 0 || ba.store.NumPoints() == 0 {
		return &Result{
			Success:    false,
			Message:    ErrInsufficientData.Error(),
			Err:        ErrInsufficientData,
			OverallRMS: math.Inf(1),
		}
	}

	distorters := make([]transform.Distorter, len(ba.cameras))
	for i, cam := range ba.cameras {
		d, err := cam.Distorter()
		if err != nil {
			return &Result{
				Success:    false,
				Message:    fmt.Sprintf("camera %d has invalid distortion: %v", i, err),
				Err:        err,
				OverallRMS: math.Inf(1),
			}
		}
		distorters[i] = d
	}

	x0 := ba.paramsToVector()
	settings := nlls.DefaultSettings()
	settings.MaxIterations = ba.config.MaxIterations
	settings.CostTolerance = ba.config.CostTolerance
	settings.GradientTolerance = ba.config.CostTolerance
	settings.RobustScale = ba.config.RobustScale
	settings.Loss = nlls.SoftL1Loss

	solved, err := nlls.Solve(nlls.Problem{Residuals: func(x []float64) ([]float64, error) {
		return ba.residuals(x, distorters)
	}}, x0, settings)
	if err != nil {
		ba.logger.Warnw("bundle adjustment failed", "error", err)
		return &Result{
			Success:    false,
			Message:    err.Error(),
			Err:        ErrNumericalFailure,
			OverallRMS: math.Inf(1),
		}
	}

	ba.vectorToParams(solved.X)

	stats := ba.cameraStatistics(solved.Residuals)
	overallRMS := 0.0
	if len(solved.Residuals) > 0 {
		sumSq := 0.0
		for _, r := range solved.Residuals {
			sumSq += r * r
		}
		overallRMS = math.Sqrt(sumSq / float64(len(solved.Residuals)))
	}

	result := &Result{
		Success:      solved.Converged,
		Message:      solved.Message,
		CameraStats:  stats,
		OverallRMS:   overallRMS,
		Baselines:    ba.baselines(),
		Iterations:   solved.Iterations,
		SolverStatus: solved.Message,
		Cameras:      ba.cameras,
	}
	if len(ba.cameras) >= 2 {
		if rmsMM, ok := ba.validator.PhysicalRMS(ba.cameras[0], ba.cameras[1], ba.store); ok {
			result.PhysicalRMSMM = &rmsMM
		}
	}
	return result
}

// paramsToVector flattens every camera's rotation and translation (6 scalars
// each) into one parameter vector.
func (ba *BundleAdjustment) paramsToVector() []float64 {
	x := make([]float64, 0, 6*len(ba.cameras))
	for _, cam := range ba.cameras {
		x = append(x,
			cam.Rotation.X, cam.Rotation.Y, cam.Rotation.Z,
			cam.Translation.X, cam.Translation.Y, cam.Translation.Z)
	}
	return x
}

func (ba *BundleAdjustment) vectorToParams(x []float64) {
	for i, cam := range ba.cameras {
		base := 6 * i
		cam.Rotation = r3.Vector{X: x[base], Y: x[base+1], Z: x[base+2]}
		cam.Translation = r3.Vector{X: x[base+3], Y: x[base+4], Z: x[base+5]}
	}
}

// residuals projects every valid (camera, view) pair through the candidate
// extrinsics and returns projected minus observed, flattened in a fixed
// order: cameras ascending, views ascending within each camera, x then y per
// point.
func (ba *BundleAdjustment) residuals(x []float64, distorters []transform.Distorter) ([]float64, error) {
	var res []float64
	for camIdx := range ba.cameras {
		base := 6 * camIdx
		rot := r3.Vector{X: x[base], Y: x[base+1], Z: x[base+2]}
		trans := r3.Vector{X: x[base+3], Y: x[base+4], Z: x[base+5]}
		for _, viewIdx := range ba.store.ValidViews(camIdx) {
			template := ba.store.Template(viewIdx)
			observed := ba.store.Detection(camIdx, viewIdx)
			projected, err := transform.ProjectPoints(
				template, ba.cameras[camIdx].CameraMatrix, distorters[camIdx], rot, trans)
			if err != nil {
				return nil, err
			}
			for i := range projected {
				res = append(res, projected[i].X-observed[i].X, projected[i].Y-observed[i].Y)
			}
		}
	}
	return res, nil
}

// cameraStatistics re-slices the final residual vector according to each
// camera's valid-view count times points-per-view, yielding per-camera RMS
// and max absolute error in pixels. A camera with zero valid views reports
// +Inf for both.
func (ba *BundleAdjustment) cameraStatistics(residuals []float64) []CameraStats {
	nPoints := ba.store.NumPoints()
	stats := make([]CameraStats, len(ba.cameras))
	idx := 0
	for camIdx := range ba.cameras {
		nValid := len(ba.store.ValidViews(camIdx))
		count := nValid * nPoints * 2
		if count == 0 {
			stats[camIdx] = CameraStats{RMS: math.Inf(1), MaxError: math.Inf(1)}
			continue
		}
		slice := residuals[idx : idx+count]
		idx += count
		sumSq, maxAbs := 0.0, 0.0
		for _, r := range slice {
			sumSq += r * r
			if a := math.Abs(r); a > maxAbs {
				maxAbs = a
			}
		}
		stats[camIdx] = CameraStats{
			RMS:        math.Sqrt(sumSq / float64(count)),
			MaxError:   maxAbs,
			ValidViews: nValid,
		}
	}
	return stats
}

// baselines computes the pairwise inter-camera distances ‖t_j − R_rel·t_i‖
// in millimeters from the optimized extrinsics.
func (ba *BundleAdjustment) baselines() map[string]float64 {
	out := map[string]float64{}
	for i := 0; i < len(ba.cameras)-1; i++ {
		ri := transform.RotationMatrixFromAxisAngle(ba.cameras[i].Rotation)
		for j := i + 1; j < len(ba.cameras); j++ {
			rj := transform.RotationMatrixFromAxisAngle(ba.cameras[j].Rotation)
			var rel mat.Dense
			rel.Mul(rj, ri.T())
			ti := ba.cameras[i].Translation
			rotTi := r3.Vector{
				X: rel.At(0, 0)*ti.X + rel.At(0, 1)*ti.Y + rel.At(0, 2)*ti.Z,
				Y: rel.At(1, 0)*ti.X + rel.At(1, 1)*ti.Y + rel.At(1, 2)*ti.Z,
				Z: rel.At(2, 0)*ti.X + rel.At(2, 1)*ti.Y + rel.At(2, 2)*ti.Z,
			}
			out[fmt.Sprintf("%d-%d", i, j)] = ba.cameras[j].Translation.Sub(rotTi).Norm()
		}
	}
	return out
}
