package calibration

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/wwagdikala/vision/nlls"
	"github.com/wwagdikala/vision/transform"
)

// Pose is one camera's extrinsics for a single view.
type Pose struct {
	Rotation    r3.Vector
	Translation r3.Vector
}

// ResectionResult is one camera's single-camera calibration: intrinsics and
// distortion shared across views, one pose per valid view, and the pixel RMS
// over all of the camera's own points.
type ResectionResult struct {
	Params    *CameraParameters
	ViewPoses map[int]Pose
	PixelRMS  float64
}

// Resectioner computes per-camera intrinsics and per-view extrinsics from
// one camera's valid observations. Planar targets go through homography
// decomposition with the principal point fixed at the image center;
// volumetric targets go through DLT resection.
type Resectioner struct {
	config *Config
	logger golog.Logger
}

// NewResectioner returns a resectioner using the config's image size and
// solver constants.
func NewResectioner(config *Config, logger golog.Logger) *Resectioner {
	return &Resectioner{config: config, logger: logger}
}

// Resect calibrates one camera from its valid views. The returned
// CameraParameters carry the pose of the last valid view as the initial
// extrinsic seed for bundle adjustment.
func (rs *Resectioner) Resect(store *ObservationStore, camIdx int) (*ResectionResult, error) {
	validViews := store.ValidViews(camIdx)
	if len(validViews) == 0 {
		return nil, errors.Wrapf(ErrInsufficientViews, "camera %d", camIdx)
	}

	template := store.Template(validViews[0])
	var result *ResectionResult
	var err error
	if transform.Coplanar(template) {
		result, err = rs.resectPlanar(store, camIdx, validViews)
	} else {
		result, err = rs.resectVolumetric(store, camIdx, validViews)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrResectioningFailed, "camera %d: %v", camIdx, err)
	}

	for _, viewIdx := range validViews {
		pose, ok := result.ViewPoses[viewIdx]
		if !ok {
			continue
		}
		refined, refineErr := rs.refinePose(store, camIdx, viewIdx, result.Params, pose)
		if refineErr != nil {
			rs.logger.Debugw("pose refinement failed, keeping linear estimate",
				"camera", camIdx, "view", viewIdx, "error", refineErr)
			continue
		}
		result.ViewPoses[viewIdx] = refined
	}

	// last valid view's pose seeds bundle adjustment
	seed := result.ViewPoses[validViews[len(validViews)-1]]
	result.Params.Rotation = seed.Rotation
	result.Params.Translation = seed.Translation

	rms, err := rs.reprojectionRMS(store, camIdx, validViews, result.Params, result.ViewPoses)
	if err != nil {
		return nil, errors.Wrapf(ErrResectioningFailed, "camera %d: %v", camIdx, err)
	}
	result.PixelRMS = rms
	return result, nil
}

func (rs *Resectioner) resectPlanar(store *ObservationStore, camIdx int, validViews []int) (*ResectionResult, error) {
	ppx := float64(rs.config.ImageWidth) / 2
	ppy := float64(rs.config.ImageHeight) / 2

	homographies := make(map[int]*mat.Dense, len(validViews))
	for _, viewIdx := range validViews {
		template := store.Template(viewIdx)
		planePts := make([]r2.Point, len(template))
		for i, pt := range template {
			planePts[i] = r2.Point{X: pt.X, Y: pt.Y}
		}
		h, err := transform.ComputeHomographyAllPoints(planePts, store.Detection(camIdx, viewIdx))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot estimate homography for view %d", viewIdx)
		}
		homographies[viewIdx] = h
	}

	fx, fy, err := solveFocalLengths(homographies, ppx, ppy)
	if err != nil {
		return nil, err
	}
	intrinsics := &transform.PinholeCameraIntrinsics{
		Width:  rs.config.ImageWidth,
		Height: rs.config.ImageHeight,
		Fx:     fx,
		Fy:     fy,
		Ppx:    ppx,
		Ppy:    ppy,
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	k := intrinsics.CameraMatrix()

	poses := make(map[int]Pose, len(validViews))
	for _, viewIdx := range validViews {
		rot, trans, err := transform.PoseFromHomography(k, homographies[viewIdx])
		if err != nil {
			return nil, errors.Wrapf(err, "cannot extract pose for view %d", viewIdx)
		}
		poses[viewIdx] = Pose{Rotation: rot, Translation: trans}
	}

	dist := rs.estimateDistortion(store, camIdx, validViews, k, poses)
	return &ResectionResult{
		Params:    &CameraParameters{CameraMatrix: k, DistCoeffs: dist},
		ViewPoses: poses,
	}, nil
}

func (rs *Resectioner) resectVolumetric(store *ObservationStore, camIdx int, validViews []int) (*ResectionResult, error) {
	poses := make(map[int]Pose, len(validViews))
	var fxSum, fySum, ppxSum, ppySum float64
	for _, viewIdx := range validViews {
		k, rot, trans, err := transform.DLTResection(store.Template(viewIdx), store.Detection(camIdx, viewIdx))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot resect view %d", viewIdx)
		}
		poses[viewIdx] = Pose{Rotation: rot, Translation: trans}
		fxSum += k.At(0, 0)
		fySum += k.At(1, 1)
		ppxSum += k.At(0, 2)
		ppySum += k.At(1, 2)
	}
	n := float64(len(validViews))
	intrinsics := &transform.PinholeCameraIntrinsics{
		Width:  rs.config.ImageWidth,
		Height: rs.config.ImageHeight,
		Fx:     fxSum / n,
		Fy:     fySum / n,
		Ppx:    ppxSum / n,
		Ppy:    ppySum / n,
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return &ResectionResult{
		Params:    &CameraParameters{CameraMatrix: intrinsics.CameraMatrix(), DistCoeffs: make([]float64, 5)},
		ViewPoses: poses,
	}, nil
}

// solveFocalLengths solves the per-view homography constraints
// h1ᵀ·B·h2 = 0 and h1ᵀ·B·h1 = h2ᵀ·B·h2 for B = diag(1/fx², 1/fy², 1), after
// shifting each homography by the fixed principal point. Every view
// contributes two equations; one view is enough.
func solveFocalLengths(homographies map[int]*mat.Dense, ppx, ppy float64) (float64, float64, error) {
	shift := mat.NewDense(3, 3, []float64{
		1, 0, -ppx,
		0, 1, -ppy,
		0, 0, 1,
	})
	a := mat.NewDense(2*len(homographies), 2, nil)
	b := mat.NewVecDense(2*len(homographies), nil)
	row := 0
	for _, h := range homographies {
		var shifted mat.Dense
		shifted.Mul(shift, h)
		h11, h12 := shifted.At(0, 0), shifted.At(0, 1)
		h21, h22 := shifted.At(1, 0), shifted.At(1, 1)
		h31, h32 := shifted.At(2, 0), shifted.At(2, 1)
		a.SetRow(row, []float64{h11 * h12, h21 * h22})
		b.SetVec(row, -h31*h32)
		a.SetRow(row+1, []float64{h11*h11 - h12*h12, h21*h21 - h22*h22})
		b.SetVec(row+1, -(h31*h31 - h32*h32))
		row += 2
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return 0, 0, errors.Wrap(err, "focal length system is singular")
	}
	alpha, beta := sol.AtVec(0), sol.AtVec(1)
	if alpha <= 0 || beta <= 0 {
		return 0, 0, errors.Errorf("focal length solution is not physical (%v, %v)", alpha, beta)
	}
	return 1 / math.Sqrt(alpha), 1 / math.Sqrt(beta), nil
}

// estimateDistortion fits the radial coefficients k1, k2 by linear least
// squares on the normalized residuals between observed and ideally projected
// points. Failure leaves the coefficients at zero.
func (rs *Resectioner) estimateDistortion(
	store *ObservationStore,
	camIdx int,
	validViews []int,
	k *mat.Dense,
	poses map[int]Pose,
) []float64 {
	dist := make([]float64, 5)
	fx, fy := k.At(0, 0), k.At(1, 1)
	ppx, ppy := k.At(0, 2), k.At(1, 2)

	var rows [][2]float64
	var rhs []float64
	for _, viewIdx := range validViews {
		template := store.Template(viewIdx)
		observed := store.Detection(camIdx, viewIdx)
		pose := poses[viewIdx]
		rot := transform.RotationMatrixFromAxisAngle(pose.Rotation)
		for i, pt := range template {
			xc := rot.At(0, 0)*pt.X + rot.At(0, 1)*pt.Y + rot.At(0, 2)*pt.Z + pose.Translation.X
			yc := rot.At(1, 0)*pt.X + rot.At(1, 1)*pt.Y + rot.At(1, 2)*pt.Z + pose.Translation.Y
			zc := rot.At(2, 0)*pt.X + rot.At(2, 1)*pt.Y + rot.At(2, 2)*pt.Z + pose.Translation.Z
			if zc <= 0 {
				continue
			}
			x, y := xc/zc, yc/zc
			r2n := x*x + y*y
			xObs := (observed[i].X - ppx) / fx
			yObs := (observed[i].Y - ppy) / fy
			rows = append(rows, [2]float64{x * r2n, x * r2n * r2n})
			rhs = append(rhs, xObs-x)
			rows = append(rows, [2]float64{y * r2n, y * r2n * r2n})
			rhs = append(rhs, yObs-y)
		}
	}
	if len(rows) < 4 {
		return dist
	}
	a := mat.NewDense(len(rows), 2, nil)
	for i, r := range rows {
		a.SetRow(i, []float64{r[0], r[1]})
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, mat.NewVecDense(len(rhs), rhs)); err != nil {
		rs.logger.Debugw("distortion fit failed, assuming no distortion", "camera", camIdx, "error", err)
		return dist
	}
	dist[0] = sol.AtVec(0)
	dist[1] = sol.AtVec(1)
	return dist
}

// refinePose polishes one view's extrinsics by minimizing that view's
// reprojection error with the camera's intrinsics frozen.
func (rs *Resectioner) refinePose(
	store *ObservationStore,
	camIdx, viewIdx int,
	params *CameraParameters,
	pose Pose,
) (Pose, error) {
	template := store.Template(viewIdx)
	observed := store.Detection(camIdx, viewIdx)
	distorter, err := params.Distorter()
	if err != nil {
		return Pose{}, err
	}
	problem := nlls.Problem{
		Residuals: func(x []float64) ([]float64, error) {
			rot := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
			trans := r3.Vector{X: x[3], Y: x[4], Z: x[5]}
			projected, err := transform.ProjectPoints(template, params.CameraMatrix, distorter, rot, trans)
			if err != nil {
				return nil, err
			}
			res := make([]float64, 2*len(template))
			for i := range projected {
				res[2*i] = projected[i].X - observed[i].X
				res[2*i+1] = projected[i].Y - observed[i].Y
			}
			return res, nil
		},
	}
	settings := nlls.DefaultSettings()
	settings.Loss = nlls.LinearLoss
	settings.MaxIterations = 50
	settings.CostTolerance = 1e-12
	solved, err := nlls.Solve(problem, []float64{
		pose.Rotation.X, pose.Rotation.Y, pose.Rotation.Z,
		pose.Translation.X, pose.Translation.Y, pose.Translation.Z,
	}, settings)
	if err != nil {
		return Pose{}, err
	}
	return Pose{
		Rotation:    r3.Vector{X: solved.X[0], Y: solved.X[1], Z: solved.X[2]},
		Translation: r3.Vector{X: solved.X[3], Y: solved.X[4], Z: solved.X[5]},
	}, nil
}

func (rs *Resectioner) reprojectionRMS(
	store *ObservationStore,
	camIdx int,
	validViews []int,
	params *CameraParameters,
	poses map[int]Pose,
) (float64, error) {
	distorter, err := params.Distorter()
	if err != nil {
		return 0, err
	}
	var sumSq float64
	var count int
	for _, viewIdx := range validViews {
		template := store.Template(viewIdx)
		observed := store.Detection(camIdx, viewIdx)
		pose := poses[viewIdx]
		projected, err := transform.ProjectPoints(template, params.CameraMatrix, distorter, pose.Rotation, pose.Translation)
		if err != nil {
			return 0, errors.Wrapf(err, "cannot reproject view %d", viewIdx)
		}
		for i := range projected {
			dx := projected[i].X - observed[i].X
			dy := projected[i].Y - observed[i].Y
			sumSq += dx*dx + dy*dy
			count += 2
		}
	}
	if count == 0 {
		return math.Inf(1), nil
	}
	return math.Sqrt(sumSq / float64(count)), nil
}
