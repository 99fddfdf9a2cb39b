package calibration

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"go.uber.org/multierr"

	"github.com/wwagdikala/vision/transform"
)

// outlierMADFactor is the width of the robust screen: a view is an outlier
// when its median error exceeds median + 2.5·MAD of the per-view medians.
const outlierMADFactor = 2.5

// Validator measures the physical accuracy of a calibrated camera pair: it
// independently triangulates corresponding detections per view, rigidly
// aligns the triangulated cloud to the known template, and reports a robust
// RMS in millimeters after discarding statistically outlying views. A single
// bad view (a pattern mis-detection) would dominate a naive mean, so the
// screen uses the median absolute deviation, which the outliers being
// screened for cannot inflate.
type Validator struct {
	logger golog.Logger
}

// NewValidator returns a validator.
func NewValidator(logger golog.Logger) *Validator {
	return &Validator{logger: logger}
}

type viewErrors struct {
	view   int
	errors []float64
	median float64
}

// PhysicalRMS triangulates every view both cameras observed and returns the
// millimeter RMS over the views that survive the outlier screen. The second
// return is false when no view produced a usable triangulation. Per-view
// failures are logged and skipped, never aborting the validation.
func (v *Validator) PhysicalRMS(cam0, cam1 *CameraParameters, store *ObservationStore) (float64, bool) {
	proj0, err := cam0.ProjectionMatrix()
	if err != nil {
		v.logger.Warnw("cannot build projection matrix", "camera", 0, "error", err)
		return 0, false
	}
	proj1, err := cam1.ProjectionMatrix()
	if err != nil {
		v.logger.Warnw("cannot build projection matrix", "camera", 1, "error", err)
		return 0, false
	}

	var perView []viewErrors
	var skipped error
	for viewIdx := 0; viewIdx < store.NumViews(); viewIdx++ {
		pts0 := store.Detection(0, viewIdx)
		pts1 := store.Detection(1, viewIdx)
		if pts0 == nil || pts1 == nil {
			continue
		}
		template := store.Template(viewIdx)

		triangulated, err := transform.TriangulatePoints(proj0, proj1, pts0, pts1)
		if err != nil {
			skipped = multierr.Append(skipped, err)
			v.logger.Debugw("skipping view, triangulation failed", "view", viewIdx, "error", err)
			continue
		}
		rigid, err := transform.EstimateRigidTransform(template, triangulated)
		if err != nil {
			skipped = multierr.Append(skipped, err)
			v.logger.Debugw("skipping view, alignment failed", "view", viewIdx, "error", err)
			continue
		}

		dists := make([]float64, len(template))
		for i := range template {
			dists[i] = rigid.Apply(template[i]).Sub(triangulated[i]).Norm()
		}
		median, err := stats.Median(dists)
		if err != nil {
			skipped = multierr.Append(skipped, err)
			continue
		}
		perView = append(perView, viewErrors{view: viewIdx, errors: dists, median: median})
	}
	if skipped != nil {
		v.logger.Debugw("some views were skipped during validation", "errors", skipped)
	}
	if len(perView) == 0 {
		return 0, false
	}

	medians := make([]float64, len(perView))
	for i, ve := range perView {
		medians[i] = ve.median
	}
	center, err := stats.Median(medians)
	if err != nil {
		return 0, false
	}
	mad, err := stats.MedianAbsoluteDeviation(medians)
	if err != nil {
		return 0, false
	}
	threshold := center + outlierMADFactor*mad

	var kept []float64
	for _, ve := range perView {
		if ve.median > threshold {
			v.logger.Infow("excluding outlier view from accuracy estimate",
				"view", ve.view, "median_mm", ve.median, "threshold_mm", threshold)
			continue
		}
		kept = append(kept, ve.errors...)
	}
	if len(kept) == 0 {
		return 0, false
	}
	sumSq := 0.0
	for _, e := range kept {
		sumSq += e * e
	}
	return math.Sqrt(sumSq / float64(len(kept))), true
}
