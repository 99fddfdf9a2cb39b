package calibration

import "github.com/pkg/errors"

var (
	// ErrInsufficientData is when there are too few cameras or views to attempt optimization.
	ErrInsufficientData = errors.New("not enough cameras or views for bundle adjustment")
	// ErrInconsistentCameraCount is when a recorded view's camera count mismatches the session.
	ErrInconsistentCameraCount = errors.New("inconsistent camera count")
	// ErrInsufficientViews is when a camera has no valid observations to resection from.
	ErrInsufficientViews = errors.New("no valid views for camera")
	// ErrResectioningFailed is when single-camera calibration did not produce a usable solution.
	ErrResectioningFailed = errors.New("single camera calibration failed")
	// ErrNumericalFailure is when the optimizer or an alignment step failed numerically.
	ErrNumericalFailure = errors.New("numerical failure")
)
