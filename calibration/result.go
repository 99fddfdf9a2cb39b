package calibration

// CameraStats is one camera's reprojection error summary after optimization.
type CameraStats struct {
	// RMS is the root-mean-square reprojection error in pixels, +Inf for a
	// camera with no valid views.
	RMS float64 `json:"rms"`
	// MaxError is the largest absolute residual component in pixels.
	MaxError float64 `json:"max_error"`
	// ValidViews is how many views contributed.
	ValidViews int `json:"n_valid_views"`
}

// Result is the outcome of a calibration run. It is always returned, even on
// failure, so callers can inspect partial diagnostics and decide whether to
// retry specific views rather than the whole session.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Err carries the failure cause for programmatic checks (errors.Is
	// against the package sentinels); nil on success.
	Err error `json:"-"`

	CameraStats []CameraStats `json:"camera_stats,omitempty"`
	// OverallRMS is the pixel RMS over every residual of every camera.
	OverallRMS float64 `json:"overall_rms"`
	// PhysicalRMSMM is the validator's millimeter accuracy figure, nil when
	// fewer than two cameras overlap or no view triangulated.
	PhysicalRMSMM *float64 `json:"overall_rms_mm,omitempty"`
	// Baselines maps "i-j" camera pairs to their distance in millimeters.
	Baselines map[string]float64 `json:"baselines,omitempty"`

	Iterations   int    `json:"n_iterations"`
	SolverStatus string `json:"status,omitempty"`

	// Cameras are the optimized parameters, one per camera.
	Cameras []*CameraParameters `json:"-"`
}
