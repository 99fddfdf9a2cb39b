package calibration

import "github.com/pkg/errors"

// Config carries the fixed engineering constants of the calibration
// pipeline. The solver constants are not user-exposed knobs; callers
// normally start from DefaultConfig and set only the image size.
type Config struct {
	// ImageWidth and ImageHeight are the pixel dimensions of the camera
	// frames the 2D detections were measured in. The resectioner fixes each
	// camera's principal point at the image center.
	ImageWidth  int `json:"image_width_px"`
	ImageHeight int `json:"image_height_px"`
	// RequiredViews is how many views the host should collect before
	// calibrating. The pipeline itself only needs one valid view per camera.
	RequiredViews int `json:"required_views"`
	// MinCameras is the floor for Optimize; triangulation and validation
	// need pairs, so it defaults to 2.
	MinCameras int `json:"min_cameras"`

	MaxIterations int     `json:"max_iterations"`
	CostTolerance float64 `json:"cost_tolerance"`
	RobustScale   float64 `json:"robust_scale"`
}

// DefaultConfig returns the pipeline constants for full-HD frames.
func DefaultConfig() *Config {
	return &Config{
		ImageWidth:    1920,
		ImageHeight:   1080,
		RequiredViews: 5,
		MinCameras:    2,
		MaxIterations: 200,
		CostTolerance: 1e-10,
		RobustScale:   1.0,
	}
}

// CheckValid checks if the fields for Config have valid inputs.
func (c *Config) CheckValid() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return errors.Errorf("invalid image size (%d, %d)", c.ImageWidth, c.ImageHeight)
	}
	if c.MinCameras < 2 {
		return errors.Errorf("min_cameras must be at least 2, got %d", c.MinCameras)
	}
	if c.MaxIterations <= 0 {
		return errors.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.CostTolerance <= 0 {
		return errors.Errorf("cost_tolerance must be positive, got %v", c.CostTolerance)
	}
	if c.RobustScale <= 0 {
		return errors.Errorf("robust_scale must be positive, got %v", c.RobustScale)
	}
	return nil
}
