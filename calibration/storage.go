package calibration

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// Storage holds the published calibration for consumption by triangulators.
// Published parameters are deep copies; readers may use them concurrently
// while a new session is being calibrated.
type Storage struct {
	mu         sync.RWMutex
	cameras    []*CameraParameters
	calibrated bool
	onChange   func()
}

// NewStorage returns an empty storage.
func NewStorage() *Storage {
	return &Storage{}
}

// SetChangeListener registers a callback invoked synchronously after every
// store or clear.
func (s *Storage) SetChangeListener(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Store publishes a calibration, replacing any previous one.
func (s *Storage) Store(cameras []*CameraParameters) {
	copied := make([]*CameraParameters, len(cameras))
	for i, cam := range cameras {
		copied[i] = cam.Clone()
	}
	s.mu.Lock()
	s.cameras = copied
	s.calibrated = true
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Get returns a copy of the stored calibration, or false if none exists.
func (s *Storage) Get() ([]*CameraParameters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.calibrated {
		return nil, false
	}
	copied := make([]*CameraParameters, len(s.cameras))
	for i, cam := range s.cameras {
		copied[i] = cam.Clone()
	}
	return copied, true
}

// IsCalibrated reports whether a calibration has been published.
func (s *Storage) IsCalibrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calibrated
}

// Clear discards the stored calibration.
func (s *Storage) Clear() {
	s.mu.Lock()
	s.cameras = nil
	s.calibrated = false
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// calibrationJSON is the persisted form: one entry per camera, row-major
// nested arrays for matrices.
type calibrationJSON struct {
	CameraMatrices [][][]float64 `json:"camera_matrices"`
	DistCoeffs     [][]float64   `json:"dist_coeffs"`
	Rotations      [][]float64   `json:"rotations"`
	Translations   [][]float64   `json:"translations"`
}

// MarshalJSON serializes the stored calibration.
func (s *Storage) MarshalJSON() ([]byte, error) {
	cameras, ok := s.Get()
	if !ok {
		return nil, errors.New("no calibration to serialize")
	}
	out := calibrationJSON{}
	for _, cam := range cameras {
		matrix := make([][]float64, 3)
		for i := range matrix {
			matrix[i] = append([]float64(nil), cam.CameraMatrix.RawRowView(i)...)
		}
		out.CameraMatrices = append(out.CameraMatrices, matrix)
		out.DistCoeffs = append(out.DistCoeffs, append([]float64(nil), cam.DistCoeffs...))
		out.Rotations = append(out.Rotations, []float64{cam.Rotation.X, cam.Rotation.Y, cam.Rotation.Z})
		out.Translations = append(out.Translations, []float64{cam.Translation.X, cam.Translation.Y, cam.Translation.Z})
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the stored calibration with the serialized one.
func (s *Storage) UnmarshalJSON(data []byte) error {
	var in calibrationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "error parsing calibration JSON")
	}
	n := len(in.CameraMatrices)
	if len(in.DistCoeffs) != n || len(in.Rotations) != n || len(in.Translations) != n {
		return errors.New("calibration JSON arrays have mismatched camera counts")
	}
	cameras := make([]*CameraParameters, n)
	for i := 0; i < n; i++ {
		if len(in.CameraMatrices[i]) != 3 {
			return errors.Errorf("camera %d matrix must have 3 rows", i)
		}
		k := mat.NewDense(3, 3, nil)
		for r, row := range in.CameraMatrices[i] {
			if len(row) != 3 {
				return errors.Errorf("camera %d matrix must have 3 columns", i)
			}
			k.SetRow(r, row)
		}
		if len(in.Rotations[i]) != 3 || len(in.Translations[i]) != 3 {
			return errors.Errorf("camera %d pose vectors must have 3 elements", i)
		}
		cameras[i] = &CameraParameters{
			CameraMatrix: k,
			DistCoeffs:   append([]float64(nil), in.DistCoeffs[i]...),
			Rotation:     r3.Vector{X: in.Rotations[i][0], Y: in.Rotations[i][1], Z: in.Rotations[i][2]},
			Translation:  r3.Vector{X: in.Translations[i][0], Y: in.Translations[i][1], Z: in.Translations[i][2]},
		}
	}
	s.Store(cameras)
	return nil
}

// SaveToFile writes the stored calibration as JSON.
func (s *Storage) SaveToFile(path string) error {
	data, err := json.MarshalIndent(s, "", " ")
	if err != nil {
		return err
	}
	//nolint:gosec
	return os.WriteFile(path, data, 0o644)
}

// NewStorageFromFile reads a calibration JSON file into a new storage.
func NewStorageFromFile(path string) (*Storage, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening calibration file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	storage := NewStorage()
	if err := json.NewDecoder(f).Decode(storage); err != nil {
		return nil, errors.Wrap(err, "error parsing calibration file")
	}
	return storage, nil
}
