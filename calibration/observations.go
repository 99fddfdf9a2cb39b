package calibration

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ObservationStore accumulates, per capture view, the 3D template points and
// the possibly-absent 2D detections of each camera for one calibration
// session. It is mutated only by the record path and must not be written
// concurrently with a bundle-adjustment call reading it; hosts embedding the
// pipeline in a concurrent environment must serialize RecordView against
// Optimize.
type ObservationStore struct {
	numCameras int
	// templates[view] is the 3D template point set, nil until recorded.
	templates [][]r3.Vector
	// detections[camera][view] is the 2D point set, nil when that camera
	// did not detect the target in that view.
	detections [][][]r2.Point
	validViews []map[int]bool
}

// NewObservationStore returns an empty store. BeginSession must be called
// before recording.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{}
}

// BeginSession discards all stored observations and sizes the store for a
// fixed number of cameras.
func (os *ObservationStore) BeginSession(numCameras int) error {
	if numCameras < 1 {
		return errors.Errorf("session needs at least 1 camera, got %d", numCameras)
	}
	os.numCameras = numCameras
	os.templates = nil
	os.detections = make([][][]r2.Point, numCameras)
	os.validViews = make([]map[int]bool, numCameras)
	for i := range os.validViews {
		os.validViews[i] = map[int]bool{}
	}
	return nil
}

// RecordView stores the 3D template for viewIdx (first writer wins) and each
// camera's 2D detection or absence, and returns how many cameras had a
// present detection. The store is left unchanged on error.
func (os *ObservationStore) RecordView(viewIdx int, template []r3.Vector, detections [][]r2.Point) (int, error) {
	if os.numCameras == 0 {
		return 0, errors.New("no session in progress, call BeginSession first")
	}
	if viewIdx < 0 {
		return 0, errors.Errorf("view index must not be negative, got %d", viewIdx)
	}
	if len(detections) != os.numCameras {
		return 0, errors.Wrapf(ErrInconsistentCameraCount,
			"expected %d, got %d", os.numCameras, len(detections))
	}

	// first writer for the view fixes its template
	stored := template
	if viewIdx < len(os.templates) && os.templates[viewIdx] != nil {
		stored = os.templates[viewIdx]
	}
	if len(stored) == 0 {
		return 0, errors.Errorf("view %d has an empty template point set", viewIdx)
	}
	if n := os.NumPoints(); n > 0 && len(stored) != n {
		return 0, errors.Errorf("view %d template has %d points, session uses %d", viewIdx, len(stored), n)
	}
	for camIdx, pts := range detections {
		if pts != nil && len(pts) != len(stored) {
			return 0, errors.Errorf(
				"camera %d detected %d points in view %d, template has %d",
				camIdx, len(pts), viewIdx, len(stored))
		}
	}

	// validated, grow and write
	for viewIdx >= len(os.templates) {
		os.templates = append(os.templates, nil)
	}
	os.templates[viewIdx] = stored
	present := 0
	for camIdx, pts := range detections {
		for viewIdx >= len(os.detections[camIdx]) {
			os.detections[camIdx] = append(os.detections[camIdx], nil)
		}
		if pts != nil {
			os.detections[camIdx][viewIdx] = pts
			os.validViews[camIdx][viewIdx] = true
			present++
		} else {
			os.detections[camIdx][viewIdx] = nil
			delete(os.validViews[camIdx], viewIdx)
		}
	}
	return present, nil
}

// NumCameras returns the session's camera count.
func (os *ObservationStore) NumCameras() int {
	return os.numCameras
}

// NumViews returns the number of view slots, including views never recorded.
func (os *ObservationStore) NumViews() int {
	return len(os.templates)
}

// NumPoints returns the per-view template point count, or 0 before any view
// is recorded. All views of a session share one count.
func (os *ObservationStore) NumPoints() int {
	for _, tmpl := range os.templates {
		if tmpl != nil {
			return len(tmpl)
		}
	}
	return 0
}

// Template returns the 3D template of a view, or nil if the view was never
// recorded.
func (os *ObservationStore) Template(viewIdx int) []r3.Vector {
	if viewIdx < 0 || viewIdx >= len(os.templates) {
		return nil
	}
	return os.templates[viewIdx]
}

// Detection returns a camera's 2D points for a view, or nil if absent.
func (os *ObservationStore) Detection(camIdx, viewIdx int) []r2.Point {
	if camIdx < 0 || camIdx >= os.numCameras {
		return nil
	}
	if viewIdx < 0 || viewIdx >= len(os.detections[camIdx]) {
		return nil
	}
	return os.detections[camIdx][viewIdx]
}

// IsValid reports whether a camera has a present detection for a view.
func (os *ObservationStore) IsValid(camIdx, viewIdx int) bool {
	if camIdx < 0 || camIdx >= os.numCameras {
		return false
	}
	return os.validViews[camIdx][viewIdx]
}

// ValidViews returns a camera's valid view indices in ascending order.
func (os *ObservationStore) ValidViews(camIdx int) []int {
	if camIdx < 0 || camIdx >= os.numCameras {
		return nil
	}
	views := make([]int, 0, len(os.validViews[camIdx]))
	for v := range os.validViews[camIdx] {
		views = append(views, v)
	}
	sort.Ints(views)
	return views
}
