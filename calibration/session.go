package calibration

import (
	"fmt"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Session runs one calibration from observation capture to a published
// result: record views, resection each camera, jointly optimize and, on
// success, publish the parameters to storage. A Session is single-threaded;
// RecordView must not run concurrently with Calibrate.
type Session struct {
	store    *ObservationStore
	config   *Config
	storage  *Storage
	logger   golog.Logger
	listener Listener
}

// NewSession builds a session with explicit dependencies. The storage may be
// nil when the caller consumes the Result directly; the listener may be nil.
func NewSession(config *Config, storage *Storage, logger golog.Logger, listener Listener) (*Session, error) {
	if err := config.CheckValid(); err != nil {
		return nil, err
	}
	return &Session{
		store:    NewObservationStore(),
		config:   config,
		storage:  storage,
		logger:   logger,
		listener: listener,
	}, nil
}

// Store exposes the session's observation store.
func (cs *Session) Store() *ObservationStore {
	return cs.store
}

// Begin resets the session for a fixed number of cameras.
func (cs *Session) Begin(numCameras int) error {
	return cs.store.BeginSession(numCameras)
}

// RecordView stores one view's template and per-camera detections and
// reports how many cameras detected the target.
func (cs *Session) RecordView(viewIdx int, template []r3.Vector, detections [][]r2.Point) (int, error) {
	present, err := cs.store.RecordView(viewIdx, template, detections)
	if err != nil {
		return 0, err
	}
	cs.listener.notify(Event{Kind: EventViewRecorded, View: viewIdx, PresentCount: present})
	return present, nil
}

// Calibrate runs resectioning and bundle adjustment over the recorded
// observations. It always returns a Result; a resectioning failure aborts
// the run and is surfaced with the offending camera index, since a bad
// camera invalidates the joint optimization.
func (cs *Session) Calibrate() *Result {
	numCameras := cs.store.NumCameras()
	if numCameras < cs.config.MinCameras {
		return &Result{
			Success:    false,
			Message:    fmt.Sprintf("%v: have %d cameras, need %d", ErrInsufficientData, numCameras, cs.config.MinCameras),
			Err:        ErrInsufficientData,
			OverallRMS: math.Inf(1),
		}
	}

	resectioner := NewResectioner(cs.config, cs.logger)
	cameras := make([]*CameraParameters, numCameras)
	for camIdx := 0; camIdx < numCameras; camIdx++ {
		resected, err := resectioner.Resect(cs.store, camIdx)
		if err != nil {
			cs.logger.Warnw("resectioning failed", "camera", camIdx, "error", err)
			return &Result{
				Success:    false,
				Message:    err.Error(),
				Err:        err,
				OverallRMS: math.Inf(1),
			}
		}
		cameras[camIdx] = resected.Params
		cs.logger.Infow("camera resected", "camera", camIdx, "pixel_rms", resected.PixelRMS,
			"valid_views", len(resected.ViewPoses))
		cs.listener.notify(Event{Kind: EventCameraResected, Camera: camIdx, PixelRMS: resected.PixelRMS})
	}

	cs.listener.notify(Event{Kind: EventOptimizationStarted})
	result := NewBundleAdjustment(cameras, cs.store, cs.config, cs.logger).Optimize()
	cs.listener.notify(Event{
		Kind:       EventOptimizationFinished,
		Iterations: result.Iterations,
		FinalCost:  result.OverallRMS,
		Success:    result.Success,
	})

	if result.Success && cs.storage != nil {
		cs.storage.Store(result.Cameras)
	}
	return result
}

// ErrorForResult maps an unsuccessful result back to an error for callers
// that prefer error control flow; it returns nil for successful results.
func ErrorForResult(result *Result) error {
	if result == nil {
		return errors.New("no result")
	}
	if result.Success {
		return nil
	}
	if result.Err != nil {
		return errors.Wrap(result.Err, result.Message)
	}
	return errors.New(result.Message)
}
