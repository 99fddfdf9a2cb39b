// Package main is a command that runs the multi-camera calibration pipeline
// on a recorded observations file and writes the resulting calibration JSON.
package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/wwagdikala/vision/calibration"
)

var logger = golog.NewDevelopmentLogger("camcal")

// observationsFile is the recorded session format: one template and one
// detection set (or null) per camera for every view.
type observationsFile struct {
	NumCameras  int    `json:"num_cameras"`
	ImageWidth  int    `json:"image_width_px"`
	ImageHeight int    `json:"image_height_px"`
	Views       []view `json:"views"`
}

type view struct {
	Template   [][]float64   `json:"template"`
	Detections [][][]float64 `json:"detections"`
}

func main() {
	width := flag.Int("width", 1920, "frame width in pixels")
	height := flag.Int("height", 1080, "frame height in pixels")
	flag.Parse()
	if flag.NArg() < 2 {
		logger.Fatal("need two args <observations.json> <calibration.json>")
	}
	if err := realMain(flag.Arg(0), flag.Arg(1), *width, *height); err != nil {
		logger.Fatal(err)
	}
}

func realMain(inPath, outPath string, width, height int) error {
	obs, err := readObservations(inPath)
	if err != nil {
		return err
	}
	if obs.ImageWidth > 0 && obs.ImageHeight > 0 {
		width, height = obs.ImageWidth, obs.ImageHeight
	}

	config := calibration.DefaultConfig()
	config.ImageWidth = width
	config.ImageHeight = height

	storage := calibration.NewStorage()
	session, err := calibration.NewSession(config, storage, logger, func(e calibration.Event) {
		logger.Debugw("calibration event", "kind", e.Kind, "camera", e.Camera, "view", e.View)
	})
	if err != nil {
		return err
	}
	if err := session.Begin(obs.NumCameras); err != nil {
		return err
	}
	for viewIdx, v := range obs.Views {
		template, detections, err := convertView(v, obs.NumCameras)
		if err != nil {
			return errors.Wrapf(err, "view %d", viewIdx)
		}
		present, err := session.RecordView(viewIdx, template, detections)
		if err != nil {
			return errors.Wrapf(err, "view %d", viewIdx)
		}
		logger.Infow("view recorded", "view", viewIdx, "cameras_with_detection", present)
	}

	result := session.Calibrate()
	if !result.Success {
		return errors.Errorf("calibration failed: %s", result.Message)
	}
	logger.Infow("calibration succeeded",
		"overall_rms_px", result.OverallRMS,
		"iterations", result.Iterations,
		"baselines_mm", result.Baselines)
	if result.PhysicalRMSMM != nil {
		logger.Infow("physical accuracy", "rms_mm", *result.PhysicalRMSMM)
	}
	for camIdx, stats := range result.CameraStats {
		logger.Infow("camera statistics", "camera", camIdx,
			"rms_px", stats.RMS, "max_error_px", stats.MaxError, "valid_views", stats.ValidViews)
	}
	return storage.SaveToFile(outPath)
}

func readObservations(path string) (*observationsFile, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening observations file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	var obs observationsFile
	if err := json.NewDecoder(f).Decode(&obs); err != nil {
		return nil, errors.Wrap(err, "error parsing observations file")
	}
	if obs.NumCameras < 1 {
		return nil, errors.New("observations file must declare num_cameras")
	}
	return &obs, nil
}

func convertView(v view, numCameras int) ([]r3.Vector, [][]r2.Point, error) {
	template := make([]r3.Vector, len(v.Template))
	for i, pt := range v.Template {
		if len(pt) != 3 {
			return nil, nil, errors.Errorf("template point %d must have 3 coordinates", i)
		}
		template[i] = r3.Vector{X: pt[0], Y: pt[1], Z: pt[2]}
	}
	if len(v.Detections) != numCameras {
		return nil, nil, errors.Errorf("view has %d detection sets, session has %d cameras", len(v.Detections), numCameras)
	}
	detections := make([][]r2.Point, numCameras)
	for camIdx, pts := range v.Detections {
		if pts == nil {
			continue
		}
		detections[camIdx] = make([]r2.Point, len(pts))
		for i, pt := range pts {
			if len(pt) != 2 {
				return nil, nil, errors.Errorf("camera %d point %d must have 2 coordinates", camIdx, i)
			}
			detections[camIdx][i] = r2.Point{X: pt[0], Y: pt[1]}
		}
	}
	return template, detections, nil
}
