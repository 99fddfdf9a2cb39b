package calibration

// EventKind tags the discrete lifecycle notifications the pipeline emits.
type EventKind string

const (
	// EventViewRecorded fires after RecordView stores a view.
	EventViewRecorded = EventKind("view_recorded")
	// EventCameraResected fires after a camera's single calibration completes.
	EventCameraResected = EventKind("camera_resected")
	// EventOptimizationStarted fires when bundle adjustment begins.
	EventOptimizationStarted = EventKind("optimization_started")
	// EventOptimizationFinished fires when bundle adjustment returns.
	EventOptimizationFinished = EventKind("optimization_finished")
)

// Event is one lifecycle notification. Only the fields relevant to the kind
// are populated.
type Event struct {
	Kind         EventKind
	Camera       int
	View         int
	PresentCount int
	PixelRMS     float64
	Iterations   int
	FinalCost    float64
	Success      bool
}

// Listener receives events synchronously after each pipeline step. A nil
// Listener is valid and receives nothing.
type Listener func(Event)

func (l Listener) notify(e Event) {
	if l != nil {
		l(e)
	}
}
