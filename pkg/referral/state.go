package referral

import (
	"errors"
	"fmt"
)

// State is a step of one pipeline run
type State int

const (
	Idle State = iota
	ImageEncoding
	ModelInvoking
	SpecialtyInferring
	Geocoding
	NearbySearching
	Complete
	Failed
)

var stateNames = [...]string{
	Idle:               "idle",
	ImageEncoding:      "image_encoding",
	ModelInvoking:      "model_invoking",
	SpecialtyInferring: "specialty_inferring",
	Geocoding:          "geocoding",
	NearbySearching:    "nearby_searching",
	Complete:           "complete",
	Failed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// Observer is told about every state change of a run
type Observer func(runID string, from, to State)

// PipelineError is the Failed outcome of a run. Stage is the state that was
// active when the failure happened; Err is the original typed error.
type PipelineError struct {
	Stage State
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// State always reports Failed
func (e *PipelineError) State() State { return Failed }

// FailedStage returns the stage at which err stopped a run
func FailedStage(err error) (State, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage, true
	}
	return Idle, false
}

// run tracks transitions for a single invocation
type run struct {
	id       string
	state    State
	observer Observer
}

func (r *run) enter(next State) {
	prev := r.state
	r.state = next
	if r.observer != nil {
		r.observer(r.id, prev, next)
	}
}

func (r *run) fail(err error) error {
	stage := r.state
	r.enter(Failed)
	return &PipelineError{Stage: stage, Err: err}
}
