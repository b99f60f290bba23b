// Package fsm defines the recording lifecycle as a pure transition function.
package fsm

import "fmt"

// State is one orchestrator-wide lifecycle value.
type State string

// Event drives a lifecycle transition.
type Event string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateLoadingModel State = "loading_model"
	StateTranscribing State = "transcribing"
	StateTyping       State = "typing"
)

const (
	EventStart       Event = "start"
	EventStop        Event = "stop"
	EventCancel      Event = "cancel"
	EventLoadModel   Event = "load_model"
	EventModelLoaded Event = "model_loaded"
	EventType        Event = "type"
	EventFinish      Event = "finish"
	EventReset       Event = "reset"
)

// Busy reports whether a stop-and-transcribe pipeline owns the lifecycle.
func (s State) Busy() bool {
	return s == StateLoadingModel || s == StateTranscribing || s == StateTyping
}

// Transition returns the next state for event, or an error when the event is
// not valid in current. Reset is accepted from every known state.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle, StateRecording, StateLoadingModel, StateTranscribing, StateTyping:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	if event == EventReset {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRecording, nil
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateTranscribing, nil
		case EventCancel:
			return StateIdle, nil
		}
	case StateTranscribing:
		switch event {
		case EventLoadModel:
			return StateLoadingModel, nil
		case EventType:
			return StateTyping, nil
		case EventFinish:
			return StateIdle, nil
		}
	case StateLoadingModel:
		switch event {
		case EventModelLoaded:
			return StateTranscribing, nil
		case EventFinish:
			return StateIdle, nil
		}
	case StateTyping:
		switch event {
		case EventFinish:
			return StateIdle, nil
		}
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
