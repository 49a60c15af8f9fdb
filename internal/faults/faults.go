// Package faults classifies failures raised by the assistant's collaborators.
//
// Every collaborator call made by the listener or dialogue loop is wrapped in
// an *Error at the call site so the turn boundary can decide whether to
// recover (speak an apology, log and continue) or stop (missing resources at
// startup).
package faults

import (
	"errors"
	"fmt"
)

// Kind identifies a failure category
type Kind int

const (
	// Capture: microphone or recognizer failed during a capture cycle
	Capture Kind = iota + 1
	// Generation: the response generator failed
	Generation
	// Dispatch: the avatar expression dispatcher failed
	Dispatch
	// Playback: synthesis or audio output failed
	Playback
	// MissingResource: a required key, model or device is unavailable
	MissingResource
)

func (k Kind) String() string {
	switch k {
	case Capture:
		return "capture"
	case Generation:
		return "generation"
	case Dispatch:
		return "dispatch"
	case Playback:
		return "playback"
	case MissingResource:
		return "missing_resource"
	default:
		return "unknown"
	}
}

// Error is a classified failure
type Error struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error in %s", e.Kind, e.Component)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Component, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err. It returns nil if err is nil.
func Wrap(kind Kind, component string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Err: err}
}

// Is reports whether any error in err's chain is a fault of the given kind
func Is(err error, kind Kind) bool {
	var fe *Error
	for err != nil {
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}

// KindOf returns the kind of the outermost fault in err's chain, or 0
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
