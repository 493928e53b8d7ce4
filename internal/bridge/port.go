// Package bridge runs capability module scripts against a vision backend.
//
// A call names a module source, an entry point, its positional string
// arguments and the result shape the caller expects. Calls are serialised
// through a process-wide executor so at most one capability invocation runs
// at a time, in the order they were triggered.
package bridge

import (
	"errors"
	"fmt"
)

// SentinelError is the path value a module returns when its output image
// could not be written.
const SentinelError = "ERROR"

// ReasonSaveFailed is the Outcome reason for an unsaved output image
const ReasonSaveFailed = "save failed"

var (
	ErrModuleInvalid  = errors.New("invalid module")
	ErrEntryNotFound  = errors.New("entry point not found")
	ErrArity          = errors.New("argument count mismatch")
	ErrShapeMismatch  = errors.New("result shape mismatch")
	ErrStepFailed     = errors.New("module step failed")
	ErrPanic          = errors.New("capability panicked")
	ErrExecutorClosed = errors.New("executor closed")
	ErrJobExited      = errors.New("capability exited its goroutine")
)

// Shape is the result tuple a caller expects from an entry point
type Shape int

const (
	// CountPath is (int, string): a count and the output image path
	CountPath Shape = iota
	// FlagPath is (bool, string): a success flag and the output image path
	FlagPath
)

// Returns lists the declared result types of the shape
func (s Shape) Returns() []string {
	switch s {
	case CountPath:
		return []string{"int", "string"}
	case FlagPath:
		return []string{"bool", "string"}
	}
	return nil
}

func (s Shape) String() string {
	switch s {
	case CountPath:
		return "(int, string)"
	case FlagPath:
		return "(bool, string)"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Call is one capability invocation
type Call struct {
	Module    []byte
	Entry     string
	Args      []string
	Shape     Shape
	RequestID string
}

// Outcome is a decoded capability result. The "ERROR" sentinel never leaks
// past this type: an unsaved result has Saved false, an empty Path and a
// Reason.
type Outcome struct {
	Saved  bool
	Count  int
	Path   string
	Reason string
}

// Port invokes capabilities. Errors mean the capability could not run at
// all; a capability that ran but did not save its output reports that in
// the Outcome.
type Port interface {
	Invoke(call Call) (Outcome, error)
}

func decodeOutcome(shape Shape, first any, path string) Outcome {
	out := Outcome{Saved: path != SentinelError && path != ""}
	switch shape {
	case CountPath:
		out.Count = first.(int)
	case FlagPath:
		out.Saved = out.Saved && first.(bool)
	}
	if out.Saved {
		out.Path = path
	} else {
		out.Reason = ReasonSaveFailed
	}
	return out
}
