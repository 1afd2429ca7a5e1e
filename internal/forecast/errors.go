package forecast

import "fmt"

// InvalidInputError reports a malformed or empty input series. It is raised
// before any model state is allocated.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// DegenerateDataError reports a series with zero price variance, which cannot
// be normalized.
type DegenerateDataError struct {
	Value float64
}

func (e *DegenerateDataError) Error() string {
	return fmt.Sprintf("degenerate data: all closing prices equal %.4f, cannot normalize a zero-variance series", e.Value)
}

// InsufficientDataError reports a series too short for the requested window
// and horizon, or a windowed dataset below the minimum sample count.
type InsufficientDataError struct {
	Required int
	Actual   int
	Detail   string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("insufficient data: need at least %d data points, got %d", e.Required, e.Actual)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// ModelRuntimeError reports a failure inside forward/backward computation,
// typically a shape mismatch or non-finite values.
type ModelRuntimeError struct {
	Op  string
	Err error
}

func (e *ModelRuntimeError) Error() string {
	return fmt.Sprintf("model runtime: %s: %v", e.Op, e.Err)
}

func (e *ModelRuntimeError) Unwrap() error { return e.Err }
