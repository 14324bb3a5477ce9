// Package status defines the observable status taxonomy shared by every
// stage of the transport pipeline (see spec.md §6 and §7).
package status

import "fmt"

// Code is the result of a pipeline operation. Every pipeline stage returns
// one of these instead of an ad-hoc error type so that callers can branch
// on terminal vs. non-terminal outcomes without type assertions.
type Code int

const (
	// Ok indicates success.
	Ok Code = iota
	// NoData means the call produced nothing this time, but the caller
	// should keep calling (e.g. resampler starved of input).
	NoData
	// Drain means the source is permanently exhausted.
	Drain
	// NoSpace means a fixed-capacity buffer is full.
	NoSpace
	// Limit means a configured limit (max_sessions, max capacity) was hit.
	Limit
	// BadFormat means a parsed byte sequence violated the wire format.
	BadFormat
	// BadPacket is an alias condition for BadFormat raised above the wire
	// layer (e.g. FEC block abort on short buffer).
	BadPacket
	// BadConfig means construction-time configuration was invalid.
	BadConfig
	// OutOfMemory means a pool or allocation could not satisfy a request.
	OutOfMemory
	// ErrRand means a secure random source failed.
	ErrRand
	// Finish means a session or stage has permanently terminated.
	Finish
	// NoRoute means an outbound router found no matching route.
	NoRoute
	// Part means a partial result was produced (never valid from a frame
	// write — see spec.md §7).
	Part
	// Abort means an in-progress block/operation was aborted and its
	// state reset.
	Abort
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case NoData:
		return "NoData"
	case Drain:
		return "Drain"
	case NoSpace:
		return "NoSpace"
	case Limit:
		return "Limit"
	case BadFormat:
		return "BadFormat"
	case BadPacket:
		return "BadPacket"
	case BadConfig:
		return "BadConfig"
	case OutOfMemory:
		return "OutOfMemory"
	case ErrRand:
		return "ErrRand"
	case Finish:
		return "Finish"
	case NoRoute:
		return "NoRoute"
	case Part:
		return "Part"
	case Abort:
		return "Abort"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Terminal reports whether a code represents a condition from which a
// session cannot recover without being rebuilt.
func (c Code) Terminal() bool {
	switch c {
	case Finish, BadConfig, OutOfMemory:
		return true
	default:
		return false
	}
}

// Error wraps a Code as an error, so pipeline internals that need to
// satisfy the error interface (e.g. to use fmt.Errorf's %w) can do so
// without losing the code.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New builds an *Error from a code and a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error,
// otherwise returns Ok if err is nil or BadFormat as a conservative
// default for unrecognized errors.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var se *Error
	if ok := asStatusError(err, &se); ok {
		return se.Code
	}
	return BadFormat
}

func asStatusError(err error, target **Error) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			*target = se
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
