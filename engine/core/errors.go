package core

import (
	"errors"
	"fmt"
)

var (
	ErrSwapchainOutOfDate  = errors.New("swapchain out of date")
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")
	ErrNoSurfaceFormat     = errors.New("surface reports no formats")
	ErrNoPresentMode       = errors.New("surface reports no present modes")
	ErrNoImageCount        = errors.New("surface reports no usable image count")
	ErrFenceTimeout        = errors.New("fence wait timed out")
	ErrDeviceLost          = errors.New("device lost")
	ErrUnknown             = errors.New("unknown")
	ErrWindowClosed        = errors.New("window closed while waiting for a drawable")
)

// ErrorKind classifies renderer failures so the outer loop can decide
// whether to abort or keep going.
type ErrorKind uint8

const (
	ErrorKindNone ErrorKind = iota
	// Setup or submission rejected by the driver; nothing sensible to degrade to.
	ErrorKindFatal
	// Swapchain no longer matches the surface; handled by recreation.
	ErrorKindStale
	// An ordering rule was broken (pending command buffer reuse, destroying referenced resources).
	ErrorKindInvariant
	// Presentation failed for a reason other than staleness.
	ErrorKindPresent
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindFatal:
		return "fatal"
	case ErrorKindStale:
		return "stale"
	case ErrorKindInvariant:
		return "invariant"
	case ErrorKindPresent:
		return "present"
	default:
		return "none"
	}
}

type RendererError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RendererError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Op, e.Kind, e.Err)
}

func (e *RendererError) Unwrap() error {
	return e.Err
}

func NewFatal(op string, err error) error {
	return &RendererError{Kind: ErrorKindFatal, Op: op, Err: err}
}

func NewStale(op string, err error) error {
	return &RendererError{Kind: ErrorKindStale, Op: op, Err: err}
}

func NewInvariant(op string, err error) error {
	return &RendererError{Kind: ErrorKindInvariant, Op: op, Err: err}
}

func NewPresent(op string, err error) error {
	return &RendererError{Kind: ErrorKindPresent, Op: op, Err: err}
}

// KindOf returns the kind of the outermost RendererError in the chain. Errors
// that were never classified are treated as fatal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var re *RendererError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrorKindFatal
}

func IsFatal(err error) bool {
	k := KindOf(err)
	return k == ErrorKindFatal || k == ErrorKindInvariant
}

// IsStale reports whether err signals an out-of-date or suboptimal swapchain.
func IsStale(err error) bool {
	return errors.Is(err, ErrSwapchainOutOfDate) || errors.Is(err, ErrSwapchainSuboptimal)
}
