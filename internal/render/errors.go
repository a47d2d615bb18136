package render

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Error classes. Wrapped errors carry one of these as a marker so that callers
// can classify them with errors.Is.
var (
	// ErrDevice marks a failed creation, allocation or wait against the GPU.
	ErrDevice = errors.New("device error")
	// ErrSubmission marks a queue submit or present that failed for a reason
	// other than a stale surface.
	ErrSubmission = errors.New("submission error")
	// ErrSurfaceStale marks an out-of-date or suboptimal swapchain. The frame
	// loop recovers from it by recreating the swapchain.
	ErrSurfaceStale = errors.New("surface out of date")
	// ErrResourceLoad marks an asset (shader, mesh, texture) that could not be
	// read or decoded.
	ErrResourceLoad = errors.New("resource load error")
	// ErrRecording marks a failure to begin or end a command buffer.
	ErrRecording = errors.New("recording error")
	// ErrFenceTimeout marks a fence wait that exceeded the configured timeout.
	ErrFenceTimeout = errors.New("fence wait timed out")
)

func mark(err error, class error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), class)
}

func DeviceError(err error, msg string) error {
	return mark(err, ErrDevice, msg)
}

func DeviceErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrDevice)
}

func SubmissionError(err error, msg string) error {
	return mark(err, ErrSubmission, msg)
}

func ResourceLoadError(err error, msg string) error {
	return mark(err, ErrResourceLoad, msg)
}

func RecordingError(err error, msg string) error {
	return mark(err, ErrRecording, msg)
}

func SurfaceStaleError(msg string) error {
	return errors.Mark(errors.New(msg), ErrSurfaceStale)
}

func FenceTimeoutError(timeout time.Duration) error {
	return errors.Mark(errors.Newf("no signal after %s", timeout), ErrFenceTimeout)
}

// Phase names used when reporting a fatal error from the entry point.
const (
	PhaseWindow  = "window"
	PhaseInit    = "vulkan init"
	PhaseLoop    = "main loop"
	PhaseCleanup = "cleanup"
)

// PhaseError records which phase of the program a fatal error escaped from.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// InPhase attaches phase to err. It returns nil for a nil error.
func InPhase(phase string, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}
