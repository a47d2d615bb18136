package render

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClasses(t *testing.T) {
	cause := errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")

	tests := []struct {
		name  string
		err   error
		class error
	}{
		{name: "device", err: DeviceError(cause, "allocate memory"), class: ErrDevice},
		{name: "submission", err: SubmissionError(cause, "queue submit"), class: ErrSubmission},
		{name: "resource", err: ResourceLoadError(cause, "read shader"), class: ErrResourceLoad},
		{name: "recording", err: RecordingError(cause, "end command buffer"), class: ErrRecording},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.err)
			assert.True(t, errors.Is(tc.err, tc.class))
			assert.True(t, errors.Is(tc.err, cause))
			assert.Contains(t, tc.err.Error(), "VK_ERROR_OUT_OF_DEVICE_MEMORY")
		})
	}
}

func TestErrorHelpersPassNil(t *testing.T) {
	assert.NoError(t, DeviceError(nil, "x"))
	assert.NoError(t, SubmissionError(nil, "x"))
	assert.NoError(t, ResourceLoadError(nil, "x"))
	assert.NoError(t, RecordingError(nil, "x"))
	assert.NoError(t, InPhase(PhaseInit, nil))
}

func TestFenceTimeoutError(t *testing.T) {
	err := DeviceError(FenceTimeoutError(2*time.Second), "wait for in-flight fence")

	assert.True(t, errors.Is(err, ErrFenceTimeout))
	assert.True(t, errors.Is(err, ErrDevice))
	assert.Contains(t, err.Error(), "2s")
}

func TestPhaseError(t *testing.T) {
	cause := SurfaceStaleError("swapchain out of date")
	err := InPhase(PhaseLoop, cause)

	assert.Equal(t, "main loop failed: swapchain out of date", err.Error())
	assert.True(t, errors.Is(err, ErrSurfaceStale))

	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, PhaseLoop, phaseErr.Phase)
}
