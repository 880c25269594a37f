package hostaudio

import (
	"errors"
	"fmt"
)

// Configuration and resource errors detected at open time, and control-path
// conditions. Real-time conditions (overflow, underflow, missed periods) are
// never errors; they are delivered to the callback as CallbackFlags.
var (
	// ErrDeviceUnavailable is returned by Open while another stream is open.
	// The underlying driver ABI supports a single initialization per process.
	ErrDeviceUnavailable = errors.New("device unavailable: another stream is open")

	// ErrInvalidChannelCount is returned when a requested channel count
	// exceeds the device's, or an explicit channel selector is out of range.
	ErrInvalidChannelCount = errors.New("invalid channel count")

	// ErrNoCompatibleBufferSize is returned when no host buffer size exists
	// that is a multiple of the requested frames per buffer within the
	// device's constraints.
	ErrNoCompatibleBufferSize = errors.New("no compatible host buffer size")

	// ErrUnsupportedSampleFormat is returned when the device reports a
	// native sample encoding with no registered converter.
	ErrUnsupportedSampleFormat = errors.New("unsupported sample format")

	// ErrChannelNotGranted is returned when no granted buffer slot is
	// stamped with a requested physical channel number. Failing the open is
	// preferred over positional assignment, which would silently route audio
	// to the wrong channels.
	ErrChannelNotGranted = errors.New("device did not grant a requested channel")

	// ErrStreamNotStopped is returned by Close while the stream is running.
	ErrStreamNotStopped = errors.New("stream is not stopped")

	// ErrStreamStopped is returned by Stop and Abort on a stream that is
	// already stopped, and by blocking Read/Write after the stream has been
	// stopped.
	ErrStreamStopped = errors.New("stream is stopped")

	// ErrTimedOut reports that a bounded wait expired. It is non-fatal: the
	// operation still forces the stream into a safe state before returning.
	ErrTimedOut = errors.New("wait timed out")

	// ErrNotSupported is returned by optional device operations.
	ErrNotSupported = errors.New("operation not supported")
)

// HostError wraps an error reported by the device driver. It is never
// swallowed: start/stop/abort surface it while still forcing the stream into
// a deterministic state, so callers can rely on IsActive/IsStopped rather
// than the error alone.
type HostError struct {
	Op  string // the device operation that failed
	Err error  // the device-reported error
}

// Error implements the error interface.
func (e *HostError) Error() string {
	return fmt.Sprintf("host error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the device-reported error.
func (e *HostError) Unwrap() error {
	return e.Err
}
