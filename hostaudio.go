// Package hostaudio implements a real-time audio host adapter core: it
// negotiates a device's native buffer layout against an application's
// requested logical channel layout, selects a host buffer size from the
// device's constraints, and drives a fixed-period double-buffered callback
// loop with overflow/underflow accounting and graceful stop semantics.
//
// The device driver is abstracted behind the Device interface; see the
// alsadev subpackage for a Linux ALSA implementation.
package hostaudio

// SampleFormat identifies a device-native sample encoding.
// The values correspond to the sample type constants of the double-buffered
// driver ABI and must not be renumbered.
type SampleFormat int32

const (
	FORMAT_INVALID SampleFormat = -1

	FORMAT_INT16_BE   SampleFormat = 0
	FORMAT_INT24_BE   SampleFormat = 1 // packed 24 bit
	FORMAT_INT32_BE   SampleFormat = 2
	FORMAT_FLOAT32_BE SampleFormat = 3
	FORMAT_FLOAT64_BE SampleFormat = 4

	// 32 bit container with a reduced number of significant bits,
	// right-aligned. The data is left-shifted into a full int32 on input.
	FORMAT_INT32_BE16 SampleFormat = 8
	FORMAT_INT32_BE18 SampleFormat = 9
	FORMAT_INT32_BE20 SampleFormat = 10
	FORMAT_INT32_BE24 SampleFormat = 11

	FORMAT_INT16_LE   SampleFormat = 16
	FORMAT_INT24_LE   SampleFormat = 17 // packed 24 bit
	FORMAT_INT32_LE   SampleFormat = 18
	FORMAT_FLOAT32_LE SampleFormat = 19
	FORMAT_FLOAT64_LE SampleFormat = 20

	FORMAT_INT32_LE16 SampleFormat = 24
	FORMAT_INT32_LE18 SampleFormat = 25
	FORMAT_INT32_LE20 SampleFormat = 26
	FORMAT_INT32_LE24 SampleFormat = 27
)

// FormatNames provides human-readable names for sample formats.
var FormatNames = map[SampleFormat]string{
	FORMAT_INT16_BE:   "INT16_BE",
	FORMAT_INT24_BE:   "INT24_BE",
	FORMAT_INT32_BE:   "INT32_BE",
	FORMAT_FLOAT32_BE: "FLOAT32_BE",
	FORMAT_FLOAT64_BE: "FLOAT64_BE",
	FORMAT_INT32_BE16: "INT32_BE16",
	FORMAT_INT32_BE18: "INT32_BE18",
	FORMAT_INT32_BE20: "INT32_BE20",
	FORMAT_INT32_BE24: "INT32_BE24",
	FORMAT_INT16_LE:   "INT16_LE",
	FORMAT_INT24_LE:   "INT24_LE",
	FORMAT_INT32_LE:   "INT32_LE",
	FORMAT_FLOAT32_LE: "FLOAT32_LE",
	FORMAT_FLOAT64_LE: "FLOAT64_LE",
	FORMAT_INT32_LE16: "INT32_LE16",
	FORMAT_INT32_LE18: "INT32_LE18",
	FORMAT_INT32_LE20: "INT32_LE20",
	FORMAT_INT32_LE24: "INT32_LE24",
}

// FormatBytes returns the size of one sample of the given format in bytes.
// Formats stored in 32 bit containers return 4 regardless of significant bits.
func FormatBytes(f SampleFormat) int {
	switch f {
	case FORMAT_INT16_BE, FORMAT_INT16_LE:
		return 2
	case FORMAT_INT24_BE, FORMAT_INT24_LE:
		return 3
	case FORMAT_INT32_BE, FORMAT_INT32_LE,
		FORMAT_FLOAT32_BE, FORMAT_FLOAT32_LE,
		FORMAT_INT32_BE16, FORMAT_INT32_BE18, FORMAT_INT32_BE20, FORMAT_INT32_BE24,
		FORMAT_INT32_LE16, FORMAT_INT32_LE18, FORMAT_INT32_LE20, FORMAT_INT32_LE24:
		return 4
	case FORMAT_FLOAT64_BE, FORMAT_FLOAT64_LE:
		return 8
	default:
		return 0
	}
}

// StreamState describes the lifecycle state of a stream.
type StreamState int32

const (
	// StateStopped is the terminal-safe state; Close is only valid here.
	StateStopped StreamState = 0
	// StateActive means the device is generating buffer switches and the
	// application callback is being invoked.
	StateActive StreamState = 1
	// StateDraining means a graceful stop has been requested and queued
	// output is being played out before the device is stopped.
	StateDraining StreamState = 2
	// StateAborting means an immediate stop is in progress and all further
	// output is silenced.
	StateAborting StreamState = 3
)

// String returns the name of the state.
func (s StreamState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateActive:
		return "Active"
	case StateDraining:
		return "Draining"
	case StateAborting:
		return "Aborting"
	default:
		return "Unknown"
	}
}

// CallbackResult is returned by the application callback to control the
// stream.
type CallbackResult int32

const (
	// Continue keeps the stream running.
	Continue CallbackResult = 0
	// Complete finishes playing queued output, then stops the stream.
	Complete CallbackResult = 1
	// Abort stops the stream immediately, discarding queued output.
	Abort CallbackResult = 2
)

// CallbackFlags carry transient real-time conditions into the application
// callback. They are accumulated by the switch engine and cleared once
// delivered; they are never surfaced as errors on the control thread.
type CallbackFlags uint32

const (
	InputUnderflow  CallbackFlags = 0x01
	InputOverflow   CallbackFlags = 0x02
	OutputUnderflow CallbackFlags = 0x04
	OutputOverflow  CallbackFlags = 0x08
)

// TimeInfo carries buffer timestamps into the application callback.
// All values are in seconds on the same clock as the device timestamps.
type TimeInfo struct {
	// CurrentTime is the time the switch callback was invoked.
	CurrentTime float64
	// InputBufferAdcTime is the time the first input sample was captured.
	InputBufferAdcTime float64
	// OutputBufferDacTime is the time the first output sample will be played.
	OutputBufferDacTime float64
}

// Callback is the application processing callback. It is invoked once per
// hardware buffer period from the device's real-time context with
// non-interleaved per-channel buffers in the host-native encoding.
//
// input and output hold one buffer per logical channel, each frames samples
// long. The callback must not block, allocate, or retain the slices.
type Callback func(input, output [][]byte, frames int, t TimeInfo, flags CallbackFlags) CallbackResult
