package hostaudio

import "time"

// GranularityPowerOfTwo in Capabilities.BufferGranularity signals that the
// device supports power-of-two buffer sizes between BufferMin and BufferMax.
const GranularityPowerOfTwo = -1

// Capabilities describes the immutable properties of a device, queried once
// when the stream is opened and discarded when it is closed.
type Capabilities struct {
	// InputChannels and OutputChannels are the physical channel counts.
	InputChannels  int
	OutputChannels int

	// Buffer size bounds in frames. BufferGranularity is 0 when the device
	// supports only BufferPreferred, GranularityPowerOfTwo for power-of-two
	// sizes, or an arithmetic step otherwise.
	BufferMin         int
	BufferMax         int
	BufferPreferred   int
	BufferGranularity int

	// PostOutput reports whether the device supports the post-output-ready
	// notification invoked after output buffers have been filled.
	PostOutput bool
}

// BufferRequest asks the device to allocate a double buffer for one physical
// channel.
type BufferRequest struct {
	IsInput bool
	Channel int // physical channel number
}

// BufferSlot is one granted double buffer. The device stamps the physical
// channel number it allocated the buffer for; the grant order is not
// guaranteed to match the request order.
//
// The buffer memory is owned by the device and remains valid until
// DisposeBuffers is called. The stream only zeroes and converts it in place.
type BufferSlot struct {
	IsInput bool
	Channel int
	Buffers [2][]byte // double buffer halves, indexed by the switch half
}

// ChannelInfo describes one physical channel of the device.
type ChannelInfo struct {
	Channel int
	IsInput bool
	Format  SampleFormat
	Name    string
}

// SwitchHandler is invoked by the device once per hardware buffer period.
// half selects which of the two buffer halves is now safe to fill; the other
// half is being transferred by the hardware. when is the device timestamp of
// the period, or the zero time when the driver provides none.
type SwitchHandler interface {
	BufferSwitch(half int, when time.Time)
}

// Device is the driver collaborator the stream runs against. Implementations
// own the buffer memory and the periodic invocation of the registered
// SwitchHandler; they hold no reference to the stream beyond that handler.
type Device interface {
	// Capabilities reports channel counts and buffer size constraints.
	Capabilities() (Capabilities, error)

	// SetSampleRate switches the device to the given rate, or returns an
	// error if the rate is not supported.
	SetSampleRate(rate float64) error

	// CreateBuffers allocates double buffers for the requested channels and
	// registers the switch handler. The returned slots carry the stamped
	// physical channel numbers; their order may differ from the request
	// order.
	CreateBuffers(requests []BufferRequest, frames int, handler SwitchHandler) ([]BufferSlot, error)

	// DisposeBuffers releases the buffers granted by CreateBuffers.
	DisposeBuffers() error

	// ChannelInfo reports the native encoding and name of a physical channel.
	ChannelInfo(channel int, isInput bool) (ChannelInfo, error)

	// Latencies reports the device-side input and output latencies in
	// frames, including the double-buffer latency.
	Latencies() (inputFrames, outputFrames int, err error)

	// Start begins periodic invocation of the switch handler.
	Start() error

	// Stop ceases invocation of the switch handler. An invocation already in
	// flight may still complete after Stop returns.
	Stop() error

	// OutputReady notifies the device that output buffers are filled. Only
	// called when Capabilities reports PostOutput.
	OutputReady() error

	// ControlPanel opens the device's configuration UI, if it has one.
	ControlPanel() error
}
