package hostaudio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// StreamParams describes the requested logical channel layout for one
// direction.
type StreamParams struct {
	// Channels is the number of logical channels to open.
	Channels int

	// Selectors optionally lists the physical channel number backing each
	// logical channel, in order. When nil, channels are assigned from the
	// start of the device (or from the configured output channel offset).
	Selectors []int
}

// StreamOptions configures an Open call.
type StreamOptions struct {
	// SampleRate in Hz. Required.
	SampleRate float64

	// FramesPerBuffer is the application's buffer size. Zero lets the host
	// pick a size from the latency targets alone; otherwise the host buffer
	// size is an exact multiple of it.
	FramesPerBuffer int

	// InputLatencyFrames and OutputLatencyFrames are target buffering
	// latencies used for host buffer size selection.
	InputLatencyFrames  int
	OutputLatencyFrames int

	// OutputChannelOffset routes default output channel assignment to the
	// physical range [offset, offset+channels). Channels below the offset
	// are allocated as dummy slots and kept silent. Ignored when explicit
	// Selectors are given, and falls back to zero when the device does not
	// have enough channels. This is a deployment routing policy, zero by
	// default.
	OutputChannelOffset int

	// UsePreferredBufferSize unconditionally uses the device's preferred
	// buffer size instead of running size selection, trading latency
	// precision for driver compatibility.
	UsePreferredBufferSize bool

	// Callback is the application processing callback. Required.
	Callback Callback

	// FinishedCallback, when set, is invoked exactly once per Start after
	// the last buffer has played out (drain, abort or stop).
	FinishedCallback func()
}

// slot is one granted physical channel buffer together with the native
// encoding the device reported for it.
type slot struct {
	BufferSlot
	format SampleFormat
}

// The driver ABI supports a single initialization per process, so only one
// stream may be open at a time.
var openGuard struct {
	sync.Mutex
	open bool
}

// Stream is an open audio stream. It aggregates the device capabilities
// snapshot, the granted buffer slots, the logical-to-physical channel maps
// and the lifecycle state.
//
// The buffer pointer tables and channel maps are fully constructed before
// Start and never mutated while the stream is active. The only values shared
// between the control thread and the switch context while active are the
// atomic flags below.
type Stream struct {
	dev  Device
	caps Capabilities

	sampleRate      float64
	framesPerBuffer int

	inCount   int
	outCount  int
	outOffset int

	slots      []slot
	inMap      []int // logical input channel -> slot index
	outMap     []int // logical output channel -> slot index
	outSlots   []int // every output slot index, dummies included
	dummySlots []int // output slots below the channel offset

	inBufs  [2][][]byte // per half, per logical input channel
	outBufs [2][][]byte

	inFormat  SampleFormat
	outFormat SampleFormat

	inConv   converterFunc
	inShift  int
	outConv  converterFunc
	outShift int

	inputLatency  int // frames, device-reported
	outputLatency int

	postOutput bool

	callback Callback
	finished func()

	// Written by the control thread, read by the switch context.
	stopProcessing atomic.Bool
	zeroOutput     atomic.Bool

	// Written by both contexts; isActive is cleared by the switch context
	// when draining completes.
	isStopped atomic.Bool
	isActive  atomic.Bool

	// Reentrancy counter for the switch engine. Idles at -1; values above
	// zero after increment mean an invocation is already in flight.
	reenterCount  atomic.Int32
	reenterErrors atomic.Int32

	// Switch-context state, never touched by the control thread while the
	// stream is active.
	stopPlayoutCount int
	callbackFlags    CallbackFlags

	// completed is closed once the switch engine has played out the final
	// buffers; finishOnce guards the finished notification. Both are
	// recreated by Start.
	finishOnce *sync.Once
	completed  chan struct{}

	closed bool
}

// Open negotiates channels and buffers against the device and returns a
// stream ready to Start. At least one direction must be requested. Open is
// all-or-nothing: on error every partial allocation is rolled back and the
// device is left unopened.
//
// Only one stream may be open per process; concurrent attempts fail with
// ErrDeviceUnavailable.
func Open(dev Device, input, output *StreamParams, opts StreamOptions) (*Stream, error) {
	if dev == nil {
		return nil, errors.New("nil device")
	}

	if input == nil && output == nil {
		return nil, errors.New("no channels requested")
	}

	if opts.Callback == nil {
		return nil, errors.New("nil callback")
	}

	if opts.SampleRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}

	openGuard.Lock()
	if openGuard.open {
		openGuard.Unlock()

		return nil, ErrDeviceUnavailable
	}
	openGuard.open = true
	openGuard.Unlock()

	stream, err := openStream(dev, input, output, opts)
	if err != nil {
		openGuard.Lock()
		openGuard.open = false
		openGuard.Unlock()

		return nil, err
	}

	return stream, nil
}

func openStream(dev Device, input, output *StreamParams, opts StreamOptions) (*Stream, error) {
	caps, err := dev.Capabilities()
	if err != nil {
		return nil, &HostError{Op: "capabilities", Err: err}
	}

	if err := dev.SetSampleRate(opts.SampleRate); err != nil {
		return nil, &HostError{Op: "set sample rate", Err: err}
	}

	var inChans, outChans []int
	var outOffset int

	if input != nil {
		inChans, _, err = negotiateChannels(input.Channels, input.Selectors, 0, caps.InputChannels)
		if err != nil {
			return nil, err
		}
	}

	if output != nil {
		outChans, outOffset, err = negotiateChannels(output.Channels, output.Selectors, opts.OutputChannelOffset, caps.OutputChannels)
		if err != nil {
			return nil, err
		}
	}

	// Buffer requests are ordered inputs first, then outputs. Under the
	// offset policy the output range starts with dummy slots for the
	// channels below the offset; they are requested so that drivers which
	// assign buffers by array position still place the audio channels at
	// their physical targets, and they are kept silent for the stream's
	// lifetime.
	requests := make([]BufferRequest, 0, len(inChans)+outOffset+len(outChans))
	for _, ch := range inChans {
		requests = append(requests, BufferRequest{IsInput: true, Channel: ch})
	}
	for ch := 0; ch < outOffset; ch++ {
		requests = append(requests, BufferRequest{Channel: ch})
	}
	for _, ch := range outChans {
		requests = append(requests, BufferRequest{Channel: ch})
	}

	target := opts.InputLatencyFrames
	if opts.OutputLatencyFrames > target {
		target = opts.OutputLatencyFrames
	}

	frames := caps.BufferPreferred
	if !opts.UsePreferredBufferSize {
		frames, err = SelectHostBufferSize(target, opts.FramesPerBuffer, caps)
		if err != nil {
			return nil, err
		}
	}

	s := &Stream{
		dev:        dev,
		caps:       caps,
		sampleRate: opts.SampleRate,
		inCount:    len(inChans),
		outCount:   len(outChans),
		outOffset:  outOffset,
		postOutput: caps.PostOutput,
		callback:   opts.Callback,
		finished:   opts.FinishedCallback,
		finishOnce: &sync.Once{},
		completed:  make(chan struct{}),
	}
	s.isStopped.Store(true)
	s.reenterCount.Store(-1)

	granted, err := dev.CreateBuffers(requests, frames, s)
	if err != nil && frames != caps.BufferPreferred {
		// Some devices report inaccurate size bounds but accept their
		// preferred size; retry once before failing.
		frames = caps.BufferPreferred
		granted, err = dev.CreateBuffers(requests, frames, s)
	}
	if err != nil {
		return nil, &HostError{Op: "create buffers", Err: err}
	}
	s.framesPerBuffer = frames

	fail := func(err error) (*Stream, error) {
		_ = dev.DisposeBuffers()

		return nil, err
	}

	s.slots = make([]slot, len(granted))
	for i, g := range granted {
		info, err := dev.ChannelInfo(g.Channel, g.IsInput)
		if err != nil {
			return fail(&HostError{Op: "channel info", Err: err})
		}

		s.slots[i] = slot{BufferSlot: g, format: info.Format}

		if !g.IsInput {
			s.outSlots = append(s.outSlots, i)
		}
	}

	// Resolve logical channels to granted slots by the stamped physical
	// channel number; the grant order is not trusted.
	if s.inCount > 0 {
		s.inMap, err = resolveChannelMap(s.slots, true, inChans)
		if err != nil {
			return fail(err)
		}
	}

	if s.outCount > 0 {
		s.outMap, err = resolveChannelMap(s.slots, false, outChans)
		if err != nil {
			return fail(err)
		}
	}

	if outOffset > 0 {
		dummies := make([]int, outOffset)
		for i := range dummies {
			dummies[i] = i
		}

		s.dummySlots, err = resolveChannelMap(s.slots, false, dummies)
		if err != nil {
			return fail(err)
		}
	}

	// All channels of a direction are assumed to share one native encoding;
	// devices with per-channel formats are not supported.
	s.inFormat, s.outFormat = FORMAT_INVALID, FORMAT_INVALID

	if s.inCount > 0 {
		s.inFormat = s.slots[s.inMap[0]].format

		s.inConv, s.inShift, err = selectInputConverter(s.inFormat)
		if err != nil {
			return fail(err)
		}
	}

	if s.outCount > 0 {
		s.outFormat = s.slots[s.outMap[0]].format

		s.outConv, s.outShift, err = selectOutputConverter(s.outFormat)
		if err != nil {
			return fail(err)
		}
	}

	s.inputLatency, s.outputLatency, err = dev.Latencies()
	if err != nil {
		return fail(&HostError{Op: "latencies", Err: err})
	}

	for half := 0; half < 2; half++ {
		s.inBufs[half] = make([][]byte, s.inCount)
		for i, idx := range s.inMap {
			s.inBufs[half][i] = s.slots[idx].Buffers[half]
		}

		s.outBufs[half] = make([][]byte, s.outCount)
		for i, idx := range s.outMap {
			s.outBufs[half][i] = s.slots[idx].Buffers[half]
		}
	}

	return s, nil
}

// Close releases the stream's buffers. The stream must be stopped. Closing
// an already closed stream is a no-op.
func (s *Stream) Close() error {
	if !s.isStopped.Load() {
		return ErrStreamNotStopped
	}

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.dev.DisposeBuffers()

	s.slots = nil
	s.inBufs = [2][][]byte{}
	s.outBufs = [2][][]byte{}

	openGuard.Lock()
	openGuard.open = false
	openGuard.Unlock()

	if err != nil {
		return &HostError{Op: "dispose buffers", Err: err}
	}

	return nil
}

// Start begins the stream. Output buffers are zeroed, the lifecycle state is
// reset, and the device is instructed to begin invoking the switch engine.
// On device refusal the state remains Stopped.
func (s *Stream) Start() error {
	if !s.isStopped.Load() {
		return ErrStreamNotStopped
	}

	for half := 0; half < 2; half++ {
		s.zeroOutputBuffers(half, true)
	}

	s.stopProcessing.Store(false)
	s.zeroOutput.Store(false)
	s.stopPlayoutCount = 0
	s.callbackFlags = 0
	s.reenterCount.Store(-1)
	s.reenterErrors.Store(0)
	s.finishOnce = &sync.Once{}
	s.completed = make(chan struct{})

	// These must be set before the first switch can arrive.
	s.isStopped.Store(false)
	s.isActive.Store(true)

	if err := s.dev.Start(); err != nil {
		s.isStopped.Store(true)
		s.isActive.Store(false)

		return &HostError{Op: "start", Err: err}
	}

	return nil
}

// Stop stops the stream gracefully: queued output is played out before the
// device stops calling back. The wait on the drain completion signal is
// bounded; on expiry ErrTimedOut is returned but the stream is still forced
// to Stopped, so a subsequent Close remains valid.
func (s *Stream) Stop() error {
	if s.isStopped.Load() {
		return ErrStreamStopped
	}

	var timedOut bool

	if s.isActive.Load() {
		s.stopProcessing.Store(true)

		select {
		case <-s.completed:
		case <-time.After(s.stopTimeout()):
			timedOut = true
		}
	}

	// The state is forced Stopped below even when the device reports a stop
	// failure, so an in-flight switch must be waited for either way.
	err := s.dev.Stop()
	s.waitSwitchIdle()

	s.isStopped.Store(true)
	s.isActive.Store(false)
	s.signalFinished()

	if err != nil {
		return &HostError{Op: "stop", Err: err}
	}

	if timedOut {
		return ErrTimedOut
	}

	return nil
}

// Abort stops the stream immediately. All further output is silenced, the
// device is stopped, and any in-flight switch invocation is waited for up to
// a fixed ceiling before proceeding regardless.
func (s *Stream) Abort() error {
	if s.isStopped.Load() {
		return ErrStreamStopped
	}

	s.zeroOutput.Store(true)

	err := s.dev.Stop()
	s.waitSwitchIdle()

	s.isStopped.Store(true)
	s.isActive.Store(false)
	s.signalFinished()

	if err != nil {
		return &HostError{Op: "abort", Err: err}
	}

	return nil
}

// IsActive reports whether the switch engine is processing audio.
func (s *Stream) IsActive() bool {
	return s.isActive.Load()
}

// IsStopped reports whether the stream is in the Stopped state.
func (s *Stream) IsStopped() bool {
	return s.isStopped.Load()
}

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	switch {
	case s.isStopped.Load():
		return StateStopped
	case s.zeroOutput.Load() && !s.stopProcessing.Load():
		return StateAborting
	case s.stopProcessing.Load() || !s.isActive.Load():
		return StateDraining
	default:
		return StateActive
	}
}

// Latencies returns the stream's input and output latencies in seconds,
// including the device's double-buffer latency.
func (s *Stream) Latencies() (input, output float64) {
	return float64(s.inputLatency) / s.sampleRate, float64(s.outputLatency) / s.sampleRate
}

// FramesPerBuffer returns the negotiated host buffer size in frames.
func (s *Stream) FramesPerBuffer() int {
	return s.framesPerBuffer
}

// SampleRate returns the stream's sample rate in Hz.
func (s *Stream) SampleRate() float64 {
	return s.sampleRate
}

// SampleFormats returns the native device encoding selected for each
// direction, FORMAT_INVALID for an unused direction.
func (s *Stream) SampleFormats() (input, output SampleFormat) {
	return s.inFormat, s.outFormat
}

// ReenterErrors returns the number of switch periods dropped due to
// reentrant invocation. Each dropped period is also reported to the callback
// as overflow/underflow flags.
func (s *Stream) ReenterErrors() int {
	return int(s.reenterErrors.Load())
}

// signalFinished delivers the stream-finished notification and the drain
// completion signal, at most once per Start.
func (s *Stream) signalFinished() {
	s.finishOnce.Do(func() {
		if s.finished != nil {
			s.finished()
		}

		close(s.completed)
	})
}

// stopTimeout bounds the graceful-stop wait: proportional to the output
// latency, floored so short-latency streams still get a few buffer periods
// to drain.
func (s *Stream) stopTimeout() time.Duration {
	timeout := time.Duration(4 * float64(s.outputLatency) / s.sampleRate * float64(time.Second))

	period := time.Duration(float64(s.framesPerBuffer) / s.sampleRate * float64(time.Second))
	if timeout < 8*period {
		timeout = 8 * period
	}

	if timeout < 100*time.Millisecond {
		timeout = 100 * time.Millisecond
	}

	return timeout
}

// waitSwitchIdle waits for an in-flight switch invocation to exit after the
// device has been stopped. Some drivers return from Stop with a callback
// still running. The wait is bounded; on expiry we proceed regardless.
func (s *Stream) waitSwitchIdle() {
	deadline := time.Now().Add(2 * time.Second)

	for s.reenterCount.Load() != -1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

// zeroOutputBuffers silences output slots for one buffer half. At stream
// start every output slot is cleared for a clean start. While the stream is
// silencing output, only the dummy slots below the channel offset are
// cleared when an offset policy is active; without one, every output slot
// is cleared.
func (s *Stream) zeroOutputBuffers(half int, atStart bool) {
	targets := s.outSlots
	if !atStart && len(s.dummySlots) > 0 {
		targets = s.dummySlots
	}

	for _, idx := range targets {
		clear(s.slots[idx].Buffers[half])
	}
}
