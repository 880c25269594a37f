package hostaudio

import (
	"errors"
	"sync/atomic"
	"time"
)

// ringPeriods is the capacity of the blocking-interface rings, in host
// buffer periods.
const ringPeriods = 8

// BlockingStream is a synchronous read/write convenience layer on top of the
// callback stream. It installs an internal processing callback that moves
// interleaved host-encoded frames through a pair of lock-free rings, so the
// application can call Read and Write from an ordinary goroutine instead of
// supplying a callback.
type BlockingStream struct {
	stream *Stream

	inRing  *ring
	outRing *ring

	inFrameBytes  int
	outFrameBytes int

	inScratch  []byte
	outScratch []byte

	// Edge-triggered wakeups from the switch context to blocked readers and
	// writers.
	dataReady  chan struct{}
	spaceReady chan struct{}

	// Ring overruns and underruns observed by the switch context. These are
	// pacing failures of the application thread, separate from the device
	// level flags.
	xruns atomic.Int32

	stopRequested atomic.Bool

	timeout time.Duration
}

// OpenBlocking opens a stream for blocking I/O. The options must not carry a
// processing callback; everything else behaves as in Open, including the
// single-open policy.
func OpenBlocking(dev Device, input, output *StreamParams, opts StreamOptions) (*BlockingStream, error) {
	if opts.Callback != nil {
		return nil, errors.New("blocking stream does not accept a callback")
	}

	b := &BlockingStream{
		dataReady:  make(chan struct{}, 1),
		spaceReady: make(chan struct{}, 1),
	}

	opts.Callback = b.process

	// The finished notification also wakes blocked readers and writers, so
	// they observe the stop instead of sitting out their timeout.
	finished := opts.FinishedCallback
	opts.FinishedCallback = func() {
		b.wake()

		if finished != nil {
			finished()
		}
	}

	s, err := Open(dev, input, output, opts)
	if err != nil {
		return nil, err
	}
	b.stream = s

	if s.inCount > 0 {
		b.inFrameBytes = s.inCount * hostSampleBytes(s.slots[s.inMap[0]].format)
		b.inScratch = make([]byte, s.framesPerBuffer*b.inFrameBytes)
		b.inRing = newRing(ringPeriods * len(b.inScratch))
	}

	if s.outCount > 0 {
		b.outFrameBytes = s.outCount * hostSampleBytes(s.slots[s.outMap[0]].format)
		b.outScratch = make([]byte, s.framesPerBuffer*b.outFrameBytes)
		b.outRing = newRing(ringPeriods * len(b.outScratch))
	}

	// A caller may legitimately have to sit out a full ring of periods;
	// anything much beyond that means the device stopped calling back.
	period := time.Duration(float64(s.framesPerBuffer) / opts.SampleRate * float64(time.Second))
	b.timeout = 2 * ringPeriods * period
	if b.timeout < time.Second {
		b.timeout = time.Second
	}

	return b, nil
}

// Start primes the playback ring with silence and starts the stream.
func (b *BlockingStream) Start() error {
	b.stopRequested.Store(false)
	b.xruns.Store(0)

	if b.inRing != nil {
		b.inRing.flush()
	}

	if b.outRing != nil {
		b.outRing.flush()

		// Silence headroom so the first periods do not underrun while the
		// writer catches up.
		clear(b.outScratch)
		b.outRing.write(b.outScratch)
		b.outRing.write(b.outScratch)
	}

	return b.stream.Start()
}

// Stop requests completion once the playback ring has drained, then stops
// the stream gracefully. Blocked readers and writers are woken so they
// return ErrStreamStopped promptly.
func (b *BlockingStream) Stop() error {
	b.stopRequested.Store(true)
	b.wake()

	err := b.stream.Stop()
	b.wake()

	return err
}

// Abort stops the stream immediately, discarding buffered audio. Blocked
// readers and writers are woken so they return ErrStreamStopped promptly.
func (b *BlockingStream) Abort() error {
	b.stopRequested.Store(true)
	b.wake()

	err := b.stream.Abort()
	b.wake()

	return err
}

// wake unblocks a reader or writer waiting on the switch context.
func (b *BlockingStream) wake() {
	notify(b.dataReady)
	notify(b.spaceReady)
}

// Close releases the stream. The stream must be stopped.
func (b *BlockingStream) Close() error {
	return b.stream.Close()
}

// Stream returns the underlying callback stream for state queries.
func (b *BlockingStream) Stream() *Stream {
	return b.stream
}

// Xruns returns the number of periods the application thread failed to pace:
// capture frames dropped because the read ring was full, or playback periods
// padded with silence because the write ring was empty.
func (b *BlockingStream) Xruns() int {
	return int(b.xruns.Load())
}

// ReadAvailable returns the number of captured frames ready to Read without
// blocking.
func (b *BlockingStream) ReadAvailable() int {
	if b.inRing == nil {
		return 0
	}

	return b.inRing.readAvailable() / b.inFrameBytes
}

// WriteAvailable returns the number of frames that can be written without
// blocking.
func (b *BlockingStream) WriteAvailable() int {
	if b.outRing == nil {
		return 0
	}

	return b.outRing.writeAvailable() / b.outFrameBytes
}

// Read blocks until it has filled p with interleaved host-encoded input
// frames. It returns the number of bytes read; short reads happen only on
// error. Returns ErrStreamStopped once the stream has stopped and the ring
// is empty, and ErrTimedOut when the device stops delivering periods.
func (b *BlockingStream) Read(p []byte) (int, error) {
	if b.inRing == nil {
		return 0, ErrNotSupported
	}

	total := 0
	for {
		total += b.inRing.read(p[total:])
		if total == len(p) {
			return total, nil
		}

		if b.stream.IsStopped() {
			return total, ErrStreamStopped
		}

		select {
		case <-b.dataReady:
		case <-time.After(b.timeout):
			return total, ErrTimedOut
		}
	}
}

// Write blocks until all of p, interleaved host-encoded output frames, has
// been queued for playback. It returns the number of bytes written; short
// writes happen only on error.
func (b *BlockingStream) Write(p []byte) (int, error) {
	if b.outRing == nil {
		return 0, ErrNotSupported
	}

	total := 0
	for {
		total += b.outRing.write(p[total:])
		if total == len(p) {
			return total, nil
		}

		if b.stream.IsStopped() || b.stopRequested.Load() {
			return total, ErrStreamStopped
		}

		select {
		case <-b.spaceReady:
		case <-time.After(b.timeout):
			return total, ErrTimedOut
		}
	}
}

// process is the internal processing callback. It runs in the switch-engine
// context and must not block: a full read ring drops the period's input, an
// empty write ring plays silence, and both are accounted as xruns.
func (b *BlockingStream) process(input, output [][]byte, frames int, _ TimeInfo, _ CallbackFlags) CallbackResult {
	if b.inRing != nil {
		n := frames * b.inFrameBytes
		b.interleave(input, frames)

		if b.inRing.write(b.inScratch[:n]) < n {
			b.xruns.Add(1)
		}

		notify(b.dataReady)
	}

	if b.outRing != nil {
		n := frames * b.outFrameBytes
		got := b.outRing.read(b.outScratch[:n])

		if got < n {
			clear(b.outScratch[got:n])

			if !b.stopRequested.Load() {
				b.xruns.Add(1)
			}
		}

		b.deinterleave(output, frames)
		notify(b.spaceReady)
	}

	if b.stopRequested.Load() && b.playbackDrained() {
		return Complete
	}

	return Continue
}

// playbackDrained reports whether no full frame of queued playback remains.
func (b *BlockingStream) playbackDrained() bool {
	return b.outRing == nil || b.outRing.readAvailable() < b.outFrameBytes
}

func (b *BlockingStream) interleave(chans [][]byte, frames int) {
	w := b.inFrameBytes / b.stream.inCount

	for c, src := range chans {
		for f := 0; f < frames; f++ {
			copy(b.inScratch[f*b.inFrameBytes+c*w:f*b.inFrameBytes+(c+1)*w], src[f*w:])
		}
	}
}

func (b *BlockingStream) deinterleave(chans [][]byte, frames int) {
	w := b.outFrameBytes / b.stream.outCount

	for c, dst := range chans {
		for f := 0; f < frames; f++ {
			copy(dst[f*w:(f+1)*w], b.outScratch[f*b.outFrameBytes+c*w:])
		}
	}
}

// hostSampleBytes returns the width of one host-encoded sample for a native
// device encoding. Padded 32 bit containers stay 4 bytes wide and float64
// devices are narrowed to float32 by the input converter.
func hostSampleBytes(f SampleFormat) int {
	switch f {
	case FORMAT_INT16_LE, FORMAT_INT16_BE:
		return 2
	case FORMAT_INT24_LE, FORMAT_INT24_BE:
		return 3
	default:
		return 4
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
