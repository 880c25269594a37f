//go:build linux && (amd64 || arm64)

// Package alsadev implements the hostaudio Device interface on top of direct
// ALSA kernel PCM access, without going through the alsa-lib plugin layer.
// Only direct hardware playback devices (/dev/snd/pcmCxDxp) are supported.
//
// The kernel ABI has no native double-buffer switch callback, so the backend
// emulates one: a pacing goroutine invokes the registered switch handler for
// one buffer half, interleaves the granted slot buffers into a period and
// writes it with SNDRV_PCM_IOCTL_WRITEI_FRAMES. The blocking write paces the
// loop at the hardware period rate.
package alsadev

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gen2brain/hostaudio"
)

// formatPreference lists the native encodings the backend will select, best
// first, paired with the encoding reported to the host layer.
var formatPreference = []struct {
	alsa PcmFormat
	host hostaudio.SampleFormat
}{
	{SNDRV_PCM_FORMAT_S32_LE, hostaudio.FORMAT_INT32_LE},
	{SNDRV_PCM_FORMAT_S16_LE, hostaudio.FORMAT_INT16_LE},
	{SNDRV_PCM_FORMAT_S24_3LE, hostaudio.FORMAT_INT24_LE},
	{SNDRV_PCM_FORMAT_FLOAT_LE, hostaudio.FORMAT_FLOAT32_LE},
}

// Device is a playback-only hostaudio.Device backed by one ALSA PCM device.
type Device struct {
	card   uint
	device uint

	rate float64

	mu sync.Mutex

	file        *os.File
	format      PcmFormat
	hostFormat  hostaudio.SampleFormat
	sampleBytes int
	channels    int // hardware channel count configured for the stream
	frames      int
	slots       []hostaudio.BufferSlot
	handler     hostaudio.SwitchHandler

	scratch []byte // one interleaved period

	running bool
	stop    chan struct{}
	done    chan struct{}
	xruns   int
}

// New returns a Device for ALSA card and PCM device numbers, as in "hw:C,D".
func New(card, device uint) *Device {
	return &Device{card: card, device: device, rate: 48000}
}

func (d *Device) path() string {
	return fmt.Sprintf("/dev/snd/pcmC%dD%dp", d.card, d.device)
}

// openPCM opens the playback node. The open is always non-blocking to avoid
// getting stuck when the device is busy; the flag is cleared afterwards when
// blocking I/O is wanted.
func (d *Device) openPCM(blocking bool) (*os.File, error) {
	file, err := os.OpenFile(d.path(), os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCM device %s: %w", d.path(), err)
	}

	if blocking {
		flags, err := unix.FcntlInt(file.Fd(), unix.F_GETFL, 0)
		if err != nil {
			_ = file.Close()

			return nil, fmt.Errorf("fcntl F_GETFL for %s failed: %w", d.path(), err)
		}

		if _, err = unix.FcntlInt(file.Fd(), unix.F_SETFL, flags&^syscall.O_NONBLOCK); err != nil {
			_ = file.Close()

			return nil, fmt.Errorf("failed to set blocking mode on %s: %w", d.path(), err)
		}
	}

	return file, nil
}

// Capabilities queries the hardware with SNDRV_PCM_IOCTL_HW_REFINE and maps
// its constraint intervals onto the host capability model. The backend drives
// the device one period per buffer half, so the buffer bounds are the
// hardware period size bounds.
func (d *Device) Capabilities() (hostaudio.Capabilities, error) {
	var caps hostaudio.Capabilities

	file, err := d.openPCM(false)
	if err != nil {
		return caps, err
	}
	defer file.Close()

	hwParams := &sndPcmHwParams{}
	paramInit(hwParams)

	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_HW_REFINE, uintptr(unsafe.Pointer(hwParams))); err != nil {
		return caps, fmt.Errorf("ioctl HW_REFINE failed: %w", err)
	}

	caps.OutputChannels = int(paramGetMax(hwParams, SNDRV_PCM_HW_PARAM_CHANNELS))

	caps.BufferMin = int(paramGetMin(hwParams, SNDRV_PCM_HW_PARAM_PERIOD_SIZE))
	if caps.BufferMin < 1 {
		caps.BufferMin = 1
	}

	caps.BufferMax = int(paramGetMax(hwParams, SNDRV_PCM_HW_PARAM_PERIOD_SIZE))
	if caps.BufferMax > 8192 {
		caps.BufferMax = 8192
	}

	caps.BufferPreferred = 1024
	if caps.BufferPreferred < caps.BufferMin {
		caps.BufferPreferred = caps.BufferMin
	}
	if caps.BufferPreferred > caps.BufferMax {
		caps.BufferPreferred = caps.BufferMax
	}

	caps.BufferGranularity = hostaudio.GranularityPowerOfTwo

	return caps, nil
}

// SetSampleRate records the sample rate for the next CreateBuffers call. The
// hardware accepts or rejects it when the configuration is committed.
func (d *Device) SetSampleRate(rate float64) error {
	if rate <= 0 || rate != float64(uint32(rate)) {
		return fmt.Errorf("unsupported sample rate %v", rate)
	}

	d.rate = rate

	return nil
}

// CreateBuffers commits the hardware configuration and allocates a pair of
// non-interleaved buffers per requested channel. The hardware channel count
// is the highest requested channel number plus one, so dummy low channels
// requested by an offset policy get real hardware slots.
func (d *Device) CreateBuffers(requests []hostaudio.BufferRequest, frames int, handler hostaudio.SwitchHandler) ([]hostaudio.BufferSlot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file != nil {
		return nil, errors.New("buffers already created")
	}

	if len(requests) == 0 || frames <= 0 || handler == nil {
		return nil, errors.New("invalid buffer request")
	}

	channels := 0
	for _, req := range requests {
		if req.IsInput {
			return nil, fmt.Errorf("capture: %w", hostaudio.ErrNotSupported)
		}

		if req.Channel >= channels {
			channels = req.Channel + 1
		}
	}

	file, err := d.openPCM(true)
	if err != nil {
		return nil, err
	}

	fail := func(err error) ([]hostaudio.BufferSlot, error) {
		_ = file.Close()

		return nil, err
	}

	hwParams := &sndPcmHwParams{}
	paramInit(hwParams)

	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_HW_REFINE, uintptr(unsafe.Pointer(hwParams))); err != nil {
		return fail(fmt.Errorf("ioctl HW_REFINE failed: %w", err))
	}

	d.format = -1
	for _, pref := range formatPreference {
		if paramTestMask(hwParams, SNDRV_PCM_HW_PARAM_FORMAT, uint32(pref.alsa)) {
			d.format = pref.alsa
			d.hostFormat = pref.host

			break
		}
	}
	if d.format < 0 {
		return fail(errors.New("no supported sample format"))
	}

	paramInit(hwParams)
	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_ACCESS, SNDRV_PCM_ACCESS_RW_INTERLEAVED)
	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_FORMAT, uint32(d.format))
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_CHANNELS, uint32(channels))
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_RATE, uint32(d.rate))
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_PERIOD_SIZE, uint32(frames))
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_PERIODS, 4)

	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_HW_PARAMS, uintptr(unsafe.Pointer(hwParams))); err != nil {
		return fail(fmt.Errorf("ioctl HW_PARAMS failed: %w", err))
	}

	periodSize := paramGetInt(hwParams, SNDRV_PCM_HW_PARAM_PERIOD_SIZE)
	if int(periodSize) != frames {
		_ = ioctl(file.Fd(), SNDRV_PCM_IOCTL_HW_FREE, 0)

		return fail(fmt.Errorf("driver finalized period size %d, wanted %d", periodSize, frames))
	}

	swParams := &sndPcmSwParams{}
	swParams.TstampMode = 1 // SNDRV_PCM_TSTAMP_ENABLE
	swParams.PeriodStep = 1
	swParams.AvailMin = SndPcmUframesT(frames)
	swParams.StartThreshold = SndPcmUframesT(frames)
	swParams.StopThreshold = SndPcmUframesT(frames * 4)
	swParams.XferAlign = SndPcmUframesT(frames / 2) // Needed for old kernels

	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_SW_PARAMS, uintptr(unsafe.Pointer(swParams))); err != nil {
		return fail(fmt.Errorf("ioctl SW_PARAMS failed: %w", err))
	}

	d.sampleBytes = formatBytes(d.format)
	d.channels = channels
	d.frames = frames
	d.file = file
	d.handler = handler
	d.scratch = make([]byte, frames*channels*d.sampleBytes)

	d.slots = make([]hostaudio.BufferSlot, len(requests))
	for i, req := range requests {
		d.slots[i] = hostaudio.BufferSlot{
			Channel: req.Channel,
			Buffers: [2][]byte{
				make([]byte, frames*d.sampleBytes),
				make([]byte, frames*d.sampleBytes),
			},
		}
	}

	return d.slots, nil
}

// DisposeBuffers releases the hardware configuration and the buffer slots.
func (d *Device) DisposeBuffers() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}

	if d.running {
		return errors.New("stream is running")
	}

	err := ioctl(d.file.Fd(), SNDRV_PCM_IOCTL_HW_FREE, 0)

	_ = d.file.Close()
	d.file = nil
	d.slots = nil
	d.handler = nil
	d.scratch = nil

	if err != nil {
		return fmt.Errorf("ioctl HW_FREE failed: %w", err)
	}

	return nil
}

// ChannelInfo describes one playback channel.
func (d *Device) ChannelInfo(channel int, isInput bool) (hostaudio.ChannelInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if isInput {
		return hostaudio.ChannelInfo{}, fmt.Errorf("capture: %w", hostaudio.ErrNotSupported)
	}

	if d.file == nil {
		return hostaudio.ChannelInfo{}, errors.New("buffers not created")
	}

	if channel < 0 || channel >= d.channels {
		return hostaudio.ChannelInfo{}, fmt.Errorf("channel %d out of range [0,%d)", channel, d.channels)
	}

	return hostaudio.ChannelInfo{
		Channel: channel,
		Format:  d.hostFormat,
		Name:    fmt.Sprintf("hw:%d,%d playback %d", d.card, d.device, channel),
	}, nil
}

// Latencies reports the double-buffer depth plus the hardware queue as the
// output latency.
func (d *Device) Latencies() (inputFrames, outputFrames int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return 0, 0, errors.New("buffers not created")
	}

	return 0, d.frames * 2, nil
}

// Start prepares the hardware and launches the pacing goroutine that drives
// the switch handler.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return errors.New("buffers not created")
	}

	if d.running {
		return errors.New("already started")
	}

	if err := ioctl(d.file.Fd(), SNDRV_PCM_IOCTL_PREPARE, 0); err != nil {
		return fmt.Errorf("ioctl PREPARE failed: %w", err)
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running = true

	go d.run(d.stop, d.done)

	return nil
}

// Stop halts the pacing goroutine and drops queued hardware frames.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	close(d.stop)
	<-d.done
	d.running = false

	if err := ioctl(d.file.Fd(), SNDRV_PCM_IOCTL_DROP, 0); err != nil {
		return fmt.Errorf("ioctl DROP failed: %w", err)
	}

	return nil
}

// OutputReady is not meaningful for this backend; the interleaved write
// already commits the period.
func (d *Device) OutputReady() error {
	return hostaudio.ErrNotSupported
}

// ControlPanel is not supported; mixer settings live in the card's control
// device, not here.
func (d *Device) ControlPanel() error {
	return hostaudio.ErrNotSupported
}

// Xruns returns the number of hardware underruns recovered since Start.
func (d *Device) Xruns() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.xruns
}

// run is the pacing loop. Each iteration hands one buffer half to the switch
// handler, interleaves the slot buffers into a period and writes it to the
// hardware. The blocking write keeps the loop at the period rate.
func (d *Device) run(stop, done chan struct{}) {
	defer close(done)

	half := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		d.handler.BufferSwitch(half, time.Now())
		d.interleave(half)

		if err := d.writei(d.scratch); err != nil {
			return
		}

		half ^= 1
	}
}

// interleave packs the slot buffers for one half into the scratch period.
// Hardware channels without a granted slot stay silent.
func (d *Device) interleave(half int) {
	w := d.sampleBytes

	for _, s := range d.slots {
		src := s.Buffers[half]
		for f := 0; f < d.frames; f++ {
			copy(d.scratch[(f*d.channels+s.Channel)*w:(f*d.channels+s.Channel+1)*w], src[f*w:])
		}
	}
}

// writei writes one interleaved period, recovering from underruns with
// SNDRV_PCM_IOCTL_PREPARE the way alsa-lib's snd_pcm_recover does.
func (d *Device) writei(data []byte) error {
	frames := len(data) / (d.channels * d.sampleBytes)

	written := 0
	for written < frames {
		xfer := sndXferi{
			Buf:    uintptr(unsafe.Pointer(&data[written*d.channels*d.sampleBytes])),
			Frames: SndPcmUframesT(frames - written),
		}

		err := ioctl(d.file.Fd(), SNDRV_PCM_IOCTL_WRITEI_FRAMES, uintptr(unsafe.Pointer(&xfer)))

		if xfer.Result > 0 {
			written += xfer.Result
		}

		if err != nil {
			if errors.Is(err, syscall.EPIPE) {
				d.xruns++

				if errRec := ioctl(d.file.Fd(), SNDRV_PCM_IOCTL_PREPARE, 0); errRec != nil {
					return fmt.Errorf("xrun recovery failed: %w", errRec)
				}

				continue
			}

			return fmt.Errorf("ioctl WRITEI_FRAMES failed: %w", err)
		}
	}

	return nil
}

// formatBytes returns the size of one sample in bytes.
func formatBytes(f PcmFormat) int {
	switch f {
	case SNDRV_PCM_FORMAT_S16_LE:
		return 2
	case SNDRV_PCM_FORMAT_S24_3LE:
		return 3
	default:
		return 4
	}
}
