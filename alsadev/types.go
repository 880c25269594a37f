//go:build linux && (amd64 || arm64)

package alsadev

// PcmFormat identifies an ALSA sample format.
type PcmFormat int32

// ALSA sample formats used by this backend. Values match the
// SNDRV_PCM_FORMAT_* constants in the kernel headers.
const (
	SNDRV_PCM_FORMAT_S16_LE   PcmFormat = 2
	SNDRV_PCM_FORMAT_S32_LE   PcmFormat = 10
	SNDRV_PCM_FORMAT_FLOAT_LE PcmFormat = 14
	SNDRV_PCM_FORMAT_S24_3LE  PcmFormat = 32
)

// PcmParam identifies a hardware parameter. Values match the
// SNDRV_PCM_HW_PARAM_* constants.
type PcmParam int

const (
	SNDRV_PCM_HW_PARAM_ACCESS      PcmParam = 0
	SNDRV_PCM_HW_PARAM_FORMAT      PcmParam = 1
	SNDRV_PCM_HW_PARAM_SUBFORMAT   PcmParam = 2
	SNDRV_PCM_HW_PARAM_SAMPLE_BITS PcmParam = 8
	SNDRV_PCM_HW_PARAM_FRAME_BITS  PcmParam = 9
	SNDRV_PCM_HW_PARAM_CHANNELS    PcmParam = 10
	SNDRV_PCM_HW_PARAM_RATE        PcmParam = 11
	SNDRV_PCM_HW_PARAM_PERIOD_TIME PcmParam = 12
	SNDRV_PCM_HW_PARAM_PERIOD_SIZE PcmParam = 13
	SNDRV_PCM_HW_PARAM_PERIODS     PcmParam = 15
	SNDRV_PCM_HW_PARAM_TICK_TIME   PcmParam = 19
)

const (
	SNDRV_PCM_ACCESS_RW_INTERLEAVED = 3

	SNDRV_PCM_INTERVAL_INTEGER = 1 << 2
)

// SndPcmUframesT is an unsigned long in the ALSA headers, a 64-bit unsigned
// integer on the supported architectures.
type SndPcmUframesT = uint64

type sndMask struct {
	Bits [8]uint32
}

type sndInterval struct {
	MinVal uint32
	MaxVal uint32
	Flags  uint32
}

// sndPcmHwParams mirrors struct snd_pcm_hw_params from the kernel ABI.
type sndPcmHwParams struct {
	Flags     uint32
	Masks     [3]sndMask
	Mres      [5]sndMask // reserved for future use
	Intervals [12]sndInterval
	Ires      [9]sndInterval // reserved for future use
	Rmask     uint32
	Cmask     uint32
	Info      uint32
	Msbits    uint32
	RateNum   uint32
	RateDen   uint32
	FifoSize  SndPcmUframesT
	Reserved  [64]byte
}

// sndPcmSwParams mirrors struct snd_pcm_sw_params for 64-bit systems; note
// the 4 bytes of padding after SleepMin to align the uint64 fields.
type sndPcmSwParams struct {
	TstampMode       uint32
	PeriodStep       uint32
	SleepMin         uint32
	_                [4]byte
	AvailMin         SndPcmUframesT
	XferAlign        SndPcmUframesT
	StartThreshold   SndPcmUframesT
	StopThreshold    SndPcmUframesT
	SilenceThreshold SndPcmUframesT
	SilenceSize      SndPcmUframesT
	Boundary         SndPcmUframesT
	Reserved         [64]byte
}

// sndXferi is for interleaved read/write operations.
type sndXferi struct {
	Result int     // Corresponds to C ssize_t
	Buf    uintptr // void*
	Frames SndPcmUframesT
}

// paramInit initializes a sndPcmHwParams struct to allow all possible values.
func paramInit(p *sndPcmHwParams) {
	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Mres {
		for i := range p.Mres[n].Bits {
			p.Mres[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n].MinVal = 0
		p.Intervals[n].MaxVal = ^uint32(0)
		p.Intervals[n].Flags = 0
	}

	for n := range p.Ires {
		p.Ires[n].MinVal = 0
		p.Ires[n].MaxVal = ^uint32(0)
		p.Ires[n].Flags = 0
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)
}

func paramSetMask(p *sndPcmHwParams, param PcmParam, bit uint32) {
	// The first 3 params are masks
	if param < SNDRV_PCM_HW_PARAM_ACCESS || param > SNDRV_PCM_HW_PARAM_SUBFORMAT {
		return
	}

	mask := &p.Masks[param-SNDRV_PCM_HW_PARAM_ACCESS]
	for i := range mask.Bits {
		mask.Bits[i] = 0
	}

	if bit >= 256 { // SNDRV_MASK_MAX
		return
	}

	mask.Bits[bit>>5] |= 1 << (bit & 31)
}

func paramTestMask(p *sndPcmHwParams, param PcmParam, bit uint32) bool {
	if param < SNDRV_PCM_HW_PARAM_ACCESS || param > SNDRV_PCM_HW_PARAM_SUBFORMAT {
		return false
	}

	if bit >= 256 {
		return false
	}

	mask := &p.Masks[param-SNDRV_PCM_HW_PARAM_ACCESS]

	return mask.Bits[bit>>5]&(1<<(bit&31)) != 0
}

func paramSetInt(p *sndPcmHwParams, param PcmParam, val uint32) {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return
	}

	// The interval array index is the parameter value minus the value of the
	// first interval param.
	interval := &p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS]
	interval.MinVal = val
	interval.MaxVal = val
	interval.Flags = SNDRV_PCM_INTERVAL_INTEGER
}

func paramGetMin(p *sndPcmHwParams, param PcmParam) uint32 {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return 0
	}

	return p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MinVal
}

func paramGetMax(p *sndPcmHwParams, param PcmParam) uint32 {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return 0
	}

	return p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MaxVal
}

// paramGetInt reads the finalized value of an interval parameter. The driver
// narrows the interval when it accepts a configuration, so MinVal holds the
// chosen value.
func paramGetInt(p *sndPcmHwParams, param PcmParam) uint32 {
	return paramGetMin(p, param)
}
