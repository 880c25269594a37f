//go:build linux && (amd64 || arm64)

package alsadev_test

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/hostaudio"
	"github.com/gen2brain/hostaudio/alsadev"
)

// These tests need a real PCM playback device. The 'snd-aloop' kernel module
// provides a virtual one:
//
// sudo modprobe snd-aloop

func requireDevice(t *testing.T) *alsadev.Device {
	t.Helper()

	if _, err := os.Stat("/dev/snd/pcmC0D0p"); err != nil {
		t.Skip("no PCM playback device available")
	}

	return alsadev.New(0, 0)
}

func TestDeviceCapabilities(t *testing.T) {
	dev := requireDevice(t)

	caps, err := dev.Capabilities()
	require.NoError(t, err)

	assert.Zero(t, caps.InputChannels)
	assert.Greater(t, caps.OutputChannels, 0)
	assert.Greater(t, caps.BufferMin, 0)
	assert.GreaterOrEqual(t, caps.BufferMax, caps.BufferMin)
	assert.GreaterOrEqual(t, caps.BufferPreferred, caps.BufferMin)
	assert.LessOrEqual(t, caps.BufferPreferred, caps.BufferMax)
	assert.Equal(t, hostaudio.GranularityPowerOfTwo, caps.BufferGranularity)
}

type noopHandler struct{}

func (noopHandler) BufferSwitch(int, time.Time) {}

func TestDeviceRejectsCapture(t *testing.T) {
	dev := requireDevice(t)

	_, err := dev.CreateBuffers([]hostaudio.BufferRequest{{IsInput: true, Channel: 0}}, 1024, noopHandler{})
	require.ErrorIs(t, err, hostaudio.ErrNotSupported)
}

func TestDeviceSampleRateValidation(t *testing.T) {
	dev := requireDevice(t)

	require.NoError(t, dev.SetSampleRate(44100))
	require.Error(t, dev.SetSampleRate(0))
	require.Error(t, dev.SetSampleRate(44100.5))
}

func TestDevicePlaybackStream(t *testing.T) {
	dev := requireDevice(t)

	var periods atomic.Int32
	stream, err := hostaudio.Open(dev, nil, &hostaudio.StreamParams{Channels: 2}, hostaudio.StreamOptions{
		SampleRate:             48000,
		UsePreferredBufferSize: true,
		Callback: func(_, output [][]byte, _ int, _ hostaudio.TimeInfo, _ hostaudio.CallbackFlags) hostaudio.CallbackResult {
			for _, buf := range output {
				for i := range buf {
					buf[i] = 0
				}
			}
			periods.Add(1)

			return hostaudio.Continue
		},
	})
	if err != nil {
		t.Skipf("device refused stream: %v", err)
	}
	defer stream.Close()

	require.NoError(t, stream.Start())

	deadline := time.Now().Add(2 * time.Second)
	for periods.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, stream.Stop())
	assert.GreaterOrEqual(t, int(periods.Load()), 4)
}
