package hostaudio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/hostaudio"
)

func pow2Caps(min, max, preferred int) hostaudio.Capabilities {
	return hostaudio.Capabilities{
		BufferMin:         min,
		BufferMax:         max,
		BufferPreferred:   preferred,
		BufferGranularity: hostaudio.GranularityPowerOfTwo,
	}
}

func TestSelectHostBufferSizeUnspecifiedUserFrames(t *testing.T) {
	testCases := map[string]struct {
		target int
		caps   hostaudio.Capabilities
		want   int
	}{
		"clamped to min": {
			target: 16, caps: pow2Caps(64, 4096, 256), want: 64,
		},
		"clamped to max": {
			target: 10000, caps: pow2Caps(64, 4096, 256), want: 4096,
		},
		"rounded up to power of two": {
			target: 300, caps: pow2Caps(64, 4096, 256), want: 512,
		},
		"exact power of two kept": {
			target: 512, caps: pow2Caps(64, 4096, 256), want: 512,
		},
		"zero granularity returns preferred": {
			target: 300,
			caps: hostaudio.Capabilities{
				BufferMin: 64, BufferMax: 4096, BufferPreferred: 256,
			},
			want: 256,
		},
		"linear granularity rounds up": {
			target: 250,
			caps: hostaudio.Capabilities{
				BufferMin: 96, BufferMax: 4096, BufferPreferred: 960,
				BufferGranularity: 96,
			},
			want: 288,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := hostaudio.SelectHostBufferSize(tc.target, 0, tc.caps)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			assert.GreaterOrEqual(t, got, tc.caps.BufferMin)
			assert.LessOrEqual(t, got, tc.caps.BufferMax)

			// Selection is pure: identical inputs give identical output.
			again, err := hostaudio.SelectHostBufferSize(tc.target, 0, tc.caps)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestSelectHostBufferSizeSpecifiedUserFrames(t *testing.T) {
	testCases := map[string]struct {
		target     int
		userFrames int
		caps       hostaudio.Capabilities
		want       int
		wantErr    error
	}{
		"first multiple at or above target": {
			target: 300, userFrames: 128, caps: pow2Caps(64, 4096, 256), want: 512,
		},
		"largest multiple below target when none above": {
			target: 10000, userFrames: 1024, caps: pow2Caps(64, 4096, 256), want: 4096,
		},
		"user frames equal to a candidate": {
			target: 256, userFrames: 256, caps: pow2Caps(64, 4096, 256), want: 256,
		},
		"linear granularity multiples": {
			target: 200, userFrames: 96,
			caps: hostaudio.Capabilities{
				BufferMin: 96, BufferMax: 960, BufferPreferred: 480,
				BufferGranularity: 96,
			},
			want: 288,
		},
		"zero granularity needs divisible preferred": {
			target: 0, userFrames: 128,
			caps: hostaudio.Capabilities{
				BufferMin: 512, BufferMax: 512, BufferPreferred: 512,
			},
			want: 512,
		},
		"no compatible size": {
			target: 256, userFrames: 100, caps: pow2Caps(64, 4096, 256),
			wantErr: hostaudio.ErrNoCompatibleBufferSize,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := hostaudio.SelectHostBufferSize(tc.target, tc.userFrames, tc.caps)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Zero(t, got%tc.userFrames, "result must be an exact multiple of the user buffer")
			assert.GreaterOrEqual(t, got, tc.caps.BufferMin)
			assert.LessOrEqual(t, got, tc.caps.BufferMax)
		})
	}
}
