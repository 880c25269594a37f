package hostaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateChannels(t *testing.T) {
	testCases := map[string]struct {
		requested      int
		selectors      []int
		offset         int
		deviceChannels int
		wantChannels   []int
		wantOffset     int
		wantErr        error
	}{
		"default ascending": {
			requested: 2, deviceChannels: 4,
			wantChannels: []int{0, 1},
		},
		"offset applied": {
			requested: 2, offset: 2, deviceChannels: 4,
			wantChannels: []int{2, 3}, wantOffset: 2,
		},
		"offset fallback when device too small": {
			requested: 2, offset: 3, deviceChannels: 4,
			wantChannels: []int{0, 1}, wantOffset: 0,
		},
		"selectors verbatim": {
			requested: 2, selectors: []int{3, 1}, deviceChannels: 4,
			wantChannels: []int{3, 1},
		},
		"selectors ignore offset": {
			requested: 2, selectors: []int{1, 0}, offset: 2, deviceChannels: 4,
			wantChannels: []int{1, 0}, wantOffset: 0,
		},
		"selector out of range": {
			requested: 2, selectors: []int{0, 4}, deviceChannels: 4,
			wantErr: ErrInvalidChannelCount,
		},
		"selector count mismatch": {
			requested: 3, selectors: []int{0, 1}, deviceChannels: 4,
			wantErr: ErrInvalidChannelCount,
		},
		"too many channels": {
			requested: 5, deviceChannels: 4,
			wantErr: ErrInvalidChannelCount,
		},
		"zero channels": {
			requested: 0, deviceChannels: 4,
			wantErr: ErrInvalidChannelCount,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			channels, offset, err := negotiateChannels(tc.requested, tc.selectors, tc.offset, tc.deviceChannels)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantChannels, channels)
			assert.Equal(t, tc.wantOffset, offset)

			for _, ch := range channels {
				assert.Less(t, ch, tc.deviceChannels)
			}
		})
	}
}

func makeSlots(channels []int, isInput bool) []slot {
	slots := make([]slot, len(channels))
	for i, ch := range channels {
		slots[i] = slot{BufferSlot: BufferSlot{IsInput: isInput, Channel: ch}}
	}

	return slots
}

func TestResolveChannelMap(t *testing.T) {
	t.Run("grant order reversed from request", func(t *testing.T) {
		// Requested {3,1}, granted in ascending physical order {1,3}.
		// Logical channel 0 must resolve to the slot stamped 3, not to the
		// first granted slot.
		slots := makeSlots([]int{1, 3}, false)

		chmap, err := resolveChannelMap(slots, false, []int{3, 1})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 0}, chmap)
	})

	t.Run("mixed directions", func(t *testing.T) {
		slots := append(makeSlots([]int{0, 1}, true), makeSlots([]int{0, 1}, false)...)

		inMap, err := resolveChannelMap(slots, true, []int{1, 0})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 0}, inMap)

		outMap, err := resolveChannelMap(slots, false, []int{0, 1})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, outMap)
	})

	t.Run("missing channel fails open", func(t *testing.T) {
		slots := makeSlots([]int{0, 1}, false)

		_, err := resolveChannelMap(slots, false, []int{0, 2})
		require.ErrorIs(t, err, ErrChannelNotGranted)
	})

	t.Run("wrong direction is not matched", func(t *testing.T) {
		slots := makeSlots([]int{0}, true)

		_, err := resolveChannelMap(slots, false, []int{0})
		require.ErrorIs(t, err, ErrChannelNotGranted)
	})
}
