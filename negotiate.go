package hostaudio

import "fmt"

// negotiateChannels computes the physical channel numbers to request from the
// device for one direction.
//
// When explicit selectors are given they are validated against the device
// channel count and returned verbatim, in order. Otherwise channels
// [offset, offset+requested) are requested; if the device does not have
// enough channels for the offset, the policy falls back to [0, requested).
// The applied offset is returned so the caller can allocate dummy slots for
// the channels below it.
func negotiateChannels(requested int, selectors []int, offset, deviceChannels int) (channels []int, appliedOffset int, err error) {
	if requested <= 0 || requested > deviceChannels {
		return nil, 0, fmt.Errorf("%w: requested %d of %d device channels", ErrInvalidChannelCount, requested, deviceChannels)
	}

	if selectors != nil {
		if len(selectors) != requested {
			return nil, 0, fmt.Errorf("%w: %d selectors for %d channels", ErrInvalidChannelCount, len(selectors), requested)
		}

		for _, sel := range selectors {
			if sel < 0 || sel >= deviceChannels {
				return nil, 0, fmt.Errorf("%w: selector %d out of range [0,%d)", ErrInvalidChannelCount, sel, deviceChannels)
			}
		}

		channels = make([]int, requested)
		copy(channels, selectors)

		return channels, 0, nil
	}

	if offset < 0 || offset+requested > deviceChannels {
		offset = 0
	}

	channels = make([]int, requested)
	for i := range channels {
		channels[i] = offset + i
	}

	return channels, offset, nil
}

// resolveChannelMap maps each requested physical channel number to the index
// of the granted slot stamped with that number, restricted to slots of the
// matching direction.
//
// The grant order is never assumed to match the request order: a driver is
// free to return slots in any order, and resolving by array position instead
// of the stamped channel number misroutes audio. When a requested channel has
// no matching slot the open fails with ErrChannelNotGranted.
func resolveChannelMap(slots []slot, isInput bool, requested []int) ([]int, error) {
	chmap := make([]int, len(requested))

	for i, ch := range requested {
		idx := -1
		for j := range slots {
			if slots[j].IsInput == isInput && slots[j].Channel == ch {
				idx = j
				break
			}
		}

		if idx < 0 {
			dir := "output"
			if isInput {
				dir = "input"
			}

			return nil, fmt.Errorf("%w: %s channel %d", ErrChannelNotGranted, dir, ch)
		}

		chmap[i] = idx
	}

	return chmap, nil
}
