package hostaudio

// nextPowerOfTwo returns the smallest power of two >= x.
func nextPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}

	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32

	return x + 1
}

// SelectHostBufferSize computes a host buffer size in frames that complies
// with the device's buffer constraints.
//
// When userFramesPerBuffer is zero the target latency alone drives the
// selection: the target is clamped into [BufferMin, BufferMax] and rounded
// according to the device's granularity rule. This always yields a valid
// size.
//
// When userFramesPerBuffer is non-zero the result must additionally be an
// exact multiple of it. Candidate sizes (powers of two or granularity
// multiples, per the device rule) are searched in ascending order, preferring
// the first candidate >= the target latency, or failing that the largest
// candidate below it. ErrNoCompatibleBufferSize is returned when no candidate
// is a multiple of userFramesPerBuffer.
//
// Selection is pure: identical inputs yield identical output. Note that some
// devices report inaccurate bounds; if buffer creation is rejected for the
// selected size, Open retries once with BufferPreferred before failing.
func SelectHostBufferSize(targetLatencyFrames, userFramesPerBuffer int, caps Capabilities) (int, error) {
	if userFramesPerBuffer == 0 {
		return selectForUnspecifiedUserFrames(targetLatencyFrames, caps), nil
	}

	return selectForSpecifiedUserFrames(targetLatencyFrames, userFramesPerBuffer, caps)
}

func selectForUnspecifiedUserFrames(target int, caps Capabilities) int {
	if target <= caps.BufferMin {
		return caps.BufferMin
	}

	if target >= caps.BufferMax {
		return caps.BufferMax
	}

	switch caps.BufferGranularity {
	case 0:
		// Granularity zero means min, max and preferred are the same single
		// supported size.
		return caps.BufferPreferred
	case GranularityPowerOfTwo:
		result := nextPowerOfTwo(target)
		if result < caps.BufferMin {
			result = caps.BufferMin
		}
		if result > caps.BufferMax {
			result = caps.BufferMax
		}

		return result
	default:
		// Round up to the next multiple of the granularity step.
		n := (target + caps.BufferGranularity - 1) / caps.BufferGranularity
		result := n * caps.BufferGranularity
		if result < caps.BufferMin {
			result = caps.BufferMin
		}
		if result > caps.BufferMax {
			result = caps.BufferMax
		}

		return result
	}
}

func selectForSpecifiedUserFrames(target, userFrames int, caps Capabilities) (int, error) {
	result := 0

	switch caps.BufferGranularity {
	case 0:
		if caps.BufferPreferred%userFrames == 0 {
			result = caps.BufferPreferred
		}
	case GranularityPowerOfTwo:
		for x := caps.BufferMin; x <= caps.BufferMax; x *= 2 {
			if x%userFrames == 0 {
				// Any multiple of userFrames is acceptable; one >= the
				// target is ideal.
				result = x
				if result >= target {
					break
				}
			}
		}
	default:
		for x := caps.BufferMin; x <= caps.BufferMax; x += caps.BufferGranularity {
			if x%userFrames == 0 {
				result = x
				if result >= target {
					break
				}
			}
		}
	}

	if result == 0 {
		return 0, ErrNoCompatibleBufferSize
	}

	return result, nil
}
