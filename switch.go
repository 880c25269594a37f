package hostaudio

import "time"

// stopPlayoutThreshold is the number of consecutive silent periods emitted
// after the callback signals completion before the stream is declared
// finished. Two periods flush both halves of the double buffer.
const stopPlayoutThreshold = 2

// BufferSwitch is the real-time entry point, invoked by the device once per
// buffer period with the half that is now safe to fill. It implements
// SwitchHandler.
//
// The engine never blocks and never allocates. A reentrant invocation is
// dropped immediately; the in-flight invocation catches the missed period
// up, so the device always gets its call handled and a missed period
// surfaces as overflow/underflow flags rather than a deadlock.
func (s *Stream) BufferSwitch(half int, when time.Time) {
	// The counter idles at -1. A positive value after increment means
	// another invocation is in flight; that invocation observes the raised
	// counter when it decrements and loops to process this period itself.
	if s.reenterCount.Add(1) > 0 {
		s.reenterErrors.Add(1)

		return
	}

	if when.IsZero() {
		when = time.Now()
	}

	buffersDone := 0

	for {
		if buffersDone > 0 {
			// Catching up a period dropped by the reentrancy guard: its
			// input was overwritten and its output deadline was missed.
			if s.inCount > 0 {
				s.callbackFlags |= InputOverflow
			}
			if s.outCount > 0 {
				s.callbackFlags |= OutputUnderflow
			}

			half ^= 1
			when = time.Now()
		}

		s.processBuffer(half, when)
		buffersDone++

		if s.reenterCount.Add(-1) < 0 {
			break
		}
	}
}

func (s *Stream) processBuffer(half int, when time.Time) {
	if s.zeroOutput.Load() {
		s.zeroOutputBuffers(half, false)

		if s.postOutput {
			_ = s.dev.OutputReady()
		}

		if s.stopProcessing.Load() && s.stopPlayoutCount < stopPlayoutThreshold {
			s.stopPlayoutCount++
			if s.stopPlayoutCount == stopPlayoutThreshold {
				s.isActive.Store(false)
				s.signalFinished()
			}
		}

		return
	}

	frames := s.framesPerBuffer

	if s.inConv != nil {
		for _, buf := range s.inBufs[half] {
			s.inConv(buf, s.inShift, frames)
		}
	}

	// Dummy slots below the output channel offset stay silent.
	if len(s.dummySlots) > 0 {
		s.zeroOutputBuffers(half, false)
	}

	now := timeSeconds(when)
	info := TimeInfo{
		CurrentTime:         now,
		InputBufferAdcTime:  now - float64(s.inputLatency)/s.sampleRate,
		OutputBufferDacTime: now + float64(s.outputLatency)/s.sampleRate,
	}

	// Flags accumulated since the last delivery are handed to the callback
	// once, then cleared.
	flags := s.callbackFlags
	s.callbackFlags = 0

	result := s.callback(s.inBufs[half], s.outBufs[half], frames, info, flags)

	if s.stopProcessing.Load() {
		result = Complete
	}

	if s.outConv != nil {
		for _, buf := range s.outBufs[half] {
			s.outConv(buf, s.outShift, frames)
		}
	}

	if s.postOutput {
		_ = s.dev.OutputReady()
	}

	switch result {
	case Complete:
		// The host buffer size equals the callback buffer size, so the
		// output written above is already committed; all that remains is
		// letting it play out.
		s.stopProcessing.Store(true)
		s.zeroOutput.Store(true)
		s.stopPlayoutCount = 0
	case Abort:
		s.zeroOutput.Store(true)
		s.isActive.Store(false)
		s.signalFinished()
	}
}

func timeSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
