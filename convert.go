package hostaudio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The host-native sample encodings are little-endian int16, packed int24,
// int32 and float32. Device buffers are converted in place between their
// native encoding and the host encoding: byte swaps for big-endian devices,
// bit shifts for reduced-precision 32 bit containers, and width conversion
// for float64 devices.

// converterFunc converts count samples in place. shift is the bit shift
// associated with the format, zero for formats that need none.
type converterFunc func(buf []byte, shift, count int)

type converterEntry struct {
	fn    converterFunc
	shift int
}

// inputConverters convert device-native samples to the host encoding.
// A nil fn means the encoding is already host-native.
var inputConverters = map[SampleFormat]converterEntry{
	FORMAT_INT16_LE:   {nil, 0},
	FORMAT_INT16_BE:   {swap16, 0},
	FORMAT_INT24_LE:   {nil, 0},
	FORMAT_INT24_BE:   {swap24, 0},
	FORMAT_INT32_LE:   {nil, 0},
	FORMAT_INT32_BE:   {swap32, 0},
	FORMAT_FLOAT32_LE: {nil, 0},
	FORMAT_FLOAT32_BE: {swap32, 0},
	FORMAT_FLOAT64_LE: {float64ToFloat32, 0},
	FORMAT_FLOAT64_BE: {swap64Float64ToFloat32, 0},
	FORMAT_INT32_LE16: {shiftLeft32, 16},
	FORMAT_INT32_LE18: {shiftLeft32, 14},
	FORMAT_INT32_LE20: {shiftLeft32, 12},
	FORMAT_INT32_LE24: {shiftLeft32, 8},
	FORMAT_INT32_BE16: {swapShiftLeft32, 16},
	FORMAT_INT32_BE18: {swapShiftLeft32, 14},
	FORMAT_INT32_BE20: {swapShiftLeft32, 12},
	FORMAT_INT32_BE24: {swapShiftLeft32, 8},
}

// outputConverters convert host-encoded samples to the device-native
// encoding, mirroring inputConverters.
var outputConverters = map[SampleFormat]converterEntry{
	FORMAT_INT16_LE:   {nil, 0},
	FORMAT_INT16_BE:   {swap16, 0},
	FORMAT_INT24_LE:   {nil, 0},
	FORMAT_INT24_BE:   {swap24, 0},
	FORMAT_INT32_LE:   {nil, 0},
	FORMAT_INT32_BE:   {swap32, 0},
	FORMAT_FLOAT32_LE: {nil, 0},
	FORMAT_FLOAT32_BE: {swap32, 0},
	FORMAT_FLOAT64_LE: {float32ToFloat64, 0},
	FORMAT_FLOAT64_BE: {float32ToFloat64Swap64, 0},
	FORMAT_INT32_LE16: {shiftRight32, 16},
	FORMAT_INT32_LE18: {shiftRight32, 14},
	FORMAT_INT32_LE20: {shiftRight32, 12},
	FORMAT_INT32_LE24: {shiftRight32, 8},
	FORMAT_INT32_BE16: {shiftRightSwap32, 16},
	FORMAT_INT32_BE18: {shiftRightSwap32, 14},
	FORMAT_INT32_BE20: {shiftRightSwap32, 12},
	FORMAT_INT32_BE24: {shiftRightSwap32, 8},
}

// selectInputConverter returns the device-to-host converter for a native
// encoding, or ErrUnsupportedSampleFormat. A nil converter with a nil error
// means no conversion is required.
func selectInputConverter(f SampleFormat) (converterFunc, int, error) {
	entry, ok := inputConverters[f]
	if !ok {
		return nil, 0, fmt.Errorf("%w: input format %d", ErrUnsupportedSampleFormat, f)
	}

	return entry.fn, entry.shift, nil
}

// selectOutputConverter returns the host-to-device converter for a native
// encoding, or ErrUnsupportedSampleFormat.
func selectOutputConverter(f SampleFormat) (converterFunc, int, error) {
	entry, ok := outputConverters[f]
	if !ok {
		return nil, 0, fmt.Errorf("%w: output format %d", ErrUnsupportedSampleFormat, f)
	}

	return entry.fn, entry.shift, nil
}

func swap16(buf []byte, _, count int) {
	for i := 0; i < count*2; i += 2 {
		buf[i], buf[i+1] = buf[i+1], buf[i]
	}
}

func swap24(buf []byte, _, count int) {
	for i := 0; i < count*3; i += 3 {
		buf[i], buf[i+2] = buf[i+2], buf[i]
	}
}

func swap32(buf []byte, _, count int) {
	for i := 0; i < count*4; i += 4 {
		buf[i], buf[i+3] = buf[i+3], buf[i]
		buf[i+1], buf[i+2] = buf[i+2], buf[i+1]
	}
}

func shiftLeft32(buf []byte, shift, count int) {
	for i := 0; i < count*4; i += 4 {
		v := binary.LittleEndian.Uint32(buf[i:])
		binary.LittleEndian.PutUint32(buf[i:], v<<shift)
	}
}

func shiftRight32(buf []byte, shift, count int) {
	for i := 0; i < count*4; i += 4 {
		v := binary.LittleEndian.Uint32(buf[i:])
		binary.LittleEndian.PutUint32(buf[i:], v>>shift)
	}
}

func swapShiftLeft32(buf []byte, shift, count int) {
	for i := 0; i < count*4; i += 4 {
		v := binary.BigEndian.Uint32(buf[i:])
		binary.LittleEndian.PutUint32(buf[i:], v<<shift)
	}
}

func shiftRightSwap32(buf []byte, shift, count int) {
	for i := 0; i < count*4; i += 4 {
		v := binary.LittleEndian.Uint32(buf[i:])
		binary.BigEndian.PutUint32(buf[i:], v>>shift)
	}
}

// float64ToFloat32 narrows 64 bit samples to 32 bit in place. The converted
// samples occupy the first count*4 bytes of the buffer.
func float64ToFloat32(buf []byte, _, count int) {
	for i := 0; i < count; i++ {
		v := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
}

func swap64Float64ToFloat32(buf []byte, _, count int) {
	for i := 0; i < count; i++ {
		v := math.Float64frombits(binary.BigEndian.Uint64(buf[i*8:]))
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
}

// float32ToFloat64 widens 32 bit samples to 64 bit in place, iterating
// backwards so the source is not overwritten before it is read.
func float32ToFloat64(buf []byte, _, count int) {
	for i := count - 1; i >= 0; i-- {
		v := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(float64(v)))
	}
}

func float32ToFloat64Swap64(buf []byte, _, count int) {
	for i := count - 1; i >= 0; i-- {
		v := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(float64(v)))
	}
}
