//go:build linux && (amd64 || arm64)

package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/gen2brain/hostaudio"
	"github.com/gen2brain/hostaudio/alsadev"
)

func main() {
	var (
		card      int
		device    int
		channels  int
		rate      int
		frames    int
		offset    int
		latencyMs int
		preferred bool
	)

	flag.IntVar(&card, "card", 0, "The card to receive the audio")
	flag.IntVar(&device, "device", 0, "The device to receive the audio")
	flag.IntVar(&channels, "channels", 0, "The amount of channels per frame (0 = use WAV file's channels)")
	flag.IntVar(&rate, "rate", 0, "The amount of frames per second (0 = use WAV file's rate)")
	flag.IntVar(&frames, "frames", 0, "The requested buffer size in frames (0 = derive from latency)")
	flag.IntVar(&offset, "offset", 0, "Route output to physical channels starting at this offset")
	flag.IntVar(&latencyMs, "latency", 50, "The target output latency in milliseconds")
	flag.BoolVar(&preferred, "preferred", false, "Use the device's preferred buffer size unconditionally")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <wav-file>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	wavPath := flag.Arg(0)
	wavFile, err := os.Open(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening WAV file: %v\n", err)
		os.Exit(1)
	}
	defer wavFile.Close()

	decoder := wav.NewDecoder(wavFile)
	if !decoder.IsValidFile() {
		fmt.Fprintln(os.Stderr, "Invalid WAV file")
		os.Exit(1)
	}

	if channels == 0 {
		channels = int(decoder.NumChans)
	}

	sampleRate := float64(rate)
	if rate == 0 {
		sampleRate = float64(decoder.SampleRate)
	}

	dev := alsadev.New(uint(card), uint(device))

	stream, err := hostaudio.OpenBlocking(dev, nil,
		&hostaudio.StreamParams{Channels: channels},
		hostaudio.StreamOptions{
			SampleRate:             sampleRate,
			FramesPerBuffer:        frames,
			OutputLatencyFrames:    int(sampleRate * float64(latencyMs) / 1000),
			OutputChannelOffset:    offset,
			UsePreferredBufferSize: preferred,
		})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening stream: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	_, format := stream.Stream().SampleFormats()
	_, outputLatency := stream.Stream().Latencies()

	fmt.Printf("Playing WAV file: %s\n", wavPath)
	fmt.Printf("Device: hw:%d,%d\n", card, device)
	fmt.Printf("Configuration: %d channels, %g Hz, %s\n", channels, sampleRate, hostaudio.FormatNames[format])
	fmt.Printf("Buffer size: %d frames, output latency: %.1f ms\n",
		stream.Stream().FramesPerBuffer(), outputLatency*1000)

	if err := stream.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting stream: %v\n", err)
		os.Exit(1)
	}

	startTime := time.Now()
	framesWritten := 0

	chunkFrames := stream.Stream().FramesPerBuffer()
	pcmBuffer := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(decoder.NumChans),
			SampleRate:  int(decoder.SampleRate),
		},
		Data: make([]int, chunkFrames*int(decoder.NumChans)),
	}

	chunk := make([]byte, len(pcmBuffer.Data)*4)

	for {
		// n is the number of SAMPLES read from the decoder.
		n, err := decoder.PCMBuffer(pcmBuffer)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			fmt.Fprintf(os.Stderr, "Error reading PCM buffer from WAV: %v\n", err)
			os.Exit(1)
		}

		if n == 0 {
			break
		}

		encoded := encodeSamples(chunk, pcmBuffer.Data[:n], format, int(decoder.BitDepth))

		if _, err := stream.Write(encoded); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to stream: %v\n", err)

			break
		}

		framesWritten += n / channels
	}

	if err := stream.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping stream: %v\n", err)
	}

	fmt.Printf("Playback finished in %v. (%d frames played, %d xruns)\n",
		time.Since(startTime), framesWritten, stream.Xruns())
}

// encodeSamples converts the decoder's generic []int samples into the
// host-encoded interleaved frames the stream consumes, scaling from the WAV
// file's bit depth to the stream's encoding.
func encodeSamples(dst []byte, samples []int, format hostaudio.SampleFormat, bitDepth int) []byte {
	switch format {
	case hostaudio.FORMAT_INT16_LE, hostaudio.FORMAT_INT16_BE:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(scaleSample(s, bitDepth, 16))))
		}

		return dst[:len(samples)*2]
	case hostaudio.FORMAT_INT24_LE, hostaudio.FORMAT_INT24_BE:
		for i, s := range samples {
			v := scaleSample(s, bitDepth, 24)
			dst[i*3] = byte(v)
			dst[i*3+1] = byte(v >> 8)
			dst[i*3+2] = byte(v >> 16)
		}

		return dst[:len(samples)*3]
	case hostaudio.FORMAT_FLOAT32_LE, hostaudio.FORMAT_FLOAT32_BE,
		hostaudio.FORMAT_FLOAT64_LE, hostaudio.FORMAT_FLOAT64_BE:
		scale := float32(int64(1) << (bitDepth - 1))
		for i, s := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(s)/scale))
		}

		return dst[:len(samples)*4]
	default:
		// All the remaining encodings are 32 bit integer containers.
		for i, s := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(scaleSample(s, bitDepth, 32))))
		}

		return dst[:len(samples)*4]
	}
}

// scaleSample shifts a sample from the source bit depth to the target one.
func scaleSample(s, from, to int) int {
	if from > to {
		return s >> (from - to)
	}

	return s << (to - from)
}
