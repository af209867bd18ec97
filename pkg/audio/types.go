// Package audio defines the media types shared by the Parlavox pipeline:
// the per-call media profile, the outbound codec set, and the chunk type
// produced by streaming TTS sources.
//
// The pipeline operates on two representations. Synthesised audio enters as
// float32 samples in [-1, 1] ([Chunk]); everything downstream of the frame
// encoder is little-endian int16 PCM or a G.711 companded byte stream.
package audio

import (
	"fmt"
	"time"
)

// Codec identifies the wire encoding of outbound frames.
type Codec string

const (
	// CodecPCMU is G.711 µ-law, 1 byte per sample.
	CodecPCMU Codec = "pcmu"

	// CodecPCMA is G.711 A-law, 1 byte per sample.
	CodecPCMA Codec = "pcma"

	// CodecL16 is uncompressed little-endian 16-bit PCM, 2 bytes per sample.
	CodecL16 Codec = "l16"
)

// IsValid reports whether c is a recognised codec.
func (c Codec) IsValid() bool {
	switch c {
	case CodecPCMU, CodecPCMA, CodecL16:
		return true
	}
	return false
}

// BytesPerSample returns the encoded width of one sample. Unknown codecs
// report zero.
func (c Codec) BytesPerSample() int {
	switch c {
	case CodecPCMU, CodecPCMA:
		return 1
	case CodecL16:
		return 2
	}
	return 0
}

// String returns the codec name as used in configuration files.
func (c Codec) String() string { return string(c) }

// MediaProfile fixes the outbound frame geometry for the lifetime of a call
// session. Telephony defaults are 8000 Hz, 160 samples, 20 ms, µ-law.
type MediaProfile struct {
	// SampleRate of the outbound leg in Hz.
	SampleRate int

	// SamplesPerFrame is the number of PCM samples carried by one frame.
	SamplesPerFrame int

	// PtimeMs is the duration one frame represents, in milliseconds.
	// Must satisfy SamplesPerFrame * 1000 == SampleRate * PtimeMs.
	PtimeMs int

	// Codec selects the outbound frame encoding.
	Codec Codec
}

// DefaultProfile returns the standard telephony profile: 8 kHz µ-law with
// 20 ms (160 sample) frames.
func DefaultProfile() MediaProfile {
	return MediaProfile{
		SampleRate:      8000,
		SamplesPerFrame: 160,
		PtimeMs:         20,
		Codec:           CodecPCMU,
	}
}

// Validate checks the profile's internal consistency.
func (p MediaProfile) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate %d must be positive", p.SampleRate)
	}
	if p.SamplesPerFrame <= 0 {
		return fmt.Errorf("audio: samples per frame %d must be positive", p.SamplesPerFrame)
	}
	if p.PtimeMs <= 0 {
		return fmt.Errorf("audio: ptime %dms must be positive", p.PtimeMs)
	}
	if !p.Codec.IsValid() {
		return fmt.Errorf("audio: codec %q is invalid; valid values: pcmu, pcma, l16", p.Codec)
	}
	if p.SamplesPerFrame*1000 != p.SampleRate*p.PtimeMs {
		return fmt.Errorf("audio: %d samples per frame at %d Hz is not %d ms",
			p.SamplesPerFrame, p.SampleRate, p.PtimeMs)
	}
	return nil
}

// FrameBytes returns the encoded size of one outbound frame.
func (p MediaProfile) FrameBytes() int {
	return p.SamplesPerFrame * p.Codec.BytesPerSample()
}

// Ptime returns the frame duration as a [time.Duration].
func (p MediaProfile) Ptime() time.Duration {
	return time.Duration(p.PtimeMs) * time.Millisecond
}

// Chunk is one segment of synthesised audio as delivered by a TTS source.
// Chunks arrive at irregular real-time intervals and may be empty. The
// sample rate can change between chunks of the same utterance when the
// source switches synthesis models mid-stream.
type Chunk struct {
	// Samples are mono float32 PCM in [-1, 1]. Non-finite values may occur
	// and are sanitised downstream.
	Samples []float32

	// SampleRate is the native rate of Samples in Hz.
	SampleRate int
}

// DecodePCM16 converts little-endian 16-bit PCM bytes to int16 samples.
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return out
}

// EncodePCM16 converts int16 samples to little-endian 16-bit PCM bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
