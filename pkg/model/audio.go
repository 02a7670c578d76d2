package model

import "time"

// DefaultSampleRate is the PCM sample rate assumed for raw audio frames
// arriving without an explicit rate.
const DefaultSampleRate = 16000

// AudioSegment is one bounded chunk of mono 16-bit PCM audio. Endpoint
// detection happens upstream; a segment is already a complete utterance.
type AudioSegment struct {
	SampleRate int
	Samples    []int16
}

// Empty reports whether the segment carries no audio.
func (a AudioSegment) Empty() bool {
	return len(a.Samples) == 0
}

// Duration returns the playback duration of the segment.
func (a AudioSegment) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(a.Samples)) * time.Second / time.Duration(a.SampleRate)
}

// Silence returns a zero-filled segment of the given duration, used as the
// degraded response when a turn fails.
func Silence(sampleRate int, d time.Duration) AudioSegment {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(d * time.Duration(sampleRate) / time.Second)
	if n < 0 {
		n = 0
	}
	return AudioSegment{
		SampleRate: sampleRate,
		Samples:    make([]int16, n),
	}
}
