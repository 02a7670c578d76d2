package adapter

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/model"
)

// SpeechToText transcribes one bounded audio segment. Endpoint detection is
// the caller's responsibility; a segment is already a complete utterance.
type SpeechToText interface {
	Transcribe(ctx context.Context, segment model.AudioSegment) (string, error)
}

// TextToSpeech synthesizes text into a finite stream of audio chunks.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) (AudioStream, error)
}

// AudioStream yields synthesized audio chunks. Next returns io.EOF when the
// stream is exhausted.
type AudioStream interface {
	Next() (model.AudioSegment, error)
	Close() error
}

// CollectAudio drains a stream into a single segment. An exhausted stream
// with no chunks yields an empty segment, not an error. The stream is closed
// before returning.
func CollectAudio(stream AudioStream) (model.AudioSegment, error) {
	defer stream.Close()

	var out model.AudioSegment
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return model.AudioSegment{}, goerr.Wrap(err, "failed to read audio stream")
		}

		if out.SampleRate == 0 {
			out.SampleRate = chunk.SampleRate
		}
		out.Samples = append(out.Samples, chunk.Samples...)
	}
}

// AudioChunks wraps a fixed chunk list as an AudioStream, for capability
// implementations that synthesize eagerly and for tests.
func AudioChunks(chunks ...model.AudioSegment) AudioStream {
	return &sliceStream{chunks: chunks}
}

type sliceStream struct {
	chunks []model.AudioSegment
	pos    int
}

func (s *sliceStream) Next() (model.AudioSegment, error) {
	if s.pos >= len(s.chunks) {
		return model.AudioSegment{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error {
	return nil
}
