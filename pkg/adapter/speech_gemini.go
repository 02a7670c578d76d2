package adapter

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/model"
	"google.golang.org/genai"
)

// GeminiSpeech provides both speech capabilities through the Gemini API:
// transcription via audio-input generation and synthesis via the TTS models.
type GeminiSpeech struct {
	client   *genai.Client
	sttModel string
	ttsModel string
	voice    string
}

type GeminiSpeechOption func(*GeminiSpeech)

// WithVoice selects the prebuilt synthesis voice.
func WithVoice(voice string) GeminiSpeechOption {
	return func(g *GeminiSpeech) {
		g.voice = voice
	}
}

// WithTranscriptionModel overrides the model used for transcription.
func WithTranscriptionModel(model string) GeminiSpeechOption {
	return func(g *GeminiSpeech) {
		g.sttModel = model
	}
}

// WithSynthesisModel overrides the model used for synthesis.
func WithSynthesisModel(model string) GeminiSpeechOption {
	return func(g *GeminiSpeech) {
		g.ttsModel = model
	}
}

// NewGeminiSpeech creates speech capabilities backed by Vertex AI.
func NewGeminiSpeech(ctx context.Context, projectID, location string, opts ...GeminiSpeechOption) (*GeminiSpeech, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiSpeech{
		client:   client,
		sttModel: "gemini-2.5-flash",
		ttsModel: "gemini-2.5-flash-preview-tts",
		voice:    "Kore",
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

const transcribePrompt = "Transcribe this audio verbatim. Return only the spoken words, nothing else. If there is no speech, return an empty response."

// Transcribe sends the segment as inline WAV audio and returns the text.
func (g *GeminiSpeech) Transcribe(ctx context.Context, segment model.AudioSegment) (string, error) {
	if segment.Empty() {
		return "", nil
	}

	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(transcribePrompt),
		genai.NewPartFromBytes(encodeWAV(segment), "audio/wav"),
	}, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.sttModel, []*genai.Content{content}, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to transcribe audio")
	}

	return strings.TrimSpace(ResponseText(resp)), nil
}

// Synthesize generates speech for the text. The TTS models return raw
// little-endian PCM16 as inline data, typically at 24 kHz.
func (g *GeminiSpeech) Synthesize(ctx context.Context, text string) (AudioStream, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.ttsModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to synthesize speech")
	}

	var chunks []model.AudioSegment
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			chunks = append(chunks, decodeInlinePCM(part.InlineData))
		}
	}

	return AudioChunks(chunks...), nil
}

// decodeInlinePCM converts an inline audio blob to a segment. The sample
// rate comes from the MIME type (audio/L16;codec=pcm;rate=24000); 24 kHz is
// assumed when absent.
func decodeInlinePCM(blob *genai.Blob) model.AudioSegment {
	rate := 24000
	for _, param := range strings.Split(blob.MIMEType, ";") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(param), "rate="); ok {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				rate = parsed
			}
		}
	}

	samples := make([]int16, len(blob.Data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(blob.Data[i*2:]))
	}
	return model.AudioSegment{SampleRate: rate, Samples: samples}
}

// encodeWAV wraps a PCM segment in a minimal RIFF/WAVE container, which is
// what the transcription models accept as inline audio.
func encodeWAV(segment model.AudioSegment) []byte {
	rate := segment.SampleRate
	if rate <= 0 {
		rate = model.DefaultSampleRate
	}
	dataLen := len(segment.Samples) * 2

	buf := make([]byte, 44+dataLen)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:], uint32(rate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(rate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))
	for i, s := range segment.Samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}
