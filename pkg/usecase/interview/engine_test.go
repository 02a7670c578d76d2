package interview_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/spool-learn/interview/pkg/adapter"
	"github.com/spool-learn/interview/pkg/interest"
	"github.com/spool-learn/interview/pkg/model"
	"github.com/spool-learn/interview/pkg/relay"
	"github.com/spool-learn/interview/pkg/repository"
	"github.com/spool-learn/interview/pkg/taxonomy"
	"github.com/spool-learn/interview/pkg/usecase/interview"
	"google.golang.org/genai"
)

type mockGemini struct {
	responses []string
	calls     int
	err       error
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}

	text := "Tell me more!"
	if m.calls < len(m.responses) {
		text = m.responses[m.calls]
	}
	m.calls++

	return genResponse(text), nil
}

func genResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

// blockingGemini stalls until the turn context ends, then recovers. It
// stands in for a capability that hangs past the turn deadline.
type blockingGemini struct {
	started chan struct{}
	calls   int
}

func (m *blockingGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	if m.calls == 1 {
		if m.started != nil {
			close(m.started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return genResponse("Back with you!"), nil
}

// memArchive keeps archived objects in memory.
type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemArchive() *memArchive {
	return &memArchive{objects: map[string][]byte{}}
}

func (a *memArchive) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &memWriter{archive: a, key: key}, nil
}

func (a *memArchive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type memWriter struct {
	archive *memArchive
	key     string
	buf     bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.archive.mu.Lock()
	defer w.archive.mu.Unlock()
	w.archive.objects[w.key] = w.buf.Bytes()
	return nil
}

type mockSink struct {
	mu      sync.Mutex
	entries []model.TranscriptEntry
}

func (s *mockSink) SaveEntry(ctx context.Context, id model.SessionID, entry model.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type mockSTT struct {
	text string
	err  error
}

func (m *mockSTT) Transcribe(ctx context.Context, segment model.AudioSegment) (string, error) {
	return m.text, m.err
}

type mockTTS struct {
	err error
}

func (m *mockTTS) Synthesize(ctx context.Context, text string) (adapter.AudioStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return adapter.AudioChunks(
		model.AudioSegment{SampleRate: model.DefaultSampleRate, Samples: make([]int16, 800)},
		model.AudioSegment{SampleRate: model.DefaultSampleRate, Samples: make([]int16, 800)},
	), nil
}

type mockThreads struct {
	payload *model.ThreadPayload
	token   string
	err     error
}

func (m *mockThreads) CreateThread(ctx context.Context, payload *model.ThreadPayload, authToken string) (string, error) {
	m.payload = payload
	m.token = authToken
	if m.err != nil {
		return "", m.err
	}
	return "thread-abc123", nil
}

type testEnv struct {
	engine   *interview.Engine
	registry *repository.Registry
	gemini   *mockGemini
	stt      *mockSTT
	tts      *mockTTS
	threads  *mockThreads
}

func newTestEnv(t *testing.T, mutate ...func(*interview.Config)) *testEnv {
	t.Helper()

	issuer, err := relay.New("test-secret")
	gt.NoError(t, err)

	env := &testEnv{
		registry: repository.New(),
		gemini:   &mockGemini{},
		stt:      &mockSTT{},
		tts:      &mockTTS{},
		threads:  &mockThreads{},
	}

	cfg := interview.Config{
		Registry:     env.registry,
		Gemini:       env.gemini,
		SpeechToText: env.stt,
		TextToSpeech: env.tts,
		RelayIssuer:  issuer,
		Taxonomy:     taxonomy.New(),
		Threads:      env.threads,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	env.engine, err = interview.New(cfg)
	gt.NoError(t, err)

	return env
}

func (e *testEnv) start(t *testing.T, input interview.StartInput) model.SessionID {
	t.Helper()
	id, err := e.engine.StartSession(context.Background(), input)
	gt.NoError(t, err)
	return id
}

func (e *testEnv) textTurn(t *testing.T, id model.SessionID, text string) *interview.TurnResult {
	t.Helper()
	result, err := e.engine.SubmitTextTurn(context.Background(), id, text)
	gt.NoError(t, err)
	return result
}

func TestStartSessionAndStatus(t *testing.T) {
	env := newTestEnv(t)

	id := env.start(t, interview.StartInput{UserID: "user-1"})
	gt.NotEqual(t, id, model.SessionID(""))

	status, err := env.engine.GetStatus(context.Background(), id)
	gt.NoError(t, err)
	gt.Equal(t, status.Stage, model.StageGreeting)
	gt.Equal(t, status.InterestCount, 0)
	gt.Equal(t, status.Greeting, interview.Greeting)
}

func TestStartSessionRequiresUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.StartSession(context.Background(), interview.StartInput{})
	gt.Error(t, err)
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.GetStatus(ctx, model.SessionID("nope"))
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))

	_, err = env.engine.SubmitTextTurn(ctx, model.SessionID("nope"), "hello")
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))

	_, err = env.engine.EndSession(ctx, model.SessionID("nope"))
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestThreadModeInterview(t *testing.T) {
	env := newTestEnv(t)
	env.gemini.responses = []string{
		"Chess sounds wonderful! [INTEREST: Chess] What do you love about it?",
		"Stargazing too! [INTEREST: Astronomy] Do you use a telescope?",
		"You really do love chess. [INTEREST: Chess] Which openings?",
		"Fascinating, let's go deeper on chess strategy.",
	}
	ctx := context.Background()

	id := env.start(t, interview.StartInput{
		UserID:    "user-1",
		Mode:      "thread",
		Purpose:   "onboarding",
		AuthToken: "Bearer tok",
	})

	r1 := env.textTurn(t, id, "I love playing chess and calculus derivative problems")
	gt.Equal(t, r1.Stage, model.StageGreeting)
	gt.Equal(t, len(r1.NewInterests), 1)
	gt.Equal(t, r1.NewInterests[0].Name, "Chess")
	gt.False(t, hasMarker(r1.AssistantText))

	r2 := env.textTurn(t, id, "I also enjoy stargazing at night")
	gt.Equal(t, r2.Stage, model.StageExploration)
	gt.Equal(t, len(r2.NewInterests), 1)
	gt.Equal(t, r2.NewInterests[0].Name, "Astronomy")

	// Re-tagged interest is not recorded twice.
	r3 := env.textTurn(t, id, "Mostly chess though")
	gt.Equal(t, r3.Stage, model.StageExploration)
	gt.Equal(t, len(r3.NewInterests), 0)

	r4 := env.textTurn(t, id, "I play chess every day")
	gt.Equal(t, r4.Stage, model.StageDeepDive)

	status, err := env.engine.GetStatus(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, status.InterestCount, 2)

	results, err := env.engine.EndSession(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, results.ThreadID, "thread-abc123")
	gt.Equal(t, results.ThreadCreationError, "")
	gt.Equal(t, len(results.Interests), 2)

	// Hand-off payload carries the transcript-derived fields.
	payload := env.threads.payload
	gt.V(t, payload).NotNil()
	gt.Equal(t, payload.UserID, "user-1")
	gt.Equal(t, payload.Title, "I love playing chess and calculus derivative problems")
	gt.Equal(t, payload.Interests, []string{"Chess", "Astronomy"})
	gt.Equal(t, payload.Status, "active")
	gt.Equal(t, payload.Metadata.SessionID, id)
	gt.Equal(t, payload.Metadata.Purpose, "onboarding")
	gt.Equal(t, env.threads.token, "Bearer tok")

	gt.True(t, contains(payload.Subjects, "Mathematics"))
	gt.True(t, contains(payload.Topics, "Calculus"))
	gt.True(t, contains(payload.Concepts, "Derivatives"))

	// Ended sessions are gone from the registry.
	_, err = env.engine.GetStatus(ctx, id)
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestStageNeverRegresses(t *testing.T) {
	env := newTestEnv(t)
	env.gemini.responses = []string{
		"[INTEREST: Chess] Nice!",
		"[INTEREST: Astronomy] Cool!",
	}

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	last := model.StageGreeting
	for i := 0; i < 12; i++ {
		result := env.textTurn(t, id, "still talking about chess")
		gt.False(t, result.Stage.Before(last))
		last = result.Stage
	}
	gt.Equal(t, last, model.StageTerminated)
}

func TestAudioTurn(t *testing.T) {
	env := newTestEnv(t)
	env.stt.text = "I like painting"
	env.gemini.responses = []string{"[INTEREST: Painting] Lovely, what medium?"}

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	result, err := env.engine.SubmitAudioTurn(context.Background(), id, model.Silence(model.DefaultSampleRate, time.Second))
	gt.NoError(t, err)
	gt.False(t, result.Silent)
	gt.False(t, result.Degraded)
	gt.Equal(t, result.UserText, "I like painting")
	gt.Equal(t, result.AssistantText, "Lovely, what medium?")
	gt.Equal(t, len(result.NewInterests), 1)
	gt.Equal(t, len(result.Audio.Samples), 1600)
	gt.Equal(t, result.Audio.SampleRate, model.DefaultSampleRate)
}

func TestSilentInputSkipsTurn(t *testing.T) {
	env := newTestEnv(t)
	env.stt.text = " a "

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	result, err := env.engine.SubmitAudioTurn(context.Background(), id, model.AudioSegment{})
	gt.NoError(t, err)
	gt.True(t, result.Silent)
	gt.True(t, result.Audio.Empty())

	handle, err := env.registry.Get(id)
	gt.NoError(t, err)
	gt.Equal(t, handle.Session.Turns(), 0)
}

func TestTranscriptionFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	env.stt.err = errors.New("stt down")

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	result, err := env.engine.SubmitAudioTurn(context.Background(), id, model.AudioSegment{})
	gt.NoError(t, err)
	gt.True(t, result.Degraded)
	gt.Equal(t, result.Audio.Duration(), time.Second)

	handle, err := env.registry.Get(id)
	gt.NoError(t, err)
	gt.Equal(t, handle.Session.Turns(), 0)
	gt.Equal(t, handle.Session.Stage, model.StageGreeting)
}

func TestGenerationFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	env.gemini.err = errors.New("model down")

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	result := env.textTurn(t, id, "hello there")
	gt.True(t, result.Degraded)
	gt.Equal(t, result.Audio.Duration(), time.Second)
	gt.Equal(t, result.Stage, model.StageGreeting)

	// The user utterance was already committed; only the response is missing.
	handle, err := env.registry.Get(id)
	gt.NoError(t, err)
	gt.Equal(t, handle.Session.Turns(), 1)
}

func TestSynthesisFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	env.stt.text = "I like painting"
	env.tts.err = errors.New("tts down")

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	result, err := env.engine.SubmitAudioTurn(context.Background(), id, model.AudioSegment{})
	gt.NoError(t, err)
	gt.True(t, result.Degraded)
	gt.Equal(t, result.Audio.Duration(), time.Second)

	// Text state committed normally; only the audio is degraded.
	handle, err := env.registry.Get(id)
	gt.NoError(t, err)
	gt.Equal(t, handle.Session.Turns(), 2)
}

func TestThreadCreationFailureRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.gemini.responses = []string{"[INTEREST: Chess] Great!"}
	env.threads.err = errors.New("lambda timeout")

	id := env.start(t, interview.StartInput{
		UserID: "user-1",
		Mode:   "thread",
	})

	env.textTurn(t, id, "I love chess")

	results, err := env.engine.EndSession(context.Background(), id)
	gt.NoError(t, err)
	gt.Equal(t, results.ThreadID, "")
	gt.NotEqual(t, results.ThreadCreationError, "")
}

func TestNoThreadWithoutInterests(t *testing.T) {
	env := newTestEnv(t)
	env.gemini.responses = []string{"Tell me about yourself!"}

	id := env.start(t, interview.StartInput{
		UserID: "user-1",
		Mode:   "thread",
	})

	env.textTurn(t, id, "hello")

	results, err := env.engine.EndSession(context.Background(), id)
	gt.NoError(t, err)
	gt.Equal(t, results.ThreadID, "")
	gt.True(t, env.threads.payload == nil)
}

func TestIssueRelayCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	cred, err := env.engine.IssueRelayCredential(ctx, id, "user-1")
	gt.NoError(t, err)
	gt.True(t, env.engine.RelayIssuer().Validate(cred.Username, cred.Credential))

	_, err = env.engine.IssueRelayCredential(ctx, model.SessionID("nope"), "user-1")
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestTurnTimeoutDegrades(t *testing.T) {
	gemini := &blockingGemini{}
	env := newTestEnv(t, func(cfg *interview.Config) {
		cfg.Gemini = gemini
		cfg.TurnTimeout = 50 * time.Millisecond
	})

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	result, err := env.engine.SubmitTextTurn(context.Background(), id, "hello there")
	gt.NoError(t, err)
	gt.True(t, result.Degraded)
	gt.Equal(t, result.Audio.Duration(), time.Second)
	gt.Equal(t, result.Stage, model.StageGreeting)

	// The deadline degraded the turn but did not end the session: the user
	// utterance stays committed and the next turn runs normally.
	handle, err := env.registry.Get(id)
	gt.NoError(t, err)
	gt.Equal(t, handle.Session.Turns(), 1)

	result = env.textTurn(t, id, "still here")
	gt.False(t, result.Degraded)
	gt.Equal(t, result.AssistantText, "Back with you!")
}

func TestEndSessionAbortsInflightTurn(t *testing.T) {
	gemini := &blockingGemini{started: make(chan struct{})}
	sink := &mockSink{}
	env := newTestEnv(t, func(cfg *interview.Config) {
		cfg.Gemini = gemini
		cfg.Transcripts = sink
	})

	id := env.start(t, interview.StartInput{UserID: "user-1"})
	handle, err := env.registry.Get(id)
	gt.NoError(t, err)

	turnErr := make(chan error, 1)
	go func() {
		_, err := env.engine.SubmitTextTurn(context.Background(), id, "hello there")
		turnErr <- err
	}()

	<-gemini.started
	results, err := env.engine.EndSession(context.Background(), id)
	gt.NoError(t, err)
	gt.Equal(t, len(results.Interests), 0)

	gt.Error(t, <-turnErr)

	// The aborted turn rolled back its user entry; nothing was committed,
	// and nothing was mirrored to the transcript sink.
	gt.Equal(t, handle.Session.Turns(), 0)
	gt.Equal(t, handle.Session.Stage, model.StageTerminated)
	gt.Equal(t, sink.count(), 0)
}

func TestConcurrentStatusReads(t *testing.T) {
	env := newTestEnv(t)
	env.gemini.responses = []string{"[INTEREST: Chess] Nice!"}
	ctx := context.Background()

	id := env.start(t, interview.StartInput{UserID: "user-1"})

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, err := env.engine.GetStatus(ctx, id); err != nil {
					return
				}
				if _, err := env.engine.GetResults(ctx, id); err != nil {
					return
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		env.textTurn(t, id, "I keep coming back to chess")
	}
	close(done)
	wg.Wait()

	status, err := env.engine.GetStatus(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, status.InterestCount, 1)
}

func TestArchivedTranscript(t *testing.T) {
	archive := newMemArchive()
	env := newTestEnv(t, func(cfg *interview.Config) {
		cfg.Archive = archive
	})
	env.gemini.responses = []string{"[INTEREST: Chess] Great!"}
	ctx := context.Background()

	id := env.start(t, interview.StartInput{UserID: "user-1", AuthToken: "Bearer tok"})
	env.textTurn(t, id, "I love chess")

	_, err := env.engine.EndSession(ctx, id)
	gt.NoError(t, err)

	rc, err := env.engine.ArchivedTranscript(ctx, id)
	gt.NoError(t, err)
	defer rc.Close()

	var record struct {
		SessionID  model.SessionID         `json:"session_id"`
		UserID     string                  `json:"user_id"`
		Stage      model.Stage             `json:"stage"`
		Transcript []model.TranscriptEntry `json:"transcript"`
		Interests  []model.InterestRecord  `json:"interests"`
		Metadata   map[string]string       `json:"metadata"`
	}
	gt.NoError(t, json.NewDecoder(rc).Decode(&record))
	gt.Equal(t, record.SessionID, id)
	gt.Equal(t, record.UserID, "user-1")
	gt.Equal(t, record.Stage, model.StageTerminated)
	gt.Equal(t, len(record.Transcript), 2)
	gt.Equal(t, len(record.Interests), 1)

	// The auth token is stripped before archiving.
	gt.Equal(t, record.Metadata[model.MetaAuthToken], "")

	_, err = env.engine.ArchivedTranscript(ctx, model.SessionID("nope"))
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func hasMarker(text string) bool {
	return len(interest.Extract(text, nil)) > 0
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
