// Package interview is the orchestration engine: it owns the session
// registry, drives the per-turn pipeline, and hands completed sessions off
// to the downstream collaborators.
package interview

import (
	"context"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/adapter"
	"github.com/spool-learn/interview/pkg/model"
	"github.com/spool-learn/interview/pkg/relay"
	"github.com/spool-learn/interview/pkg/repository"
	"github.com/spool-learn/interview/pkg/taxonomy"
	"github.com/spool-learn/interview/pkg/utils/logging"
)

// DefaultTurnTimeout bounds each external capability call within a turn.
const DefaultTurnTimeout = 30 * time.Second

// Engine coordinates concurrent interview sessions. Sessions run fully
// concurrently with each other; turns within one session are serialized by
// the session handle's turn lock.
type Engine struct {
	registry *repository.Registry
	gemini   adapter.Gemini
	stt      adapter.SpeechToText
	tts      adapter.TextToSpeech
	issuer   *relay.Issuer
	matcher  *taxonomy.Matcher

	// Optional collaborators; nil disables the hand-off concerned.
	transcripts adapter.TranscriptSink
	analytics   adapter.Analytics
	archive     adapter.Archive
	threads     adapter.ThreadCreator

	turnTimeout time.Duration
	now         func() time.Time
}

// Config contains the engine's dependencies. Registry, Gemini, SpeechToText,
// TextToSpeech, RelayIssuer and Taxonomy are required.
type Config struct {
	Registry     *repository.Registry
	Gemini       adapter.Gemini
	SpeechToText adapter.SpeechToText
	TextToSpeech adapter.TextToSpeech
	RelayIssuer  *relay.Issuer
	Taxonomy     *taxonomy.Matcher

	Transcripts adapter.TranscriptSink
	Analytics   adapter.Analytics
	Archive     adapter.Archive
	Threads     adapter.ThreadCreator

	TurnTimeout time.Duration
	Clock       func() time.Time
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, goerr.New("registry is required")
	}
	if cfg.Gemini == nil {
		return nil, goerr.New("text generation capability is required")
	}
	if cfg.SpeechToText == nil {
		return nil, goerr.New("speech-to-text capability is required")
	}
	if cfg.TextToSpeech == nil {
		return nil, goerr.New("text-to-speech capability is required")
	}
	if cfg.RelayIssuer == nil {
		return nil, goerr.New("relay issuer is required")
	}
	if cfg.Taxonomy == nil {
		return nil, goerr.New("taxonomy matcher is required")
	}

	engine := &Engine{
		registry:    cfg.Registry,
		gemini:      cfg.Gemini,
		stt:         cfg.SpeechToText,
		tts:         cfg.TextToSpeech,
		issuer:      cfg.RelayIssuer,
		matcher:     cfg.Taxonomy,
		transcripts: cfg.Transcripts,
		analytics:   cfg.Analytics,
		archive:     cfg.Archive,
		threads:     cfg.Threads,
		turnTimeout: cfg.TurnTimeout,
		now:         cfg.Clock,
	}
	if engine.turnTimeout <= 0 {
		engine.turnTimeout = DefaultTurnTimeout
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	return engine, nil
}

// StartInput contains parameters for starting a session.
type StartInput struct {
	UserID    string
	Mode      string
	Purpose   string
	AuthToken string
}

// StartSession registers a new session and returns its ID. The session
// outlives the calling request: its context is detached from ctx's
// cancellation but keeps its values.
func (e *Engine) StartSession(ctx context.Context, input StartInput) (model.SessionID, error) {
	if input.UserID == "" {
		return "", goerr.New("user ID is required")
	}

	session := model.NewSession(input.UserID, e.now())
	if input.Mode != "" {
		session.Metadata[model.MetaMode] = input.Mode
	}
	if input.Purpose != "" {
		session.Metadata[model.MetaPurpose] = input.Purpose
	}
	if input.AuthToken != "" {
		session.Metadata[model.MetaAuthToken] = input.AuthToken
	}

	e.registry.Put(context.WithoutCancel(ctx), session)

	logging.From(ctx).Info("interview session started",
		"session_id", session.ID,
		"user_id", input.UserID,
		"mode", input.Mode,
	)

	return session.ID, nil
}

// SubmitAudioTurn processes one bounded audio segment through the turn
// pipeline. It returns the synthesized response, a fixed one-second silence
// segment when a capability fails, or an empty segment when the input was
// treated as silence. Turns for one session are strictly serialized.
func (e *Engine) SubmitAudioTurn(ctx context.Context, id model.SessionID, segment model.AudioSegment) (*TurnResult, error) {
	handle, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}

	handle.LockTurn()
	defer handle.UnlockTurn()

	if handle.Context().Err() != nil {
		return nil, goerr.Wrap(model.ErrSessionClosed, "session ended", goerr.V("session_id", id))
	}

	return e.runAudioTurn(ctx, handle, segment)
}

// SubmitTextTurn runs the turn pipeline on already-transcribed text, without
// speech synthesis. This drives the development chat mode.
func (e *Engine) SubmitTextTurn(ctx context.Context, id model.SessionID, text string) (*TurnResult, error) {
	handle, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}

	handle.LockTurn()
	defer handle.UnlockTurn()

	if handle.Context().Err() != nil {
		return nil, goerr.Wrap(model.ErrSessionClosed, "session ended", goerr.V("session_id", id))
	}

	turnCtx, cancel := e.turnContext(ctx, handle)
	defer cancel()

	return e.runTurn(turnCtx, handle, text)
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID     model.SessionID `json:"session_id"`
	Stage         model.Stage     `json:"stage"`
	InterestCount int             `json:"interests_found"`
	Duration      time.Duration   `json:"-"`
	Greeting      string          `json:"greeting"`
}

// GetStatus returns the current stage, interest count and duration.
func (e *Engine) GetStatus(ctx context.Context, id model.SessionID) (*Status, error) {
	handle, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}

	handle.RLockState()
	defer handle.RUnlockState()

	session := handle.Session
	return &Status{
		SessionID:     session.ID,
		Stage:         session.Stage,
		InterestCount: len(session.Interests),
		Duration:      session.Duration(e.now()),
		Greeting:      Greeting,
	}, nil
}

// Results is the outcome of a session: detected interests, the total
// duration, and the thread hand-off outcome when one was attempted.
type Results struct {
	SessionID model.SessionID        `json:"session_id"`
	UserID    string                 `json:"user_id"`
	Interests []model.InterestRecord `json:"interests"`
	Duration  time.Duration          `json:"-"`

	ThreadID            string `json:"thread_id,omitempty"`
	ThreadCreationError string `json:"thread_creation_error,omitempty"`
}

// GetResults returns the interests collected so far, plus the thread
// hand-off outcome if it already happened.
func (e *Engine) GetResults(ctx context.Context, id model.SessionID) (*Results, error) {
	handle, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}

	handle.RLockState()
	defer handle.RUnlockState()
	return e.results(handle.Session), nil
}

func (e *Engine) results(session *model.Session) *Results {
	interests := make([]model.InterestRecord, len(session.Interests))
	copy(interests, session.Interests)

	return &Results{
		SessionID: session.ID,
		UserID:    session.UserID,
		Interests: interests,
		Duration:  session.Duration(e.now()),

		ThreadID:            session.Metadata[model.MetaThreadID],
		ThreadCreationError: session.Metadata[model.MetaThreadCreationError],
	}
}

// EndSession terminates a session: it aborts any in-flight turn, runs the
// downstream hand-off, evicts the session from the registry and returns the
// final results. Hand-off failures are recorded in the results, never
// returned as errors.
func (e *Engine) EndSession(ctx context.Context, id model.SessionID) (*Results, error) {
	handle, err := e.registry.Evict(id)
	if err != nil {
		return nil, err
	}

	// Eviction cancelled the session context; an in-flight turn aborts at
	// its next commit point. Taking the turn lock waits that out.
	handle.LockTurn()
	defer handle.UnlockTurn()

	session := handle.Session
	endedAt := e.now()
	handle.LockState()
	session.EndedAt = &endedAt
	session.Stage = session.Stage.Advance(model.StageTerminated)
	handle.UnlockState()

	e.handOff(ctx, session)

	logging.From(ctx).Info("interview session ended",
		"session_id", session.ID,
		"interests", len(session.Interests),
		"turns", session.Turns(),
	)

	return e.results(session), nil
}

// IssueRelayCredential issues a session-scoped, time-limited credential for
// the audio relay, valid for one hour.
func (e *Engine) IssueRelayCredential(ctx context.Context, id model.SessionID, userID string) (relay.Credential, error) {
	if _, err := e.registry.Get(id); err != nil {
		return relay.Credential{}, err
	}

	identity := string(id)
	if userID != "" {
		identity = userID + "_" + identity
	}

	return e.issuer.Issue(identity, relay.SessionTTL), nil
}

// RelayIssuer exposes the issuer so the transport can package ICE server
// configuration alongside issued credentials.
func (e *Engine) RelayIssuer() *relay.Issuer {
	return e.issuer
}

// ArchivedTranscript loads the stored record of an ended session from the
// archive. Live sessions are served by GetResults; this is the read path for
// sessions already evicted from the registry.
func (e *Engine) ArchivedTranscript(ctx context.Context, id model.SessionID) (io.ReadCloser, error) {
	if e.archive == nil {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "no archive configured", goerr.V("session_id", id))
	}

	r, err := e.archive.Get(ctx, archiveKey(id))
	if err != nil {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "no archived transcript", goerr.V("session_id", id))
	}
	return r, nil
}

// turnContext bounds a turn's capability calls by the session lifetime and
// the per-turn timeout. The caller's ctx supplies values (logger), the
// handle's context supplies cancellation on session end.
func (e *Engine) turnContext(ctx context.Context, handle *repository.Handle) (context.Context, context.CancelFunc) {
	turnCtx, cancel := context.WithTimeout(handle.Context(), e.turnTimeout)
	return logging.With(turnCtx, logging.From(ctx)), cancel
}
