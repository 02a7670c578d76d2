package interview

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/adapter"
	"github.com/spool-learn/interview/pkg/interest"
	"github.com/spool-learn/interview/pkg/model"
	"github.com/spool-learn/interview/pkg/repository"
	"github.com/spool-learn/interview/pkg/utils/logging"
	"google.golang.org/genai"
)

// minTranscriptLen is the shortest transcription treated as speech. Anything
// shorter counts as silence and the turn produces no response.
const minTranscriptLen = 2

// silenceDuration is the length of the degraded response played when a
// capability fails mid-turn.
const silenceDuration = time.Second

// TurnResult is the outcome of one turn. Silent is set when the input was
// discarded as silence; Degraded when a capability failed and the audio is a
// fixed silence segment instead of a synthesized response.
type TurnResult struct {
	Audio         model.AudioSegment
	UserText      string
	AssistantText string
	NewInterests  []model.InterestRecord
	Stage         model.Stage
	Silent        bool
	Degraded      bool
}

// runAudioTurn transcribes the segment and runs the text pipeline, then
// synthesizes the response. Called with the turn lock held.
func (e *Engine) runAudioTurn(ctx context.Context, handle *repository.Handle, segment model.AudioSegment) (*TurnResult, error) {
	turnCtx, cancel := e.turnContext(ctx, handle)
	defer cancel()

	userText, err := e.stt.Transcribe(turnCtx, segment)
	if err != nil {
		// Only session end aborts the turn; a timed-out capability call
		// degrades and leaves the session usable.
		if handle.Context().Err() != nil {
			return nil, goerr.Wrap(err, "turn aborted during transcription", goerr.V("session_id", handle.Session.ID))
		}
		logging.From(turnCtx).Warn("transcription failed, responding with silence", "error", err)
		return e.degradedResult(handle.Session), nil
	}

	result, err := e.runTurn(turnCtx, handle, userText)
	if err != nil {
		return nil, err
	}
	if result.Silent || result.Degraded {
		return result, nil
	}

	stream, err := e.tts.Synthesize(turnCtx, result.AssistantText)
	if err == nil {
		result.Audio, err = adapter.CollectAudio(stream)
	}
	if err != nil {
		if handle.Context().Err() != nil {
			return nil, goerr.Wrap(err, "turn aborted during synthesis", goerr.V("session_id", handle.Session.ID))
		}
		logging.From(turnCtx).Warn("synthesis failed, responding with silence", "error", err)
		result.Audio = model.Silence(model.DefaultSampleRate, silenceDuration)
		result.Degraded = true
	}

	return result, nil
}

// runTurn is the text core of the pipeline: append the user utterance,
// generate the assistant response for the candidate stage, then commit stage,
// interests and analysis. Nothing before generation succeeds moves the stage,
// and a turn aborted by session end rolls the user utterance back. Called
// with the turn lock held.
func (e *Engine) runTurn(ctx context.Context, handle *repository.Handle, userText string) (*TurnResult, error) {
	session := handle.Session

	userText = strings.TrimSpace(userText)
	if len(userText) < minTranscriptLen {
		return &TurnResult{Stage: session.Stage, Silent: true}, nil
	}

	mark := len(session.Transcript)
	now := e.now()
	handle.LockState()
	session.AppendTranscript(model.SpeakerUser, userText, now)
	handle.UnlockState()

	candidate := computeStage(session)

	resp, err := e.gemini.GenerateContent(ctx,
		conversationContents(session.Transcript),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(
				systemInstruction(candidate, session.InterestNames()),
				genai.RoleUser,
			),
		},
	)
	if err != nil {
		if handle.Context().Err() != nil {
			// Session ended mid-turn: undo the half-applied user entry so
			// state stays consistent. A mere deadline degrades below.
			handle.LockState()
			session.Transcript = session.Transcript[:mark]
			handle.UnlockState()
			return nil, goerr.Wrap(err, "turn aborted during generation", goerr.V("session_id", session.ID))
		}
		logging.From(ctx).Warn("generation failed, responding with silence", "error", err)
		return e.degradedResult(session), nil
	}

	// Cancellation check before the commit point: a session ended while
	// generation was in flight must not commit this turn.
	if handle.Context().Err() != nil {
		handle.LockState()
		session.Transcript = session.Transcript[:mark]
		handle.UnlockState()
		return nil, goerr.Wrap(model.ErrSessionClosed, "turn aborted before commit", goerr.V("session_id", session.ID))
	}

	respText := adapter.ResponseText(resp)

	known := map[string]bool{}
	for _, name := range session.InterestNames() {
		known[name] = true
	}
	cleanText := interest.Strip(respText)
	assistantAt := e.now()

	handle.LockState()
	session.Stage = candidate

	var added []model.InterestRecord
	for _, name := range interest.Extract(respText, known) {
		rec := model.NewInterestRecord(name, respText, e.now())
		if session.AddInterest(rec) {
			added = append(added, rec)
		}
	}
	latchThreadFlag(session)

	session.Analysis.Merge(e.matcher.Match(session.UserUtterances()))

	session.AppendTranscript(model.SpeakerAssistant, cleanText, assistantAt)
	handle.UnlockState()

	// Both entries are mirrored only now, so an aborted turn never leaves
	// the external sink ahead of the in-memory transcript.
	e.notifyTranscript(handle, model.TranscriptEntry{
		Speaker:   model.SpeakerUser,
		Text:      userText,
		Timestamp: now,
	})
	e.notifyTranscript(handle, model.TranscriptEntry{
		Speaker:   model.SpeakerAssistant,
		Text:      cleanText,
		Timestamp: assistantAt,
	})

	logging.From(ctx).Debug("turn completed",
		"session_id", session.ID,
		"stage", session.Stage,
		"new_interests", len(added),
		"turns", session.Turns(),
	)

	return &TurnResult{
		UserText:      userText,
		AssistantText: cleanText,
		NewInterests:  added,
		Stage:         session.Stage,
	}, nil
}

// conversationContents maps the transcript to generation contents: user
// entries as user turns, assistant entries as model turns, closed by the
// nudge so the model keeps emitting interest markers.
func conversationContents(transcript []model.TranscriptEntry) []*genai.Content {
	contents := make([]*genai.Content, 0, len(transcript)+1)
	for _, entry := range transcript {
		role := genai.Role(genai.RoleUser)
		if entry.Speaker == model.SpeakerAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Text, role))
	}
	return append(contents, genai.NewContentFromText(responseNudge, genai.RoleUser))
}

// degradedResult is the fixed response for a failed capability: one second of
// silence, no state change beyond what was already committed.
func (e *Engine) degradedResult(session *model.Session) *TurnResult {
	return &TurnResult{
		Audio:    model.Silence(model.DefaultSampleRate, silenceDuration),
		Stage:    session.Stage,
		Degraded: true,
	}
}

// notifyTranscript forwards a committed entry to the transcript sink without
// blocking the turn. Sink failures are logged and dropped; the in-memory
// transcript stays authoritative.
func (e *Engine) notifyTranscript(handle *repository.Handle, entry model.TranscriptEntry) {
	if e.transcripts == nil {
		return
	}

	sessionCtx := handle.Context()
	sessionID := handle.Session.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(sessionCtx), 10*time.Second)
		defer cancel()
		if err := e.transcripts.SaveEntry(ctx, sessionID, entry); err != nil {
			logging.Default().Warn("failed to persist transcript entry",
				"session_id", sessionID, "error", err)
		}
	}()
}
