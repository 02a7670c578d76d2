package interview

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spool-learn/interview/pkg/model"
	"github.com/spool-learn/interview/pkg/utils/logging"
)

// handOffTimeout bounds each downstream call made during session end.
const handOffTimeout = 15 * time.Second

// handOff runs the downstream work for an ended session: thread creation
// when the session latched the flag, an analytics summary, and a transcript
// archive. Every step is best-effort; outcomes land in the session metadata
// and the logs, never in the caller's error.
func (e *Engine) handOff(ctx context.Context, session *model.Session) {
	logger := logging.From(ctx)

	if session.ShouldCreateThread {
		e.createThread(ctx, session)
	}

	if e.analytics != nil {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handOffTimeout)
		summary := model.NewInterviewSummary(session, *session.EndedAt)
		if err := e.analytics.SubmitSummary(callCtx, summary); err != nil {
			logger.Warn("failed to submit interview summary",
				"session_id", session.ID, "error", err)
		}
		cancel()
	}

	if e.archive != nil {
		if err := e.archiveTranscript(ctx, session); err != nil {
			logger.Warn("failed to archive transcript",
				"session_id", session.ID, "error", err)
		}
	}
}

// createThread submits the hand-off payload and records the outcome in the
// session metadata: thread_id on success, thread_creation_error otherwise.
func (e *Engine) createThread(ctx context.Context, session *model.Session) {
	logger := logging.From(ctx)

	if e.threads == nil {
		session.Metadata[model.MetaThreadCreationError] = "thread creation is not configured"
		logger.Warn("thread requested but no thread creator configured",
			"session_id", session.ID)
		return
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handOffTimeout)
	defer cancel()

	payload := model.NewThreadPayload(session)
	threadID, err := e.threads.CreateThread(callCtx, payload, session.Metadata[model.MetaAuthToken])
	if err != nil {
		session.Metadata[model.MetaThreadCreationError] = err.Error()
		logger.Warn("thread creation failed",
			"session_id", session.ID, "error", err)
		return
	}

	session.Metadata[model.MetaThreadID] = threadID
	session.Metadata[model.MetaThreadCreated] = "true"
	logger.Info("learning thread created",
		"session_id", session.ID, "thread_id", threadID)
}

// archivedSession is the archived representation of a completed interview.
type archivedSession struct {
	SessionID  model.SessionID         `json:"session_id"`
	UserID     string                  `json:"user_id"`
	StartedAt  time.Time               `json:"started_at"`
	EndedAt    *time.Time              `json:"ended_at"`
	Stage      model.Stage             `json:"stage"`
	Transcript []model.TranscriptEntry `json:"transcript"`
	Interests  []model.InterestRecord  `json:"interests"`
	Metadata   map[string]string       `json:"metadata"`
}

// archiveKey is the object path of a session's archived record.
func archiveKey(id model.SessionID) string {
	return "interviews/" + string(id) + ".json"
}

func (e *Engine) archiveTranscript(ctx context.Context, session *model.Session) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handOffTimeout)
	defer cancel()

	w, err := e.archive.Put(callCtx, archiveKey(session.ID))
	if err != nil {
		return err
	}

	// The auth token never leaves process memory.
	meta := make(map[string]string, len(session.Metadata))
	for k, v := range session.Metadata {
		if k == model.MetaAuthToken {
			continue
		}
		meta[k] = v
	}

	record := archivedSession{
		SessionID:  session.ID,
		UserID:     session.UserID,
		StartedAt:  session.StartedAt,
		EndedAt:    session.EndedAt,
		Stage:      session.Stage,
		Transcript: session.Transcript,
		Interests:  session.Interests,
		Metadata:   meta,
	}
	if err := json.NewEncoder(w).Encode(record); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
