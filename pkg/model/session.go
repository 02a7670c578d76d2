package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrSessionNotFound = goerr.New("session not found")
	ErrSessionClosed   = goerr.New("session already ended")
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is a single utterance in a session transcript.
// Entries are immutable once appended.
type TranscriptEntry struct {
	Speaker   Speaker   `json:"speaker" firestore:"speaker"`
	Text      string    `json:"text" firestore:"text"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// InterestRecord is a detected interest, unique by name within a session.
type InterestRecord struct {
	Name       string    `json:"name"`
	DetectedAt time.Time `json:"detected_at"`
	Context    string    `json:"context,omitempty"`
	Confidence float64   `json:"confidence"`
}

// interestContextLimit bounds the context snippet stored with a record.
const interestContextLimit = 200

// DefaultConfidence is used for all detections. No capability supplies
// partial confidence today; the field exists so one can later.
const DefaultConfidence = 1.0

// NewInterestRecord builds a record from the response text the interest was
// detected in, keeping at most the first 200 characters as context.
func NewInterestRecord(name, context string, at time.Time) InterestRecord {
	if len(context) > interestContextLimit {
		context = context[:interestContextLimit]
	}
	return InterestRecord{
		Name:       name,
		DetectedAt: at,
		Context:    context,
		Confidence: DefaultConfidence,
	}
}

// Metadata keys recorded on a session.
const (
	MetaMode                = "mode"
	MetaPurpose             = "purpose"
	MetaAuthToken           = "auth_token"
	MetaThreadID            = "thread_id"
	MetaThreadCreated       = "thread_created"
	MetaThreadCreationError = "thread_creation_error"
)

// ModeThread marks a session whose results should become a learning thread.
const ModeThread = "thread"

// Analysis accumulates taxonomy matches across turns. Duplicates are kept
// here; deduplication happens when the hand-off payload is composed.
type Analysis struct {
	Subjects []string `json:"subjects"`
	Topics   []string `json:"topics"`
	Concepts []string `json:"concepts"`
}

// Merge appends another analysis result.
func (a *Analysis) Merge(other Analysis) {
	a.Subjects = append(a.Subjects, other.Subjects...)
	a.Topics = append(a.Topics, other.Topics...)
	a.Concepts = append(a.Concepts, other.Concepts...)
}

// Session is one interview conversation. It is owned by the session registry
// for its lifetime and mutated only by the interview engine while holding the
// session's turn lock.
type Session struct {
	ID        SessionID
	UserID    string
	StartedAt time.Time
	EndedAt   *time.Time

	Transcript []TranscriptEntry
	Interests  []InterestRecord
	Stage      Stage
	Analysis   Analysis
	Metadata   map[string]string

	ShouldCreateThread bool
}

// NewSession creates a session in the greeting stage.
func NewSession(userID string, now time.Time) *Session {
	return &Session{
		ID:        NewSessionID(),
		UserID:    userID,
		StartedAt: now,
		Stage:     StageGreeting,
		Metadata:  map[string]string{},
	}
}

// AppendTranscript adds an entry to the transcript.
func (s *Session) AppendTranscript(speaker Speaker, text string, at time.Time) {
	s.Transcript = append(s.Transcript, TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: at,
	})
}

// Turns returns the number of user and assistant transcript entries.
func (s *Session) Turns() int {
	return len(s.Transcript)
}

// HasInterest reports whether an interest with the given name is recorded.
func (s *Session) HasInterest(name string) bool {
	for _, i := range s.Interests {
		if i.Name == name {
			return true
		}
	}
	return false
}

// AddInterest records an interest unless one with the same name exists.
// It reports whether the record was added.
func (s *Session) AddInterest(rec InterestRecord) bool {
	if s.HasInterest(rec.Name) {
		return false
	}
	s.Interests = append(s.Interests, rec)
	return true
}

// InterestNames returns interest names in detection order.
func (s *Session) InterestNames() []string {
	names := make([]string, 0, len(s.Interests))
	for _, i := range s.Interests {
		names = append(names, i.Name)
	}
	return names
}

// FirstUserUtterance returns the first user transcript entry, or "" if the
// user has not spoken yet.
func (s *Session) FirstUserUtterance() string {
	for _, e := range s.Transcript {
		if e.Speaker == SpeakerUser {
			return e.Text
		}
	}
	return ""
}

// UserUtterances returns all user transcript texts in order.
func (s *Session) UserUtterances() []string {
	var texts []string
	for _, e := range s.Transcript {
		if e.Speaker == SpeakerUser {
			texts = append(texts, e.Text)
		}
	}
	return texts
}

// Duration returns elapsed time since the session started, or the final
// duration once the session has ended.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Mode returns the declared interview mode ("" when undeclared).
func (s *Session) Mode() string {
	return s.Metadata[MetaMode]
}
