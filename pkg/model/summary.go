package model

import "time"

// InterviewSummary is the best-effort record handed to the downstream
// analytics sink when a session ends.
type InterviewSummary struct {
	SessionID       SessionID `bigquery:"session_id" json:"session_id"`
	UserID          string    `bigquery:"user_id" json:"user_id"`
	Stage           Stage     `bigquery:"stage" json:"stage"`
	Interests       []string  `bigquery:"interests" json:"interests"`
	TranscriptSize  int       `bigquery:"transcript_size" json:"transcript_size"`
	DurationSeconds float64   `bigquery:"duration_seconds" json:"duration_seconds"`
	EndedAt         time.Time `bigquery:"ended_at" json:"ended_at"`
}

// NewInterviewSummary builds the summary for an ended session.
func NewInterviewSummary(s *Session, endedAt time.Time) *InterviewSummary {
	return &InterviewSummary{
		SessionID:       s.ID,
		UserID:          s.UserID,
		Stage:           s.Stage,
		Interests:       s.InterestNames(),
		TranscriptSize:  len(s.Transcript),
		DurationSeconds: s.Duration(endedAt).Seconds(),
		EndedAt:         endedAt,
	}
}
