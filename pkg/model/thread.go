package model

// Thread hand-off payload, submitted to the thread-creation collaborator when
// a thread-mode session terminates with at least one interest.

const (
	threadTitleLimit = 100
	threadTitleTrunc = 97

	// DefaultThreadTitle is used when the user never spoke.
	DefaultThreadTitle = "New Learning Thread"

	threadStatusActive = "active"
	threadSource       = "interview"
)

// ThreadPayload is the request body for the thread-creation collaborator.
type ThreadPayload struct {
	UserID      string         `json:"userId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Interests   []string       `json:"interests"`
	Concepts    []string       `json:"concepts"`
	Subjects    []string       `json:"subjects"`
	Topics      []string       `json:"topics"`
	Status      string         `json:"status"`
	Metadata    ThreadMetadata `json:"metadata"`
}

// ThreadMetadata identifies the originating session.
type ThreadMetadata struct {
	Source    string    `json:"source"`
	SessionID SessionID `json:"sessionId"`
	Mode      string    `json:"mode,omitempty"`
	Purpose   string    `json:"purpose,omitempty"`
}

// ThreadTitle derives a thread title from the first user utterance: verbatim
// up to 100 characters, otherwise the first 97 characters plus an ellipsis.
func ThreadTitle(firstUtterance string) string {
	if firstUtterance == "" {
		return DefaultThreadTitle
	}
	if len(firstUtterance) > threadTitleLimit {
		return firstUtterance[:threadTitleTrunc] + "..."
	}
	return firstUtterance
}

// NewThreadPayload composes the hand-off payload for a session. The analysis
// sets are deduplicated here; the session accumulates raw per-turn matches.
func NewThreadPayload(s *Session) *ThreadPayload {
	first := s.FirstUserUtterance()
	description := first
	if description == "" {
		description = "Learning exploration"
	}

	return &ThreadPayload{
		UserID:      s.UserID,
		Title:       ThreadTitle(first),
		Description: description,
		Interests:   s.InterestNames(),
		Concepts:    dedup(s.Analysis.Concepts),
		Subjects:    dedup(s.Analysis.Subjects),
		Topics:      dedup(s.Analysis.Topics),
		Status:      threadStatusActive,
		Metadata: ThreadMetadata{
			Source:    threadSource,
			SessionID: s.ID,
			Mode:      s.Metadata[MetaMode],
			Purpose:   s.Metadata[MetaPurpose],
		},
	}
}

func dedup(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
