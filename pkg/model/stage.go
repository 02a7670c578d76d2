package model

import "github.com/m-mizutani/goerr/v2"

var ErrInvalidStage = goerr.New("invalid stage")

// Stage is a named phase of the interview. Stages form a total order and a
// session's stage never moves backward.
type Stage string

const (
	StageGreeting    Stage = "greeting"
	StageExploration Stage = "exploration"
	StageDeepDive    Stage = "deep_dive"
	StageWrapUp      Stage = "wrap_up"
	StageTerminated  Stage = "terminated"
)

var stageOrder = map[Stage]int{
	StageGreeting:    0,
	StageExploration: 1,
	StageDeepDive:    2,
	StageWrapUp:      3,
	StageTerminated:  4,
}

// Validate checks if the stage is a known value
func (s Stage) Validate() error {
	if _, ok := stageOrder[s]; !ok {
		return goerr.Wrap(ErrInvalidStage, "unknown stage", goerr.V("stage", s))
	}
	return nil
}

// Index returns the position of the stage in conversation order.
// Unknown stages sort before greeting.
func (s Stage) Index() int {
	if idx, ok := stageOrder[s]; ok {
		return idx
	}
	return -1
}

// Before reports whether s comes strictly earlier than other.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// Advance returns other if it is a forward move from s, otherwise s.
// This is what keeps stage progression monotonic.
func (s Stage) Advance(other Stage) Stage {
	if s.Before(other) {
		return other
	}
	return s
}
