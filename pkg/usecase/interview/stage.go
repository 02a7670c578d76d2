package interview

import "github.com/spool-learn/interview/pkg/model"

// Stage transition thresholds, on turns = user+assistant transcript entries
// and interests = distinct interest records.
const (
	greetingTurnLimit    = 2
	explorationTurnLimit = 6
	explorationInterests = 2
	deepDiveTurnLimit    = 12
	wrapUpTurnLimit      = 15
)

// nextStage evaluates the transition table for the current counts. It
// returns the stage the session should be in; combined with
// Stage.Advance the progression is monotonic.
func nextStage(current model.Stage, turns, interests int) model.Stage {
	switch current {
	case model.StageGreeting:
		if turns > greetingTurnLimit {
			return model.StageExploration
		}
	case model.StageExploration:
		if interests >= explorationInterests && turns > explorationTurnLimit {
			return model.StageDeepDive
		}
	case model.StageDeepDive:
		if turns > deepDiveTurnLimit {
			return model.StageWrapUp
		}
	case model.StageWrapUp:
		if turns > wrapUpTurnLimit {
			return model.StageTerminated
		}
	}
	return current
}

// computeStage evaluates where the session should be without mutating it.
// The pipeline composes the response against this stage and commits it only
// once the turn succeeds, so a failed turn never moves the stage.
func computeStage(s *model.Session) model.Stage {
	return s.Stage.Advance(nextStage(s.Stage, s.Turns(), len(s.Interests)))
}

// latchThreadFlag sets the thread flag once mode is "thread" and at least
// one interest exists. The flag is never cleared.
func latchThreadFlag(s *model.Session) {
	if s.Mode() == model.ModeThread && len(s.Interests) >= 1 {
		s.ShouldCreateThread = true
	}
}
