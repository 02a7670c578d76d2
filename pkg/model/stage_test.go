package model_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/spool-learn/interview/pkg/model"
)

func TestStageOrder(t *testing.T) {
	order := []model.Stage{
		model.StageGreeting,
		model.StageExploration,
		model.StageDeepDive,
		model.StageWrapUp,
		model.StageTerminated,
	}

	for i, s := range order {
		gt.NoError(t, s.Validate())
		gt.Equal(t, s.Index(), i)
		for _, later := range order[i+1:] {
			gt.True(t, s.Before(later))
			gt.False(t, later.Before(s))
		}
	}
}

func TestStageAdvanceIsMonotonic(t *testing.T) {
	gt.Equal(t, model.StageGreeting.Advance(model.StageExploration), model.StageExploration)
	gt.Equal(t, model.StageDeepDive.Advance(model.StageGreeting), model.StageDeepDive)
	gt.Equal(t, model.StageWrapUp.Advance(model.StageWrapUp), model.StageWrapUp)
	gt.Equal(t, model.StageTerminated.Advance(model.StageGreeting), model.StageTerminated)
}

func TestStageValidateUnknown(t *testing.T) {
	err := model.Stage("limbo").Validate()
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidStage))
}
