package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/spool-learn/interview/pkg/model"
)

func TestSessionTranscript(t *testing.T) {
	now := time.Now()
	s := model.NewSession("user-1", now)
	gt.Equal(t, s.Stage, model.StageGreeting)
	gt.Equal(t, s.Turns(), 0)
	gt.Equal(t, s.FirstUserUtterance(), "")

	s.AppendTranscript(model.SpeakerUser, "hello", now)
	s.AppendTranscript(model.SpeakerAssistant, "hi there", now)
	s.AppendTranscript(model.SpeakerUser, "I like chess", now)

	gt.Equal(t, s.Turns(), 3)
	gt.Equal(t, s.FirstUserUtterance(), "hello")
	gt.Equal(t, s.UserUtterances(), []string{"hello", "I like chess"})
}

func TestSessionInterests(t *testing.T) {
	now := time.Now()
	s := model.NewSession("user-1", now)

	gt.True(t, s.AddInterest(model.NewInterestRecord("Chess", "some context", now)))
	gt.False(t, s.AddInterest(model.NewInterestRecord("Chess", "other context", now)))
	gt.True(t, s.AddInterest(model.NewInterestRecord("Astronomy", "", now)))

	gt.True(t, s.HasInterest("Chess"))
	gt.False(t, s.HasInterest("Painting"))
	gt.Equal(t, s.InterestNames(), []string{"Chess", "Astronomy"})
}

func TestInterestRecordContextCap(t *testing.T) {
	now := time.Now()
	rec := model.NewInterestRecord("Chess", strings.Repeat("x", 300), now)
	gt.Equal(t, len(rec.Context), 200)
	gt.Equal(t, rec.Confidence, model.DefaultConfidence)
}

func TestSessionDuration(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := model.NewSession("user-1", start)

	gt.Equal(t, s.Duration(start.Add(90*time.Second)), 90*time.Second)

	ended := start.Add(5 * time.Minute)
	s.EndedAt = &ended
	// Once ended, the duration is fixed regardless of the clock.
	gt.Equal(t, s.Duration(start.Add(time.Hour)), 5*time.Minute)
}

func TestSessionMode(t *testing.T) {
	s := model.NewSession("user-1", time.Now())
	gt.Equal(t, s.Mode(), "")

	s.Metadata[model.MetaMode] = model.ModeThread
	gt.Equal(t, s.Mode(), model.ModeThread)
}
