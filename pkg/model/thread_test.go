package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/spool-learn/interview/pkg/model"
)

func TestThreadTitle(t *testing.T) {
	gt.Equal(t, model.ThreadTitle(""), model.DefaultThreadTitle)

	short := "I want to learn about black holes"
	gt.Equal(t, model.ThreadTitle(short), short)

	exact := strings.Repeat("a", 100)
	gt.Equal(t, model.ThreadTitle(exact), exact)

	long := strings.Repeat("b", 150)
	title := model.ThreadTitle(long)
	gt.Equal(t, len(title), 100)
	gt.Equal(t, title, strings.Repeat("b", 97)+"...")
}

func TestNewThreadPayload(t *testing.T) {
	now := time.Now()
	s := model.NewSession("user-9", now)
	s.Metadata[model.MetaMode] = "thread"
	s.Metadata[model.MetaPurpose] = "onboarding"

	s.AppendTranscript(model.SpeakerUser, "I love chess and astronomy", now)
	s.AppendTranscript(model.SpeakerAssistant, "Great!", now)
	s.AddInterest(model.NewInterestRecord("Chess", "ctx", now))
	s.AddInterest(model.NewInterestRecord("Astronomy", "ctx", now))

	// Raw per-turn matches accumulate duplicates; the payload dedups them.
	s.Analysis.Merge(model.Analysis{Subjects: []string{"Physics"}, Concepts: []string{"Gravity"}})
	s.Analysis.Merge(model.Analysis{Subjects: []string{"Physics"}, Concepts: []string{"Gravity", "Orbits"}})

	p := model.NewThreadPayload(s)
	gt.Equal(t, p.UserID, "user-9")
	gt.Equal(t, p.Title, "I love chess and astronomy")
	gt.Equal(t, p.Description, "I love chess and astronomy")
	gt.Equal(t, p.Interests, []string{"Chess", "Astronomy"})
	gt.Equal(t, p.Subjects, []string{"Physics"})
	gt.Equal(t, p.Concepts, []string{"Gravity", "Orbits"})
	gt.Equal(t, p.Status, "active")
	gt.Equal(t, p.Metadata.Source, "interview")
	gt.Equal(t, p.Metadata.SessionID, s.ID)
	gt.Equal(t, p.Metadata.Mode, "thread")
	gt.Equal(t, p.Metadata.Purpose, "onboarding")
}

func TestNewThreadPayloadEmptySession(t *testing.T) {
	s := model.NewSession("user-9", time.Now())

	p := model.NewThreadPayload(s)
	gt.Equal(t, p.Title, model.DefaultThreadTitle)
	gt.Equal(t, p.Description, "Learning exploration")
	gt.Equal(t, len(p.Interests), 0)
}
