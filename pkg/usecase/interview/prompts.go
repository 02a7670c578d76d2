package interview

import (
	"fmt"
	"strings"

	"github.com/spool-learn/interview/pkg/model"
)

// Greeting is the fixed line shown to callers when a session starts.
const Greeting = "Hi! I'm here to learn about your interests and hobbies. Let's have a conversation about what you enjoy doing!"

const systemPrompt = `You are a friendly interview assistant helping to learn about a student's interests and hobbies.
Your goal is to have a natural conversation and discover:
1. What interests and hobbies they have
2. What they enjoy most about each interest
3. How these interests might relate to their learning goals

Be conversational, ask follow-up questions, and show genuine interest in their responses.
When you identify a clear interest or hobby, mark it with [INTEREST: name] in your response.
Keep responses concise and natural for voice conversation.

Interview stages:
- greeting: Welcome the student and ask about their interests
- exploration: Explore different interests they mention
- deep_dive: Go deeper into 1-2 main interests
- wrap_up: Summarize what you've learned and thank them`

// responseNudge closes every generation request, so the model keeps tagging
// interests even deep into the conversation.
const responseNudge = "Generate your next response. Remember to mark any new interests with [INTEREST: name]."

// stageInstruction selects the per-stage instruction, parameterized by the
// known interest names: none in greeting, all of them in exploration and
// wrap_up, at most the first two in deep_dive.
func stageInstruction(stage model.Stage, interests []string) string {
	switch stage {
	case model.StageExploration:
		return fmt.Sprintf(
			"Explore the student's interests. They've mentioned: %s. Ask about other interests or get more details.",
			joinInterests(interests))
	case model.StageDeepDive:
		main := interests
		if len(main) > 2 {
			main = main[:2]
		}
		return fmt.Sprintf(
			"Go deeper into their main interests: %s. Ask specific questions about what they enjoy most.",
			joinInterests(main))
	case model.StageWrapUp, model.StageTerminated:
		return fmt.Sprintf(
			"Summarize what you've learned about their interests: %s. Thank them for sharing.",
			joinInterests(interests))
	default:
		return "Start by warmly greeting the student and asking about their interests or hobbies."
	}
}

func joinInterests(names []string) string {
	if len(names) == 0 {
		return "(none yet)"
	}
	return strings.Join(names, ", ")
}

// systemInstruction builds the full system prompt for one generation.
func systemInstruction(stage model.Stage, interests []string) string {
	return systemPrompt + "\n\nCurrent stage: " + string(stage) + "\n" + stageInstruction(stage, interests)
}
