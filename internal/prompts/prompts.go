package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Slide Explanation Prompts
// ============================================================================

// SlideExplanationSystemPrompt sets the role for the explanation provider.
const SlideExplanationSystemPrompt = `You are a patient teaching assistant. You explain lecture slides to students who missed the lecture.`

// slideExplanationTemplate wraps the extracted slide text. %s is the slide text.
const slideExplanationTemplate = `Here is text extracted from a slide of a lecture presentation.
Explain (and elaborate when needed) the content of the slide in a concise and coherent manner,
so that even a student who was not in the lecture will be able to understand the topic being discussed.

The text of the slide:
%s

Explanation of the topic following the text in the slide (6 - 7 sentences):`

// SlideExplanation builds the user prompt for one slide.
func SlideExplanation(slideText string) string {
	return fmt.Sprintf(slideExplanationTemplate, strings.TrimSpace(slideText))
}

// ============================================================================
// Diagnostics
// ============================================================================

// PartErrorPrefix starts the text that replaces an explanation when a part fails.
const PartErrorPrefix = "An error occurred during processing this part: "

// PartError renders the diagnostic substituted for a failed part.
func PartError(err error) string {
	return PartErrorPrefix + err.Error()
}
