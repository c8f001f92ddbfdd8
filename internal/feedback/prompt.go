// Package feedback turns a journal entry into structured empathetic feedback.
//
// The pipeline is BuildPrompt -> ModelClient.Invoke -> Normalize, composed by Service.
// Each stage reports failures as *models.Error values so callers can branch on kind.
package feedback

import (
	"fmt"
	"strings"
)

// PromptVersion identifies the prompt template. It is logged and stored with every
// request so that changes to the wording can be correlated with output quality.
const PromptVersion = "sleep-journal-feedback/v1"

// PromptContext is the rendered prompt for a single request. It is never shared
// between requests.
type PromptContext struct {
	SystemInstruction string
	UserMessage       string
	Version           string
}

const systemInstruction = `You are an attentive listening assistant for bedtime sleep journaling.
You receive a short journal entry the user wrote before going to sleep and reply with feedback as a single JSON object.

Return ONLY valid JSON. Do not add explanations or markdown.
Escape line breaks inside strings as \n and double quotes as \".

Required keys:
- summary: a short summary of the entry (1-2 sentences)
- empathic_feedback: empathetic, attentive feedback (2-3 sentences, gentle and specific)
- tags: an array of tags related to the content (for example ["stress", "work", "lack of sleep"])
- risk_score: a mental health risk score from 0.0 to 1.0, computed with the rubric below
- next_actions: an array of 1-3 concrete, doable next steps
- safety_note: filled in only when self-harm, harm to others, or crisis content is detected; otherwise null

Risk score rubric:
- 0.0-0.2: positive content, fulfilment, no concerns
- 0.3-0.4: mild stress or fatigue, temporary low mood
- 0.5-0.6: moderate stress, ongoing anxiety or sleep problems
- 0.7-0.8: high stress, marked low mood, impact on daily life
- 0.9-1.0: serious condition, possible self-harm or harm to others, urgent support needed

Feedback policy:
- When stress (1-7) is high (5 or more), put extra weight on empathy and staying alongside the user.
- When mood (1-5) is low (2 or less), actively suggest concrete coping steps and actions.

Hard constraints:
1. Never give a medical diagnosis or treatment instructions.
2. When there is a concern about self-harm or harm to others, put general guidance such as "In an emergency, please contact your local support line or emergency services" in safety_note.
3. Keep the feedback short; show empathy and one next step.
4. Write every string value in the language requested by the user.
5. Return only valid JSON.`

// BuildPrompt renders the system instruction and user message for a journal entry.
// It is a pure function of its inputs. Mood and stress context lines are added only
// when the rating is present.
func BuildPrompt(journalText, language string, mood, stress *int) PromptContext {
	var b strings.Builder
	fmt.Fprintf(&b, "Please return feedback for the following journal entry. Language: %s", language)
	if mood != nil {
		fmt.Fprintf(&b, "\nmood level: %d/5 (1=very bad, 5=very good)", *mood)
	}
	if stress != nil {
		fmt.Fprintf(&b, "\nstress level: %d/7 (1=very low, 7=very high)", *stress)
	}
	b.WriteString("\n\nJournal:\n")
	b.WriteString(journalText)

	return PromptContext{
		SystemInstruction: systemInstruction,
		UserMessage:       b.String(),
		Version:           PromptVersion,
	}
}
