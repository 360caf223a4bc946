package dispatch

import "fmt"

// DefaultDecisionTemplate opens the decision prompt when configuration
// supplies none.
const DefaultDecisionTemplate = "You route user requests to tools. " +
	"Pick the one tool from the tool list that best answers the user prompt and reply with only a JSON object " +
	"following the return template, using the server and tool names exactly as listed. " +
	"If no tool fits, answer the user prompt directly in plain language."

// DefaultSynthesisInstruction is the system instruction for the final answer.
const DefaultSynthesisInstruction = "Answer in less than 300 words. Address as much as possible the best answer for the user in the given context"

// DecisionPrompt assembles the routing request.
func DecisionPrompt(template, query, catalog string) string {
	return fmt.Sprintf("%s User prompt: %s; tool list: %s; return JSON format template: %s",
		template, query, catalog, EnvelopeTemplate)
}

// RepairPrompt asks the engine to coerce near-miss JSON into the envelope
// shape while leaving prose untouched.
func RepairPrompt(raw string) string {
	return fmt.Sprintf("Analyse the following text: %s. "+
		"If the text is similar to a JSON format but incomplete or with errors, fix the syntax according to the template: %s. "+
		"Do not add extra fields or information. "+
		"If the format is correct, do not modify it and return it just as given. "+
		"If the text is not similar to a JSON format, rather a natural response, just return the same text.",
		raw, EnvelopeTemplate)
}

// SynthesisPrompt combines the query with the tool output or failure note.
func SynthesisPrompt(query, info string) string {
	return fmt.Sprintf("%s. Answer the query. Here is some context information: %s", query, info)
}

// DecisionLog is the result line naming the attempted envelope.
func DecisionLog(env Envelope) string {
	return fmt.Sprintf("[Try calling tool %s]", env)
}

// FailureNote is the result line for a tool that could not be used.
func FailureNote(err error) string {
	return fmt.Sprintf("Failed to use tool: %v", err)
}
