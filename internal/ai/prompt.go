package ai

import (
	"strings"
)

// systemPrompt anchors every generation to the retrieved context.
const systemPrompt = "You are a helpful AI assistant that answers questions " +
	"based on the provided context from documents. " +
	"Always base your answers on the provided context. " +
	"If the context doesn't contain enough information to answer " +
	"the question, say so clearly."

// historyWindow is how many recent turns the prompt includes.
const historyWindow = 5

// buildPrompt renders the user-side prompt: retrieved context, up to the
// last five conversation turns, and the current question.
func buildPrompt(req Request) string {
	var history strings.Builder
	turns := req.History
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	for i, turn := range turns {
		if i > 0 {
			history.WriteString("\n")
		}
		history.WriteString("Human: " + turn.Question + "\nAssistant: " + turn.Answer)
	}

	var b strings.Builder
	b.WriteString("Context from documents:\n")
	b.WriteString(req.Context)
	b.WriteString("\n\n")
	if len(req.History) > 0 {
		b.WriteString("Previous conversation:")
	}
	b.WriteString("\n")
	b.WriteString(history.String())
	b.WriteString("\n\nCurrent question: ")
	b.WriteString(req.Question)
	b.WriteString("\n\nPlease provide a helpful answer based on the context above. \nIf the context doesn't contain relevant information, say so.")
	return b.String()
}
