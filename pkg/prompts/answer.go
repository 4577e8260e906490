package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

// DirectAnswerSystemMessage frames replies that need no database knowledge.
const DirectAnswerSystemMessage = "You are a helpful assistant for a database question-answering tool. Answer clearly and concisely."

// SchemaQuestionSystemMessage frames replies about the schema that need no query.
const SchemaQuestionSystemMessage = "You are a database expert. Answer questions about the schema in plain English without writing SQL."

// BuildDirectAnswerPrompt renders prior turns as Q/A pairs followed by the question.
func BuildDirectAnswerPrompt(prompt string, priorTurns []models.Turn) string {
	var b strings.Builder
	b.WriteString("Answer the user's question. If there is no earlier conversation, treat it as a fresh question.\n\n")
	for _, turn := range priorTurns {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", turn.Prompt, turn.Message)
	}
	fmt.Fprintf(&b, "User's question: %s", prompt)
	return b.String()
}

// BuildSchemaQuestionPrompt asks for a prose answer grounded on the schema text.
func BuildSchemaQuestionPrompt(prompt, schemaText string, priorTurns []models.Turn) string {
	var b strings.Builder
	b.WriteString("A user has asked a question that needs an understanding of the database schema but does not require generating SQL.\n\n")
	b.WriteString("Schema:\n")
	b.WriteString(schemaText)
	b.WriteString("\n\n")
	if len(priorTurns) > 0 {
		b.WriteString("Earlier conversation:\n")
		for _, turn := range priorTurns {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Prompt, turn.Message)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User's question: %q\n\nAnswer clearly and concisely in plain English.", prompt)
	return b.String()
}
