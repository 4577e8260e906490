package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

// DefaultRowCap is the row limit the model must apply unless the user asks for more.
const DefaultRowCap = 100

// resultSampleRows is how many rows of a prior result are shown to the model.
const resultSampleRows = 2

// GenerationInput carries everything the grounded SQL prompt needs.
type GenerationInput struct {
	Dialect    string // "PostgreSQL", "SQL Server"
	SchemaText string
	Prompt     string
	PriorTurns []models.Turn
}

// GenerationSystemMessage returns the system message for SQL generation.
func GenerationSystemMessage(dialect string) string {
	return fmt.Sprintf("You are a %s expert. You answer questions from users by writing correct, read-only SQL against the schema you are given.", dialect)
}

// RowCapClause returns the dialect's syntax for limiting rows.
func RowCapClause(dialect string) string {
	if dialect == "SQL Server" {
		return fmt.Sprintf("TOP %d", DefaultRowCap)
	}
	return fmt.Sprintf("LIMIT %d", DefaultRowCap)
}

// BuildGenerationPrompt creates the grounded prompt that asks for an
// Explanation section followed by a SQL section.
func BuildGenerationPrompt(in GenerationInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a single %s query that answers the user's request.\n", in.Dialect)
	b.WriteString("The schema lists every table and column you may use, with a description of what each column holds.\n\n")

	b.WriteString("Schema:\n")
	b.WriteString(in.SchemaText)
	b.WriteString("\n\n")

	if len(in.PriorTurns) > 0 {
		b.WriteString("Previous context:\n")
		for i, turn := range in.PriorTurns {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Prompt: %s\nSQL: %s\nResult (sample): %s\n", turn.Prompt, turn.SQL, sampleRows(turn.Result))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User request:\n%q\n\n", in.Prompt)

	b.WriteString("Rules:\n")
	b.WriteString("1. Describe what you understood from the request.\n")
	b.WriteString("2. Explain which tables and columns you used and why, and call out any assumptions.\n")
	b.WriteString("3. Only write SELECT statements. Never modify data or structure.\n")
	b.WriteString("4. Only use tables and columns listed in the schema, qualified as database.table. Do not invent columns.\n")
	b.WriteString("5. If a column lives in another table, join to it.\n")
	fmt.Fprintf(&b, "6. When selecting rows, always apply %s unless the user explicitly asks for more or all rows.\n\n", RowCapClause(in.Dialect))

	b.WriteString("Output format:\n")
	b.WriteString("Explanation:\n<what you understood, the logic you applied, and your assumptions, addressed to the user>\n\n")
	b.WriteString("SQL:\n```sql\n<the query and nothing else>\n```")
	return b.String()
}

// BuildRepairPrompt asks for a corrected query after a failed plan check.
func BuildRepairPrompt(dialect, prompt, invalidSQL, plannerError string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following %s query, generated for a user's request, failed validation with this error:\n%s\n\n", dialect, plannerError)
	fmt.Fprintf(&b, "Request: %s\n\n", prompt)
	fmt.Fprintf(&b, "Invalid SQL:\n```sql\n%s\n```\n\n", invalidSQL)
	b.WriteString("Correct it. Keep it a single read-only SELECT using only the tables and columns from the original schema.\n")
	b.WriteString("Reply with the corrected query in a ```sql fenced block.")
	return b.String()
}

func sampleRows(rows []map[string]any) string {
	if len(rows) > resultSampleRows {
		rows = rows[:resultSampleRows]
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	out, err := json.Marshal(rows)
	if err != nil {
		return "[]"
	}
	return string(out)
}
