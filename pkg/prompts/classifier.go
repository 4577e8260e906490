package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

//go:embed classifier_examples.yaml
var classifierYAML []byte

// ClassifierExample is one few-shot example shown to the classifier.
type ClassifierExample struct {
	Prompt         string `yaml:"prompt"`
	Intent         string `yaml:"intent"`
	RequiresSchema bool   `yaml:"requires_schema"`
	NeedsSQL       bool   `yaml:"needs_sql"`
}

type classifierFile struct {
	Instructions string              `yaml:"instructions"`
	Examples     []ClassifierExample `yaml:"examples"`
}

var loadClassifierFile = sync.OnceValues(func() (classifierFile, error) {
	var file classifierFile
	if err := yaml.Unmarshal(classifierYAML, &file); err != nil {
		return file, fmt.Errorf("parse classifier examples: %w", err)
	}
	return file, nil
})

// ClassifierExamples returns the embedded few-shot examples.
func ClassifierExamples() ([]ClassifierExample, error) {
	file, err := loadClassifierFile()
	if err != nil {
		return nil, err
	}
	return file.Examples, nil
}

// BuildClassifierSystemPrompt renders the instruction block followed by the
// few-shot examples, each with the exact JSON the model should return.
func BuildClassifierSystemPrompt() (string, error) {
	file, err := loadClassifierFile()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(file.Instructions))
	b.WriteString("\n\nExamples:\n")
	for _, ex := range file.Examples {
		out, err := json.Marshal(struct {
			Intent         string `json:"intent"`
			RequiresSchema bool   `json:"requires_schema"`
			NeedsSQL       bool   `json:"needs_sql"`
		}{ex.Intent, ex.RequiresSchema, ex.NeedsSQL})
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\nPrompt: %q\nOutput: %s\n", ex.Prompt, out)
	}
	return b.String(), nil
}

// BuildClassifierUserPrompt lays out the schema, condensed prior prompts, and
// the prompt being classified.
func BuildClassifierUserPrompt(prompt string, priorTurns []models.Turn, schemaText string) string {
	var b strings.Builder

	b.WriteString("Schema:\n")
	if strings.TrimSpace(schemaText) == "" {
		b.WriteString("No schema available")
	} else {
		b.WriteString(schemaText)
	}

	b.WriteString("\n\nContext:\n")
	if len(priorTurns) == 0 {
		b.WriteString("No context")
	}
	for i, turn := range priorTurns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Context %d: %s", i+1, turn.Prompt)
	}

	b.WriteString("\n\nUser prompt:\n")
	b.WriteString(prompt)
	return b.String()
}
