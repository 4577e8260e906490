package prompts

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
)

// MissingExplanation is used when a reply has no Explanation section.
const MissingExplanation = "Explanation not found."

var (
	explanationMarker = regexp.MustCompile(`(?i)explanation\s*:\**`)
	// sqlMarker matches "SQL:" at the start of a line, optionally bolded or as a heading.
	sqlMarker   = regexp.MustCompile(`(?im)^[ \t#*]*sql\s*:\**`)
	fencedBlock = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\\n?(.*?)```")
	sqlFence    = regexp.MustCompile("(?is)```sql[ \t]*\\n?(.*?)```")
)

// GenerationReply is the parsed model output.
type GenerationReply struct {
	Explanation string
	SQL         string
}

// ParseGenerationReply splits a reply into its Explanation and SQL sections.
// The explanation runs from "Explanation:" to the SQL marker. The SQL is the
// first fenced block after the marker, or the remaining text when unfenced.
// A reply without a non-empty SQL section returns apperrors.ErrUnparsableModelReply
// along with whatever explanation was found.
func ParseGenerationReply(content string) (GenerationReply, error) {
	reply := GenerationReply{Explanation: MissingExplanation}

	sqlLoc := sqlMarker.FindStringIndex(content)

	if expLoc := explanationMarker.FindStringIndex(content); expLoc != nil {
		end := len(content)
		if sqlLoc != nil && sqlLoc[0] > expLoc[1] {
			end = sqlLoc[0]
		}
		if text := strings.TrimSpace(content[expLoc[1]:end]); text != "" {
			reply.Explanation = text
		}
	}

	if sqlLoc == nil {
		return reply, apperrors.ErrUnparsableModelReply
	}

	reply.SQL = sectionSQL(content[sqlLoc[1]:])
	if reply.SQL == "" {
		return reply, apperrors.ErrUnparsableModelReply
	}
	return reply, nil
}

// ParseRepairReply extracts the corrected query. A ```sql block anywhere wins,
// then a SQL: section, then any fenced block.
func ParseRepairReply(content string) (string, error) {
	if m := sqlFence.FindStringSubmatch(content); m != nil {
		if sql := strings.TrimSpace(m[1]); sql != "" {
			return sql, nil
		}
	}
	if loc := sqlMarker.FindStringIndex(content); loc != nil {
		if sql := sectionSQL(content[loc[1]:]); sql != "" {
			return sql, nil
		}
	}
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		if sql := strings.TrimSpace(m[1]); sql != "" {
			return sql, nil
		}
	}
	return "", apperrors.ErrUnparsableModelReply
}

// sectionSQL reads the query that follows a SQL marker.
func sectionSQL(section string) string {
	trimmed := strings.TrimSpace(section)
	if strings.HasPrefix(trimmed, "```") {
		if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
			return strings.TrimSpace(m[1])
		}
		// Unterminated fence: drop the opening line.
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(trimmed[nl+1:]), "```"))
		}
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
}
