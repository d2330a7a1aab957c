package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotSelect is returned when a generated query does not begin with SELECT.
var ErrNotSelect = errors.New("model reply is not a SELECT query")

// selectKeyword matches SELECT as a whole leading token, so prose such as
// "Selection of receipts..." is not mistaken for a query.
var selectKeyword = regexp.MustCompile(`(?i)^select(\s|\*|\(|$)`)

// cleanMarkdownWrapper removes a surrounding code fence, with or without a
// language tag, from a model reply.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		// Drop the language tag on the opening fence line.
		if tag := strings.TrimSpace(content[:nl]); !strings.ContainsAny(tag, " \t") {
			content = content[nl+1:]
		}
	}
	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, "```")

	return strings.TrimSpace(content)
}

// extractSelect cleans a model reply and accepts it only when it is a
// single SELECT statement. A trailing semicolon is dropped.
func extractSelect(reply string) (string, error) {
	query := cleanMarkdownWrapper(reply)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))

	if !selectKeyword.MatchString(query) {
		return "", fmt.Errorf("%w: %q", ErrNotSelect, truncate(query, 80))
	}
	return query, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
