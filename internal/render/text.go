package render

import (
	"fmt"
	"strings"
)

// Indent prefixes every non-empty line of text with the given number of
// spaces.
func Indent(text string, spaces int) string {
	prefix := strings.Repeat(" ", spaces)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// TreeEntry formats a module path as an indented bullet line showing the
// path's short name.
func TreeEntry(path, description string, depth int) string {
	indent := strings.Repeat("  ", depth)
	short := path
	if idx := strings.LastIndex(path, "::"); idx >= 0 {
		short = path[idx+2:]
	}
	if description == "" {
		return indent + "- " + short
	}
	return indent + "- " + short + " — " + description
}

// DisplayModulePath strips the crate root prefix from a module path.
func DisplayModulePath(path string) string {
	return strings.TrimPrefix(path, "crate::")
}

// Truncate shortens s to at most max bytes, ending with "..." when cut.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max < 3 {
		max = 3
	}
	return s[:max-3] + "..."
}

// CodeBlock wraps code in a fenced markdown block.
func CodeBlock(code, language string) string {
	return fmt.Sprintf("```%s\n%s\n```", language, code)
}
