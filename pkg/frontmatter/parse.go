package frontmatter

import (
	"regexp"
	"strconv"
	"strings"
)

// Parse splits a document into its properties and body. ok is false when the
// document does not open with a delimiter line or the block is never closed;
// in that case props is empty and body is the whole document.
func Parse(src []byte) (props Properties, body string, ok bool) {
	text := string(src)
	lines := strings.SplitAfter(text, "\n")

	if len(lines) == 0 || !isDelimiter(lines[0]) {
		return Properties{}, text, false
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if isDelimiter(lines[i]) {
			end = i
			break
		}
	}
	if end < 0 {
		return Properties{}, text, false
	}

	block := make([]string, 0, end-1)
	for _, l := range lines[1:end] {
		block = append(block, strings.TrimRight(l, "\r\n"))
	}

	return parseBlock(block), strings.Join(lines[end+1:], ""), true
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r\n") == Delimiter
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

func parseBlock(lines []string) Properties {
	out := make(Properties)

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") || isIndented(line) {
			continue
		}

		key, rest, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		raw := strings.TrimSpace(rest)

		switch {
		case raw == "|" || raw == "|-" || raw == "|+":
			text, consumed := readLiteral(lines[i+1:])
			out[key] = String(text)
			i += consumed
		case raw == "":
			items, consumed := readBlockList(lines[i+1:])
			if consumed > 0 {
				out[key] = List(items)
				i += consumed
			} else {
				out[key] = String("")
			}
		case strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"):
			out[key] = List(splitFlowList(raw[1 : len(raw)-1]))
		default:
			out[key] = parseScalar(raw)
		}
	}

	return out
}

// readLiteral consumes the indented continuation lines of a "key: |" block.
func readLiteral(lines []string) (string, int) {
	var parts []string
	consumed := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" && !isIndented(l) {
			break
		}
		consumed++
		switch {
		case strings.HasPrefix(l, "  "):
			parts = append(parts, l[2:])
		case strings.HasPrefix(l, "\t"):
			parts = append(parts, l[1:])
		default:
			parts = append(parts, strings.TrimLeft(l, " "))
		}
	}
	// Only empty trailing lines go; a line of spaces is content.
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "\n"), consumed
}

// readBlockList consumes "- item" lines following an empty "key:" line.
func readBlockList(lines []string) ([]string, int) {
	var items []string
	consumed := 0
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			break
		}
		if t != "-" && !strings.HasPrefix(t, "- ") {
			break
		}
		consumed++
		item := strings.TrimSpace(strings.TrimPrefix(t, "-"))
		items = append(items, unquote(item))
	}
	return items, consumed
}

func splitFlowList(inner string) []string {
	items := []string{}
	var cur strings.Builder
	var quote rune

	flush := func() {
		item := strings.TrimSpace(cur.String())
		cur.Reset()
		if item == "" {
			return
		}
		items = append(items, unquote(item))
	}

	for _, r := range inner {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case r == ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	return items
}

var intPattern = regexp.MustCompile(`^-?\d+$`)

func parseScalar(raw string) Value {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return String(unquote(raw))
	}

	// Inline comments only apply to unquoted scalars.
	if idx := strings.Index(raw, " #"); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}

	switch raw {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}

	if intPattern.MatchString(raw) {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(i)
		}
	}
	if floatPattern.MatchString(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return Float(f)
		}
	}

	return String(raw)
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	case s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
