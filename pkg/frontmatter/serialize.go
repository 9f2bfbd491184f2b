package frontmatter

import (
	"regexp"
	"strconv"
	"strings"
)

// Serialize renders props as a delimited frontmatter block ending in a newline.
//
// Arrays are written one "- item" per line, multi-line strings as a "key: |"
// literal with two-space indentation and trailing newlines stripped. Other
// strings are double-quoted, except "true" and "false" which are written as
// bare booleans.
func Serialize(props Properties) string {
	var b strings.Builder
	b.WriteString(Delimiter)
	b.WriteString("\n")

	for _, key := range props.Keys() {
		writeValue(&b, key, props[key])
	}

	b.WriteString(Delimiter)
	b.WriteString("\n")
	return b.String()
}

// Compose joins a serialized block and a body into a full document.
func Compose(props Properties, body string) []byte {
	return []byte(Serialize(props) + body)
}

func writeValue(b *strings.Builder, key string, v Value) {
	b.WriteString(key)
	b.WriteString(":")

	switch v.Kind {
	case KindList:
		if len(v.List) == 0 {
			b.WriteString(" []\n")
			return
		}
		b.WriteString("\n")
		for _, item := range v.List {
			b.WriteString("  - ")
			b.WriteString(listItem(item))
			b.WriteString("\n")
		}
	case KindString:
		s := strings.TrimRight(v.Str, "\r\n")
		if strings.Contains(s, "\n") {
			b.WriteString(" |\n")
			for _, line := range strings.Split(s, "\n") {
				if line != "" {
					b.WriteString("  ")
					b.WriteString(line)
				}
				b.WriteString("\n")
			}
			return
		}
		b.WriteString(" ")
		if s == "true" || s == "false" {
			b.WriteString(s)
		} else {
			b.WriteString(strconv.Quote(s))
		}
		b.WriteString("\n")
	default:
		b.WriteString(" ")
		b.WriteString(v.Text())
		b.WriteString("\n")
	}
}

var plainItem = regexp.MustCompile(`^[^\s"'\[\]#,][^\n]*[^\s]$|^[^\s"'\[\]#,]$`)

// listItem quotes an array element only when a bare rendering would not read
// back as the same string.
func listItem(s string) string {
	if plainItem.MatchString(s) && !strings.Contains(s, ": ") {
		return s
	}
	return strconv.Quote(s)
}
