package util

import (
	"regexp"
	"strings"
)

const (
	maxNameLength = 100
	fallbackName  = "untitled"
)

var (
	markdownLink  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reservedChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	underscoreRun = regexp.MustCompile(`_{2,}`)
)

// SanitizeName turns an entity title into a name that is safe to use as a
// file or folder name. It is deterministic and knows nothing about existing
// files; callers avoid collisions by keying on entity ids.
func SanitizeName(title string) string {
	name := markdownLink.ReplaceAllString(title, "$1")
	name = reservedChars.ReplaceAllString(name, "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.TrimSpace(name)

	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}

	name = underscoreRun.ReplaceAllString(name, "_")
	if name == "" {
		return fallbackName
	}
	return name
}
