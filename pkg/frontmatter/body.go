package frontmatter

import (
	"regexp"
	"strings"
)

var (
	checkedPattern = regexp.MustCompile(`\[x\]`)
	headingPattern = regexp.MustCompile(`^#{1,6}[ \t]+(.+?)[ \t#]*$`)
)

// IsChecked reports whether the body contains a completed checkbox marker.
// Only the lowercase "[x]" counts.
func IsChecked(body string) bool {
	return checkedPattern.MatchString(body)
}

// FirstHeading returns the text of the first Markdown heading in body.
func FirstHeading(body string) (string, bool) {
	for _, line := range strings.Split(body, "\n") {
		m := headingPattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}
