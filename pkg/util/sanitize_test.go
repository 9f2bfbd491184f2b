package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Read [Guide](https://x.y) and take notes", "Read Guide and take notes"},
		{"", "untitled"},
		{"   ", "untitled"},
		{"a" + strings.Repeat(".", 50) + "b", "a_b"},
		{`What? <now>: "a/b\c|d*"`, "What_ _now_ _a_b_c_d_"},
		{"v1.2 release", "v1_2 release"},
		{"  padded title  ", "padded title"},
		{"[link]()", "link"},
		{"...", "_"},
	}

	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("é", 150)
	got := SanitizeName(long)
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Errorf("Expected 100 runes, got %d", n)
	}
	if !utf8.ValidString(got) {
		t.Errorf("Truncation split a multi-byte rune: %q", got)
	}
}
