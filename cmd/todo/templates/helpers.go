package templates

import (
	"strings"

	"github.com/dustin/go-humanize"
)

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// counted renders n with thousands separators and the matching noun form.
func counted(n int, singular, plural string) string {
	var sb strings.Builder
	sb.WriteString(humanize.Comma(int64(n)))
	sb.WriteByte(' ')
	if n == 1 {
		sb.WriteString(singular)
	} else {
		sb.WriteString(plural)
	}
	return sb.String()
}
