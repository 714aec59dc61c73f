package period

import (
	"regexp"
	"strings"
)

var (
	combined123 = regexp.MustCompile(`(?:^|\D)1\s*(&|and|,|\+|/)\s*2\s*(&|and|,|\+|/)\s*3(?:\D|$)`)
	combined12  = regexp.MustCompile(`(?:^|\D)1\s*(&|and|,|\+|/)\s*2(?:\D|$)`)
	semesterN   = regexp.MustCompile(`\bsem(?:ester)?\.?\s*([123])\b`)
	termN       = regexp.MustCompile(`\bterm\s*([123])\b`)
)

// NormalizeLabel maps a free-text period label from an upload form onto the
// canonical vocabulary. Combined labels are checked before single ones so that
// "Semester 1&2&3" is not read as "Semester 1&2". Labels that match nothing
// are returned trimmed and unchanged.
func NormalizeLabel(raw string) string {
	label := strings.TrimSpace(raw)
	l := strings.ToLower(label)
	if l == "" {
		return ""
	}

	switch {
	case strings.Contains(l, "attachment"):
		return Attachment
	case combined123.MatchString(l):
		return Semester123
	case combined12.MatchString(l):
		return Semester12
	}

	if m := termN.FindStringSubmatch(l); m != nil {
		return "Term " + m[1]
	}
	if m := semesterN.FindStringSubmatch(l); m != nil {
		return "Semester " + m[1]
	}
	return label
}
