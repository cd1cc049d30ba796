package selector

import (
	"regexp"
	"strings"
)

const trimCutset = " \t\r\n\"'`*.,;:!?()[]{}<>"

// ParseName maps untrusted model output onto one of candidates.
// Order: exact match after trimming, case-insensitive match, then the
// output mentions exactly one candidate as a whole word.
func ParseName(raw string, candidates []string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), trimCutset)
	if s == "" || len(candidates) == 0 {
		return "", false
	}
	for _, c := range candidates {
		if s == c {
			return c, true
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(s, c) {
			return c, true
		}
	}

	var found string
	for _, c := range candidates {
		if mentions(raw, c) {
			if found != "" {
				return "", false
			}
			found = c
		}
	}
	return found, found != ""
}

func mentions(text, name string) bool {
	re := regexp.MustCompile(`(?i)(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(name) + `($|[^A-Za-z0-9_])`)
	return re.MatchString(text)
}
