package ai

import (
	"regexp"
	"strings"
)

// mentionMatcher detects the AI user id as a word-bounded token, case
// insensitive. A leading @ is covered by the word boundary, so "@pauline",
// "pauline?" and "PAULINE please" all match while "paulinex" and "xpauline"
// do not. Deliberately permissive: any stray occurrence of the name triggers
// an invocation.
type mentionMatcher struct {
	re *regexp.Regexp
}

func newMentionMatcher(userID string) *mentionMatcher {
	id := strings.TrimSpace(userID)
	if id == "" {
		return &mentionMatcher{}
	}
	return &mentionMatcher{
		re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(id) + `\b`),
	}
}

func (m *mentionMatcher) Match(text string) bool {
	if m.re == nil {
		return false
	}
	return m.re.MatchString(text)
}

// IsMentioned reports whether text addresses the given AI user id.
func IsMentioned(text, userID string) bool {
	return newMentionMatcher(userID).Match(text)
}
