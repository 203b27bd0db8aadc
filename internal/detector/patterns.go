package detector

import (
	"fmt"
	"regexp"
)

// claimPatterns match comment phrasings that indicate someone is claiming
// an issue. All matching is case-insensitive on word boundaries.
var claimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(i'?ll|i will|let me|i can|i'?d like to)\s+(work on|take|handle|fix|do|tackle)\s+(this|it)\b`),
	regexp.MustCompile(`(?i)\b(assign|assigned)\s+(this|me|to me)\b`),
	regexp.MustCompile(`(?i)\b(working on|started on)\s+(this|it)\b`),
	regexp.MustCompile(`(?i)\b(can i|may i)\s+(work on|take|handle|fix)\s+(this|it)\b`),
	regexp.MustCompile(`(?i)\b(i'?m on|i'?m taking)\s+(this|it)\b`),
}

// IsClaimComment reports whether a comment body reads as a claim of intent
// to work on the issue it was posted on.
func IsClaimComment(body string) bool {
	for _, p := range claimPatterns {
		if p.MatchString(body) {
			return true
		}
	}
	return false
}

// ReferencesIssue reports whether text mentions the given issue number,
// either as a bare "#N" or through a closing keyword ("fixes #N",
// "closes #N", "resolves #N").
func ReferencesIssue(text string, issueNumber int) bool {
	re := regexp.MustCompile(fmt.Sprintf(
		`(?i)#%d\b|fixes #%d|closes #%d|resolves #%d`,
		issueNumber, issueNumber, issueNumber, issueNumber))
	return re.MatchString(text)
}
