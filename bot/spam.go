package bot

import (
	"regexp"
	"strings"
)

// SpamFilter drops low-effort promotional chat and tight per-user repetition
// before it reaches dispatch. Per-user history is bounded to the last few
// messages; three identical texts in that window counts as spam.
type SpamFilter struct {
	patterns []*regexp.Regexp
	history  map[string][]string
}

const (
	spamHistoryLen = 10
	spamRepeatLim  = 3
)

var defaultSpamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfollow\s+me\b`),
	regexp.MustCompile(`(?i)\bsub\s*(4|for)\s*sub\b`),
	regexp.MustCompile(`(?i)\bcheck\s+out\s+my\s+channel\b`),
	regexp.MustCompile(`(?i)\bfree\s+(vbucks|robux|gift\s*card)s?\b`),
	regexp.MustCompile(`(?i)https?://\S+\s+(giveaway|promo)\b`),
}

func NewSpamFilter() *SpamFilter {
	return &SpamFilter{
		patterns: defaultSpamPatterns,
		history:  make(map[string][]string),
	}
}

// IsSpam records text against author's recent history and reports whether the
// message should be dropped.
func (s *SpamFilter) IsSpam(author, text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	h := append(s.history[author], norm)
	if len(h) > spamHistoryLen {
		h = h[len(h)-spamHistoryLen:]
	}
	s.history[author] = h

	for _, p := range s.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	repeats := 0
	for _, prev := range h {
		if prev == norm {
			repeats++
		}
	}
	return repeats >= spamRepeatLim
}
