package bot

import "strings"

// EchoFilter remembers the bot's own recent outbound texts so they are not
// re-processed when the platform feeds them back through ingestion. Bounded
// FIFO; comparison is on a normalized form so platform-side markup rendering
// cannot defeat the match.
type EchoFilter struct {
	cap    int
	recent []string
}

const defaultEchoCap = 50

// NewEchoFilter builds a filter remembering up to cap normalized texts.
func NewEchoFilter(cap int) *EchoFilter {
	if cap <= 0 {
		cap = defaultEchoCap
	}
	return &EchoFilter{cap: cap}
}

// Normalize lowercases, strips lightweight markup characters, and collapses
// whitespace runs so that a rendered echo still equals the original text.
func Normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch r {
		case '*', '_', '~', '`':
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Remember records text before it is sent, closing the race where the echo
// arrives back from ingestion before the send call returns.
func (e *EchoFilter) Remember(text string) {
	n := Normalize(text)
	if n == "" {
		return
	}
	e.recent = append(e.recent, n)
	if len(e.recent) > e.cap {
		e.recent = e.recent[len(e.recent)-e.cap:]
	}
}

// Matches reports whether text normalizes to a remembered outbound message.
func (e *EchoFilter) Matches(text string) bool {
	n := Normalize(text)
	if n == "" {
		return false
	}
	for _, r := range e.recent {
		if r == n {
			return true
		}
	}
	return false
}
