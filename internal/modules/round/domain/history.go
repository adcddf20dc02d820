package domain

import "time"

// HistoryEntry is one settled-round outcome.
type HistoryEntry struct {
	RoundNumber int
	Outcome     Outcome
	Time        time.Time
}

// History is the append-only log of settled-round outcomes, keyed by round
// number. It backs the streak and statistics displays.
type History struct {
	entries []HistoryEntry
	seen    map[int]bool
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{seen: make(map[int]bool)}
}

// Append records an outcome for a round. Re-appending the same round number
// is a no-op, which keeps record re-application idempotent.
func (h *History) Append(roundNumber int, outcome Outcome, at time.Time) bool {
	if h.seen[roundNumber] {
		return false
	}
	h.seen[roundNumber] = true
	h.entries = append(h.entries, HistoryEntry{RoundNumber: roundNumber, Outcome: outcome, Time: at})
	return true
}

// Contains reports whether an outcome is already recorded for the round number
func (h *History) Contains(roundNumber int) bool {
	return h.seen[roundNumber]
}

// Entries returns a copy of all entries in append order
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded rounds
func (h *History) Len() int {
	return len(h.entries)
}

// Counts returns the number of settled rounds per outcome
func (h *History) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, e := range h.entries {
		counts[e.Outcome]++
	}
	return counts
}

// CurrentStreak returns the most recent outcome and how many consecutive
// rounds it has held. Zero length means no history.
func (h *History) CurrentStreak() (Outcome, int) {
	if len(h.entries) == 0 {
		return OutcomeUnknown, 0
	}
	last := h.entries[len(h.entries)-1].Outcome
	n := 0
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Outcome != last {
			break
		}
		n++
	}
	return last, n
}

// LongestStreak returns the longest run of the given outcome
func (h *History) LongestStreak(outcome Outcome) int {
	longest, run := 0, 0
	for _, e := range h.entries {
		if e.Outcome == outcome {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// Last returns up to n most recent entries, oldest first
func (h *History) Last(n int) []HistoryEntry {
	if n >= len(h.entries) {
		return h.Entries()
	}
	out := make([]HistoryEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}
