// Package moderation screens chat messages before the bot reacts to them.
// It holds the banned-word filter, repeated-content detection, the per-user
// recent-message window and the Engine that turns those signals into a
// Decision while keeping the warning ledger up to date.
package moderation

import (
	"sort"
	"strings"
)

// DefaultBannedWords is the blocklist used when none is configured.
// Replace with the words a server actually wants blocked.
var DefaultBannedWords = []string{"noxiousword1", "noxiousword2"}

// FilterResult is the outcome of a Filter check.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string // the banned entry that matched
}

// Filter matches message text against a set of banned entries. Matching is
// a case-insensitive substring match, so an entry also hits inside longer
// words. It is safe for concurrent use once built.
type Filter struct {
	terms []string // lower-cased, sorted for deterministic reporting
}

// NewFilterWithTerms creates a Filter over terms. Blank entries are dropped
// and duplicates collapse.
func NewFilterWithTerms(terms []string) *Filter {
	seen := make(map[string]struct{}, len(terms))
	f := &Filter{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		f.terms = append(f.terms, t)
	}
	sort.Strings(f.terms)
	return f
}

// Terms returns the number of entries in the filter.
func (f *Filter) Terms() int {
	return len(f.terms)
}

// Check reports whether text contains a banned entry.
func (f *Filter) Check(text string) FilterResult {
	if text == "" || len(f.terms) == 0 {
		return FilterResult{}
	}
	lower := strings.ToLower(text)
	for _, t := range f.terms {
		if strings.Contains(lower, t) {
			return FilterResult{Blocked: true, Reason: ReasonBannedWord, Term: t}
		}
	}
	return FilterResult{}
}
