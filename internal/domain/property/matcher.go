package property

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MatchType identifies which strategy resolved a payment row to a property.
// It is kept on the import result for audit and explainability.
type MatchType string

const (
	MatchTypePlotNumber MatchType = "plot_number"
	MatchTypePhone      MatchType = "phone"
	MatchTypeOwnerName  MatchType = "owner_name"
	MatchTypeMemo       MatchType = "memo"
	MatchTypeUnmatched  MatchType = "unmatched"
)

// String returns the string representation of MatchType
func (t MatchType) String() string {
	return string(t)
}

// MatchInput carries the normalized fields of one payment row that can
// identify a property.
type MatchInput struct {
	PlotRef  string
	Phone    string
	FullName string
	Memo     string
}

// MatchResult is the outcome of running the matcher over one row
type MatchResult struct {
	PropertyID *uuid.UUID `json:"property_id"`
	MatchType  MatchType  `json:"match_type"`
}

// Matched reports whether a property was resolved
func (r MatchResult) Matched() bool {
	return r.PropertyID != nil
}

// MatchStrategy is one step of the matching priority list. Strategies are
// tried in the fixed order the Matcher holds them; the first hit wins.
type MatchStrategy interface {
	Type() MatchType
	Match(input MatchInput, candidates []Property) (uuid.UUID, bool)
}

// Matcher resolves payment rows to properties using a ranked list of
// strategies. The order is part of the contract: an explicit plot reference
// always beats a phone hit, which beats an owner-name hit; free-text memo
// scanning is the last resort.
type Matcher struct {
	strategies []MatchStrategy
}

// NewMatcher creates a matcher with the default strategy order
func NewMatcher() *Matcher {
	return &Matcher{
		strategies: []MatchStrategy{
			plotNumberStrategy{},
			phoneStrategy{},
			ownerNameStrategy{},
			memoScanStrategy{},
		},
	}
}

// Strategies returns the ordered strategy types, for display and tests
func (m *Matcher) Strategies() []MatchType {
	types := make([]MatchType, len(m.strategies))
	for i, s := range m.strategies {
		types[i] = s.Type()
	}
	return types
}

// Match runs the strategies in order and returns the first hit
func (m *Matcher) Match(input MatchInput, candidates []Property) MatchResult {
	for _, s := range m.strategies {
		if id, ok := s.Match(input, candidates); ok {
			matched := id
			return MatchResult{PropertyID: &matched, MatchType: s.Type()}
		}
	}
	return MatchResult{MatchType: MatchTypeUnmatched}
}

// plotNumberStrategy matches an explicit plot reference exactly,
// case-insensitively, after normalization on both sides.
type plotNumberStrategy struct{}

func (plotNumberStrategy) Type() MatchType { return MatchTypePlotNumber }

func (plotNumberStrategy) Match(input MatchInput, candidates []Property) (uuid.UUID, bool) {
	ref := NormalizePlotNumber(input.PlotRef)
	if ref == "" {
		return uuid.Nil, false
	}
	for i := range candidates {
		if NormalizePlotNumber(candidates[i].PlotNumber) == ref {
			return candidates[i].ID, true
		}
	}
	return uuid.Nil, false
}

// phoneStrategy matches normalized phone digits against properties that
// have a phone on file.
type phoneStrategy struct{}

func (phoneStrategy) Type() MatchType { return MatchTypePhone }

func (phoneStrategy) Match(input MatchInput, candidates []Property) (uuid.UUID, bool) {
	phone := NormalizePhone(input.Phone)
	if phone == "" {
		return uuid.Nil, false
	}
	for i := range candidates {
		if candidates[i].Phone != "" && NormalizePhone(candidates[i].Phone) == phone {
			return candidates[i].ID, true
		}
	}
	return uuid.Nil, false
}

// ownerNameStrategy matches the payer's full name against owner names,
// case-insensitively with whitespace collapsed.
type ownerNameStrategy struct{}

func (ownerNameStrategy) Type() MatchType { return MatchTypeOwnerName }

func (ownerNameStrategy) Match(input MatchInput, candidates []Property) (uuid.UUID, bool) {
	name := NormalizeName(input.FullName)
	if name == "" {
		return uuid.Nil, false
	}
	for i := range candidates {
		if candidates[i].OwnerName != "" && NormalizeName(candidates[i].OwnerName) == name {
			return candidates[i].ID, true
		}
	}
	return uuid.Nil, false
}

// memoPlotPattern recognizes plot references inside free-text memos,
// e.g. "уч. 12", "участок №7", "plot 3".
var memoPlotPattern = regexp.MustCompile(`(?i)(?:уч(?:асток)?\.?|plot)\s*№?\s*([0-9]+[а-яa-z]?)`)

// memoScanStrategy heuristically extracts a plot number from the memo text.
// If a known street name also appears in the memo the candidate set is
// narrowed to that street before the number comparison.
type memoScanStrategy struct{}

func (memoScanStrategy) Type() MatchType { return MatchTypeMemo }

func (memoScanStrategy) Match(input MatchInput, candidates []Property) (uuid.UUID, bool) {
	memo := strings.TrimSpace(input.Memo)
	if memo == "" {
		return uuid.Nil, false
	}
	groups := memoPlotPattern.FindStringSubmatch(memo)
	if groups == nil {
		return uuid.Nil, false
	}
	plot := NormalizePlotNumber(groups[1])

	pool := candidates
	if narrowed := narrowByStreet(memo, candidates); len(narrowed) > 0 {
		pool = narrowed
	}
	for i := range pool {
		if NormalizePlotNumber(pool[i].PlotNumber) == plot {
			return pool[i].ID, true
		}
	}
	return uuid.Nil, false
}

// narrowByStreet returns the candidates whose street name occurs in the memo
func narrowByStreet(memo string, candidates []Property) []Property {
	collapsed := collapseForStreetMatch(memo)
	var narrowed []Property
	for i := range candidates {
		street := collapseForStreetMatch(candidates[i].Street)
		if street != "" && strings.Contains(collapsed, street) {
			narrowed = append(narrowed, candidates[i])
		}
	}
	return narrowed
}
