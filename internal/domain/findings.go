package domain

import (
	"encoding/json"
	"sort"
)

// Finding is one flagged clinical condition.
type Finding struct {
	Code     FindingCode `json:"code"`
	Severity Severity    `json:"severity"`
}

// FindingSet is a set of findings keyed by code. Order carries no meaning;
// independent conditions may co-occur but a code never appears twice.
type FindingSet map[FindingCode]Finding

// NewFindingSet builds a set from the given findings. A later duplicate code
// replaces an earlier one.
func NewFindingSet(findings ...Finding) FindingSet {
	set := make(FindingSet, len(findings))
	for _, f := range findings {
		set.Add(f)
	}
	return set
}

// Add inserts the finding, replacing any finding with the same code.
func (s FindingSet) Add(f Finding) {
	s[f.Code] = f
}

// Has reports whether the set contains the code.
func (s FindingSet) Has(code FindingCode) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the codes in the set in canonical order.
func (s FindingSet) Codes() []FindingCode {
	codes := make([]FindingCode, 0, len(s))
	for _, code := range AllFindingCodes {
		if s.Has(code) {
			codes = append(codes, code)
		}
	}
	return codes
}

// Sorted returns the findings ordered by severity (highest first) and then by
// canonical code order. It exists for stable output only.
func (s FindingSet) Sorted() []Finding {
	out := make([]Finding, 0, len(s))
	for _, code := range s.Codes() {
		out = append(out, s[code])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// MaxSeverity returns the highest severity in the set, or "" for an empty set.
func (s FindingSet) MaxSeverity() Severity {
	var max Severity
	for _, f := range s {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max
}

// MarshalJSON encodes the set as a stable array.
func (s FindingSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of findings.
func (s *FindingSet) UnmarshalJSON(data []byte) error {
	var findings []Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return err
	}
	*s = NewFindingSet(findings...)
	return nil
}
