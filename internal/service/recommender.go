package service

import (
	"github.com/fertility-cds-server/internal/domain"
)

// Recommender maps recommendation keys and finding codes to medications.
// The table is supplied as configuration so one engine can serve several
// clinical protocols. It is copied at construction and never mutated.
type Recommender struct {
	table domain.RecommendationTable
}

// NewRecommender creates a recommender over a private copy of the table.
func NewRecommender(table domain.RecommendationTable) *Recommender {
	copied := make(domain.RecommendationTable, len(table))
	for key, items := range table {
		copied[key] = cloneItems(items)
	}
	return &Recommender{table: copied}
}

// Recommend returns the ordered recommendations for a key. An unknown key
// yields an empty list, so callers may probe freely.
func (r *Recommender) Recommend(key string) []domain.RecommendationItem {
	items, ok := r.table[key]
	if !ok {
		return []domain.RecommendationItem{}
	}
	return cloneItems(items)
}

// RecommendForFindings concatenates the recommendations of every finding in
// the set, in canonical finding order.
func (r *Recommender) RecommendForFindings(findings domain.FindingSet) []domain.RecommendationItem {
	out := []domain.RecommendationItem{}
	for _, code := range findings.Codes() {
		out = append(out, r.Recommend(string(code))...)
	}
	return out
}

// Keys reports how many keys the table holds.
func (r *Recommender) Keys() int {
	return len(r.table)
}

func cloneItems(items []domain.RecommendationItem) []domain.RecommendationItem {
	out := make([]domain.RecommendationItem, len(items))
	copy(out, items)
	return out
}
