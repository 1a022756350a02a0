package service

import (
	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/protocol"
)

// Engine bundles the stateless components built from one protocol.
type Engine struct {
	Classifier  *ThresholdClassifier
	Navigator   *Navigator
	Recommender *Recommender
	Catalog     []domain.MedicineCatalogEntry
	Protocol    string
}

// NewEngine wires the classifier, navigator and recommender for a protocol bundle.
func NewEngine(bundle *protocol.Bundle, logger *logrus.Logger) *Engine {
	catalog := make([]domain.MedicineCatalogEntry, len(bundle.Catalog))
	copy(catalog, bundle.Catalog)

	return &Engine{
		Classifier:  NewThresholdClassifier(logger),
		Navigator:   NewNavigator(bundle.Graph, logger),
		Recommender: NewRecommender(bundle.Recommendations),
		Catalog:     catalog,
		Protocol:    bundle.Name + "@" + bundle.Version,
	}
}

// SearchCatalog searches the protocol's catalog.
func (e *Engine) SearchCatalog(term string) []domain.MedicineCatalogEntry {
	return SearchCatalog(e.Catalog, term)
}
