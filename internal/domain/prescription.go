package domain

import "time"

// MedicineCatalogEntry is one medicine in a caller-supplied catalog snapshot.
// TradeName is unique within a snapshot.
type MedicineCatalogEntry struct {
	TradeName      string  `json:"tradeName" yaml:"trade_name"`
	ScientificName string  `json:"scientificName" yaml:"scientific_name"`
	Category       string  `json:"category" yaml:"category"`
	Form           string  `json:"form" yaml:"form"`
	Concentration  string  `json:"concentration" yaml:"concentration"`
	DefaultDosage  string  `json:"defaultDosage" yaml:"default_dosage"`
	Price          float64 `json:"price" yaml:"price"`
}

// RecommendationItem links a diagnosis to a medicine. DosageTemplate is free
// clinical text and is treated as opaque.
type RecommendationItem struct {
	TradeName      string `json:"tradeName" yaml:"trade_name"`
	DosageTemplate string `json:"dosageTemplate" yaml:"dosage"`
	Rationale      string `json:"rationale" yaml:"rationale"`
}

// RecommendationTable maps a terminal node's recommendation key or a finding
// code to an ordered list of recommendations.
type RecommendationTable map[string][]RecommendationItem

// PrescriptionLine is one medication line of a prescription draft.
type PrescriptionLine struct {
	TradeName    string `json:"tradeName"`
	Dosage       string `json:"dosage"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription is an ordered list of lines plus free-text notes.
type Prescription struct {
	Lines []PrescriptionLine `json:"lines"`
	Notes string             `json:"notes,omitempty"`
}

// Clone returns a deep copy.
func (p Prescription) Clone() Prescription {
	lines := make([]PrescriptionLine, len(p.Lines))
	copy(lines, p.Lines)
	return Prescription{Lines: lines, Notes: p.Notes}
}

// PrescriptionSummary is display-agnostic data derived from a draft.
type PrescriptionSummary struct {
	LineCount     int      `json:"lineCount"`
	TotalUnits    int      `json:"totalUnits"`
	EstimatedCost float64  `json:"estimatedCost"`
	UnpricedLines []string `json:"unpricedLines,omitempty"`
	BMI           *float64 `json:"bmi,omitempty"`
	BMIBand       BMIBand  `json:"bmiBand,omitempty"`
}

// PrescriptionRecord is a finalized prescription as handed to persistence.
type PrescriptionRecord struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"sessionId"`
	PatientRef   string       `json:"patientRef,omitempty"`
	Protocol     string       `json:"protocol,omitempty"`
	Prescription Prescription `json:"prescription"`
	Findings     []Finding    `json:"findings"`
	DecisionPath []string     `json:"decisionPath"`
	BMI          *float64     `json:"bmi,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Validate ensures the record can be stored.
func (r *PrescriptionRecord) Validate() error {
	if r.ID == "" {
		return NewValidationError("id", "record id is required", r.ID)
	}
	if r.SessionID == "" {
		return NewValidationError("sessionId", "session id is required", r.SessionID)
	}
	for i, line := range r.Prescription.Lines {
		if line.TradeName == "" {
			return NewValidationError("prescription.lines", "trade name is required", i)
		}
		if line.Quantity < 1 {
			return NewValidationError("prescription.lines", "quantity must be a positive integer", line.Quantity)
		}
	}
	return nil
}

// DraftSnapshot is the resumable state of an open clinical session.
type DraftSnapshot struct {
	SessionID    string         `json:"sessionId"`
	PatientRef   string         `json:"patientRef,omitempty"`
	Observation  Observation    `json:"observation"`
	Navigator    NavigatorState `json:"navigator"`
	Prescription Prescription   `json:"prescription"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
