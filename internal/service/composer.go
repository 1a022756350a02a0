package service

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/fertility-cds-server/internal/domain"
)

// Composer accumulates and edits the lines of one prescription draft.
// It belongs to a single clinical session and has no internal locking.
// Every failing operation leaves the draft untouched.
type Composer struct {
	lines []domain.PrescriptionLine
	notes string
}

// NewComposer creates an empty draft.
func NewComposer() *Composer {
	return &Composer{}
}

// NewComposerFrom resumes a draft from a snapshot.
func NewComposerFrom(p domain.Prescription) *Composer {
	clone := p.Clone()
	return &Composer{lines: clone.Lines, notes: clone.Notes}
}

// AddFromRecommendation appends a line using the recommendation's dosage template.
// Adding the same medicine twice yields two independent lines.
func (c *Composer) AddFromRecommendation(item domain.RecommendationItem) int {
	return c.appendLine(domain.PrescriptionLine{
		TradeName: item.TradeName,
		Dosage:    item.DosageTemplate,
		Quantity:  1,
	})
}

// AddFromCatalog appends a line using the catalog entry's default dosage.
func (c *Composer) AddFromCatalog(entry domain.MedicineCatalogEntry) int {
	return c.appendLine(domain.PrescriptionLine{
		TradeName: entry.TradeName,
		Dosage:    entry.DefaultDosage,
		Quantity:  1,
	})
}

func (c *Composer) appendLine(line domain.PrescriptionLine) int {
	c.lines = append(c.lines, line)
	return len(c.lines) - 1
}

// UpdateDosage replaces the dosage text of a line.
func (c *Composer) UpdateDosage(index int, text string) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	c.lines[index].Dosage = text
	return nil
}

// UpdateInstructions replaces the instructions of a line.
func (c *Composer) UpdateInstructions(index int, text string) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	c.lines[index].Instructions = text
	return nil
}

// UpdateQuantity sets the quantity of a line. It must be at least 1.
func (c *Composer) UpdateQuantity(index, quantity int) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	if quantity < 1 {
		return fmt.Errorf("quantity %d: %w", quantity, domain.ErrInvalidQuantity)
	}
	c.lines[index].Quantity = quantity
	return nil
}

// Remove deletes a line, keeping the remaining lines in order.
func (c *Composer) Remove(index int) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	lines := make([]domain.PrescriptionLine, 0, len(c.lines)-1)
	lines = append(lines, c.lines[:index]...)
	c.lines = append(lines, c.lines[index+1:]...)
	return nil
}

// SetNotes replaces the free-text notes.
func (c *Composer) SetNotes(text string) {
	c.notes = text
}

// Len returns the number of lines.
func (c *Composer) Len() int {
	return len(c.lines)
}

// Snapshot returns a deep copy of the draft. Later edits do not affect it.
func (c *Composer) Snapshot() domain.Prescription {
	return domain.Prescription{Lines: c.lines, Notes: c.notes}.Clone()
}

// Summarize derives display-agnostic data from the draft: unit totals, an
// estimated cost from catalog prices and the patient's BMI.
func (c *Composer) Summarize(obs domain.Observation, catalog []domain.MedicineCatalogEntry) domain.PrescriptionSummary {
	prices := make(map[string]float64, len(catalog))
	for _, entry := range catalog {
		prices[entry.TradeName] = entry.Price
	}

	summary := domain.PrescriptionSummary{LineCount: len(c.lines)}
	for _, line := range c.lines {
		summary.TotalUnits += line.Quantity
		price, ok := prices[line.TradeName]
		if !ok {
			summary.UnpricedLines = append(summary.UnpricedLines, line.TradeName)
			continue
		}
		summary.EstimatedCost += price * float64(line.Quantity)
	}
	summary.BMI, summary.BMIBand = ObservationBMI(obs)

	return summary
}

func (c *Composer) checkIndex(index int) error {
	if index < 0 || index >= len(c.lines) {
		return fmt.Errorf("line %d of %d: %w", index, len(c.lines), domain.ErrIndexOutOfRange)
	}
	return nil
}

// SearchCatalog returns the entries whose trade or scientific name contains the
// term, compared with Unicode case folding, in catalog order. An empty term
// returns nothing; there is no browse-all. Whitespace is matched literally.
func SearchCatalog(catalog []domain.MedicineCatalogEntry, term string) []domain.MedicineCatalogEntry {
	matches := []domain.MedicineCatalogEntry{}
	if term == "" {
		return matches
	}

	fold := cases.Fold()
	needle := fold.String(term)
	for _, entry := range catalog {
		if strings.Contains(fold.String(entry.TradeName), needle) ||
			strings.Contains(fold.String(entry.ScientificName), needle) {
			matches = append(matches, entry)
		}
	}
	return matches
}

// FindCatalogEntry looks up an entry by exact trade name.
func FindCatalogEntry(catalog []domain.MedicineCatalogEntry, tradeName string) (domain.MedicineCatalogEntry, bool) {
	for _, entry := range catalog {
		if entry.TradeName == tradeName {
			return entry, true
		}
	}
	return domain.MedicineCatalogEntry{}, false
}
