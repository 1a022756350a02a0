package service

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility-cds-server/internal/domain"
)

func testCatalog() []domain.MedicineCatalogEntry {
	return []domain.MedicineCatalogEntry{
		{TradeName: "Clomid", ScientificName: "Clomiphene citrate", DefaultDosage: "50 mg daily", Price: 45},
		{TradeName: "Femara", ScientificName: "Letrozole", DefaultDosage: "2.5 mg daily", Price: 120},
		{TradeName: "Duphaston", ScientificName: "Dydrogesterone", DefaultDosage: "10 mg twice daily", Price: 75},
		{TradeName: "Gonal-F", ScientificName: "Follitropin alfa", DefaultDosage: "150 IU daily"},
	}
}

func TestComposer_AddLines(t *testing.T) {
	c := NewComposer()
	catalog := testCatalog()

	assert.Equal(t, 0, c.AddFromCatalog(catalog[0]))
	assert.Equal(t, 1, c.AddFromCatalog(catalog[0]))
	assert.Equal(t, 2, c.AddFromRecommendation(domain.RecommendationItem{TradeName: "Duphaston", DosageTemplate: "One tablet twice daily"}))

	require.NoError(t, c.UpdateQuantity(1, 3))

	want := domain.Prescription{Lines: []domain.PrescriptionLine{
		{TradeName: "Clomid", Dosage: "50 mg daily", Quantity: 1},
		{TradeName: "Clomid", Dosage: "50 mg daily", Quantity: 3},
		{TradeName: "Duphaston", Dosage: "One tablet twice daily", Quantity: 1},
	}}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestComposer_Remove(t *testing.T) {
	c := NewComposer()
	for _, name := range []string{"A", "B", "C"} {
		c.AddFromRecommendation(domain.RecommendationItem{TradeName: name})
	}

	require.NoError(t, c.Remove(1))

	lines := c.Snapshot().Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "A", lines[0].TradeName)
	assert.Equal(t, "C", lines[1].TradeName)
}

func TestComposer_Errors(t *testing.T) {
	c := NewComposer()
	c.AddFromCatalog(testCatalog()[0])
	before := c.Snapshot()

	tests := []struct {
		name string
		op   func() error
		err  error
	}{
		{"zero quantity", func() error { return c.UpdateQuantity(0, 0) }, domain.ErrInvalidQuantity},
		{"negative quantity", func() error { return c.UpdateQuantity(0, -2) }, domain.ErrInvalidQuantity},
		{"quantity on missing line", func() error { return c.UpdateQuantity(5, 0) }, domain.ErrIndexOutOfRange},
		{"dosage on missing line", func() error { return c.UpdateDosage(1, "x") }, domain.ErrIndexOutOfRange},
		{"instructions on negative index", func() error { return c.UpdateInstructions(-1, "x") }, domain.ErrIndexOutOfRange},
		{"remove missing line", func() error { return c.Remove(1) }, domain.ErrIndexOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), tt.err)
			if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
				t.Errorf("draft changed after failed operation (-before +after):\n%s", diff)
			}
		})
	}
}

func TestComposer_Edits(t *testing.T) {
	c := NewComposer()
	c.AddFromCatalog(testCatalog()[2])

	require.NoError(t, c.UpdateDosage(0, "10 mg once daily"))
	require.NoError(t, c.UpdateInstructions(0, "From day 16 to 25"))
	c.SetNotes("Review in 3 months")

	snap := c.Snapshot()
	assert.Equal(t, "10 mg once daily", snap.Lines[0].Dosage)
	assert.Equal(t, "From day 16 to 25", snap.Lines[0].Instructions)
	assert.Equal(t, "Review in 3 months", snap.Notes)
}

func TestComposer_SnapshotIsIndependent(t *testing.T) {
	c := NewComposer()
	c.AddFromCatalog(testCatalog()[0])

	snap := c.Snapshot()
	require.NoError(t, c.UpdateDosage(0, "changed"))
	assert.Equal(t, "50 mg daily", snap.Lines[0].Dosage)

	resumed := NewComposerFrom(snap)
	snap.Lines[0].Dosage = "mutated"
	assert.Equal(t, "50 mg daily", resumed.Snapshot().Lines[0].Dosage)
	assert.Equal(t, 1, resumed.Len())
}

func TestComposer_Summarize(t *testing.T) {
	c := NewComposer()
	catalog := testCatalog()
	c.AddFromCatalog(catalog[0])
	c.AddFromCatalog(catalog[3])
	c.AddFromRecommendation(domain.RecommendationItem{TradeName: "Unlisted"})
	require.NoError(t, c.UpdateQuantity(0, 2))

	summary := c.Summarize(domain.Observation{WeightKg: domain.Float(70), HeightCm: domain.Float(165)}, catalog)

	assert.Equal(t, 3, summary.LineCount)
	assert.Equal(t, 4, summary.TotalUnits)
	assert.InDelta(t, 90.0, summary.EstimatedCost, 0.001)
	assert.Equal(t, []string{"Unlisted"}, summary.UnpricedLines)
	require.NotNil(t, summary.BMI)
	assert.Equal(t, domain.BMIOverweight, summary.BMIBand)
}

func TestSearchCatalog(t *testing.T) {
	catalog := testCatalog()

	tests := []struct {
		name     string
		term     string
		expected []string
	}{
		{"empty term", "", []string{}},
		{"single space matches multi-word names", " ", []string{"Clomid", "Gonal-F"}},
		{"whitespace without a match", "   ", []string{}},
		{"trade name prefix", "clom", []string{"Clomid"}},
		{"case insensitive", "DUPH", []string{"Duphaston"}},
		{"scientific name", "letrozole", []string{"Femara"}},
		{"substring in both", "o", []string{"Clomid", "Femara", "Duphaston", "Gonal-F"}},
		{"no match", "xyz", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SearchCatalog(catalog, tt.term)
			names := make([]string, len(got))
			for i, entry := range got {
				names[i] = entry.TradeName
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestFindCatalogEntry(t *testing.T) {
	entry, ok := FindCatalogEntry(testCatalog(), "Femara")
	require.True(t, ok)
	assert.Equal(t, "Letrozole", entry.ScientificName)

	_, ok = FindCatalogEntry(testCatalog(), "femara")
	assert.False(t, ok)
}
