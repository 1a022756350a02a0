package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindingCodeConstants(t *testing.T) {
	assert.Len(t, AllFindingCodes, 11)

	seen := make(map[FindingCode]bool)
	for _, code := range AllFindingCodes {
		assert.True(t, code.IsValid(), "code %s should be valid", code)
		assert.False(t, seen[code], "code %s listed twice", code)
		seen[code] = true
	}

	assert.False(t, FindingCode("ENDOMETRIOSIS").IsValid())
	assert.Equal(t, "PCOS_SUSPECTED", PCOS_SUSPECTED.String())
}

func TestFindingCode_IsMaleFactor(t *testing.T) {
	tests := []struct {
		code     FindingCode
		expected bool
	}{
		{MALE_FACTOR_COUNT, true},
		{MALE_FACTOR_MOTILITY, true},
		{MALE_FACTOR_MORPHOLOGY, true},
		{LEUKOCYTOSPERMIA, true},
		{PCOS_SUSPECTED, false},
		{BILATERAL_TUBAL_BLOCKAGE, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.code.IsMaleFactor())
		})
	}
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityHigh.Rank() > SeverityMedium.Rank())
	assert.True(t, SeverityMedium.Rank() > SeverityLow.Rank())
	assert.Equal(t, 0, Severity("critical").Rank())
	assert.False(t, Severity("critical").IsValid())
}

func TestStructuralEnums(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"", true},
		{"unknown", true},
		{"bilateralBlocked", true},
		{"blocked", false},
	}
	for _, tt := range tests {
		t.Run("tubal/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, TubalPatency(tt.name).IsValid())
		})
	}

	assert.True(t, CavityAsherman.IsValid())
	assert.True(t, UterineCavity("").IsValid())
	assert.False(t, UterineCavity("bicornuate").IsValid())
}
