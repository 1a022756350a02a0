package service

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility-cds-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func TestThresholdClassifier_Classify(t *testing.T) {
	classifier := NewThresholdClassifier(testLogger())

	tests := []struct {
		name     string
		obs      domain.Observation
		expected []domain.FindingCode
	}{
		{
			name: "empty observation",
			obs:  domain.Observation{},
		},
		{
			name:     "PCOS from high AMH with irregular cycle",
			obs:      domain.Observation{CycleRegular: domain.Bool(false), AMHNgMl: domain.Float(4)},
			expected: []domain.FindingCode{domain.PCOS_SUSPECTED},
		},
		{
			name:     "PCOS from LH/FSH ratio",
			obs:      domain.Observation{CycleRegular: domain.Bool(false), LHmIUmL: domain.Float(16), FSHmIUmL: domain.Float(5)},
			expected: []domain.FindingCode{domain.PCOS_SUSPECTED},
		},
		{
			name: "high AMH with regular cycle is not PCOS",
			obs:  domain.Observation{CycleRegular: domain.Bool(true), AMHNgMl: domain.Float(6)},
		},
		{
			name: "high AMH with unknown cycle is not PCOS",
			obs:  domain.Observation{AMHNgMl: domain.Float(6)},
		},
		{
			name:     "zero FSH makes the ratio infinite",
			obs:      domain.Observation{CycleRegular: domain.Bool(false), LHmIUmL: domain.Float(10), FSHmIUmL: domain.Float(0)},
			expected: []domain.FindingCode{domain.PCOS_SUSPECTED},
		},
		{
			name: "zero LH over zero FSH does not fire",
			obs:  domain.Observation{CycleRegular: domain.Bool(false), LHmIUmL: domain.Float(0), FSHmIUmL: domain.Float(0)},
		},
		{
			name: "LH/FSH ratio of exactly 3 does not fire",
			obs:  domain.Observation{CycleRegular: domain.Bool(false), LHmIUmL: domain.Float(15), FSHmIUmL: domain.Float(5)},
		},
		{
			name: "AMH at PCOS threshold does not fire",
			obs:  domain.Observation{CycleRegular: domain.Bool(false), AMHNgMl: domain.Float(3.5)},
		},
		{
			name:     "DOR from FSH",
			obs:      domain.Observation{FSHmIUmL: domain.Float(13)},
			expected: []domain.FindingCode{domain.DIMINISHED_OVARIAN_RESERVE},
		},
		{
			name:     "DOR from AMH",
			obs:      domain.Observation{AMHNgMl: domain.Float(0.6)},
			expected: []domain.FindingCode{domain.DIMINISHED_OVARIAN_RESERVE},
		},
		{
			name: "FSH at threshold does not fire",
			obs:  domain.Observation{FSHmIUmL: domain.Float(12)},
		},
		{
			name: "AMH at DOR threshold does not fire",
			obs:  domain.Observation{AMHNgMl: domain.Float(1.0)},
		},
		{
			name:     "low TSH",
			obs:      domain.Observation{TSHmIUmL: domain.Float(0.2)},
			expected: []domain.FindingCode{domain.THYROID_DISORDER},
		},
		{
			name:     "high TSH",
			obs:      domain.Observation{TSHmIUmL: domain.Float(5.1)},
			expected: []domain.FindingCode{domain.THYROID_DISORDER},
		},
		{
			name: "TSH at upper boundary is normal",
			obs:  domain.Observation{TSHmIUmL: domain.Float(4)},
		},
		{
			name: "TSH at lower boundary is normal",
			obs:  domain.Observation{TSHmIUmL: domain.Float(0.4)},
		},
		{
			name: "prolactin at threshold does not fire",
			obs:  domain.Observation{ProlactinNgMl: domain.Float(25)},
		},
		{
			name:     "hyperprolactinemia",
			obs:      domain.Observation{ProlactinNgMl: domain.Float(40)},
			expected: []domain.FindingCode{domain.HYPERPROLACTINEMIA},
		},
		{
			name:     "low mid-luteal progesterone",
			obs:      domain.Observation{ProgesteroneNgMl: domain.Float(3)},
			expected: []domain.FindingCode{domain.ANOVULATION_SUSPECTED},
		},
		{
			name: "progesterone at 12 confirms ovulation",
			obs:  domain.Observation{ProgesteroneNgMl: domain.Float(12)},
		},
		{
			name:     "low count and motility",
			obs:      domain.Observation{SpermCountM: domain.Float(10), MotilityPct: domain.Float(35)},
			expected: []domain.FindingCode{domain.MALE_FACTOR_COUNT, domain.MALE_FACTOR_MOTILITY},
		},
		{
			name: "semen values at thresholds are normal",
			obs: domain.Observation{
				SpermCountM:   domain.Float(15),
				MotilityPct:   domain.Float(40),
				MorphologyPct: domain.Float(4),
				PusCellsM:     domain.Float(1),
			},
		},
		{
			name:     "morphology and pus cells",
			obs:      domain.Observation{MorphologyPct: domain.Float(2), PusCellsM: domain.Float(1.5)},
			expected: []domain.FindingCode{domain.MALE_FACTOR_MORPHOLOGY, domain.LEUKOCYTOSPERMIA},
		},
		{
			name:     "bilateral tubal blockage",
			obs:      domain.Observation{TubalPatency: domain.TubalBilateralBlocked},
			expected: []domain.FindingCode{domain.BILATERAL_TUBAL_BLOCKAGE},
		},
		{
			name: "unilateral blockage is not flagged",
			obs:  domain.Observation{TubalPatency: domain.TubalLeftBlocked},
		},
		{
			name:     "uterine pathology",
			obs:      domain.Observation{UterineCavity: domain.CavityFibroids},
			expected: []domain.FindingCode{domain.UTERINE_PATHOLOGY},
		},
		{
			name: "normal cavity",
			obs:  domain.Observation{UterineCavity: domain.CavityNormal},
		},
		{
			name: "everything abnormal at once",
			obs: domain.Observation{
				CycleRegular:     domain.Bool(false),
				AMHNgMl:          domain.Float(0.5),
				LHmIUmL:          domain.Float(60),
				FSHmIUmL:         domain.Float(15),
				TSHmIUmL:         domain.Float(8),
				ProlactinNgMl:    domain.Float(30),
				ProgesteroneNgMl: domain.Float(2),
				SpermCountM:      domain.Float(3),
				MotilityPct:      domain.Float(20),
				MorphologyPct:    domain.Float(1),
				PusCellsM:        domain.Float(2),
				TubalPatency:     domain.TubalBilateralBlocked,
				UterineCavity:    domain.CavityAsherman,
			},
			expected: domain.AllFindingCodes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := classifier.Classify(tt.obs)
			expected := tt.expected
			if expected == nil {
				expected = []domain.FindingCode{}
			}
			assert.Equal(t, expected, findings.Codes())
		})
	}
}

func TestThresholdClassifier_Idempotent(t *testing.T) {
	classifier := NewThresholdClassifier(nil)
	obs := domain.Observation{
		CycleRegular: domain.Bool(false),
		AMHNgMl:      domain.Float(4),
		SpermCountM:  domain.Float(10),
		TSHmIUmL:     domain.Float(6),
	}

	first := classifier.Classify(obs)
	second := classifier.Classify(obs)
	assert.Equal(t, first, second)
}

func TestThresholdClassifier_Severity(t *testing.T) {
	classifier := NewThresholdClassifier(nil)

	severe := classifier.Classify(domain.Observation{SpermCountM: domain.Float(3)})
	assert.Equal(t, domain.SeverityHigh, severe[domain.MALE_FACTOR_COUNT].Severity)

	moderate := classifier.Classify(domain.Observation{SpermCountM: domain.Float(10)})
	assert.Equal(t, domain.SeverityMedium, moderate[domain.MALE_FACTOR_COUNT].Severity)

	atSevereLimit := classifier.Classify(domain.Observation{SpermCountM: domain.Float(5)})
	assert.Equal(t, domain.SeverityMedium, atSevereLimit[domain.MALE_FACTOR_COUNT].Severity)

	dor := classifier.Classify(domain.Observation{FSHmIUmL: domain.Float(20)})
	assert.Equal(t, domain.SeverityHigh, dor.MaxSeverity())
}

func TestThresholdClassifier_EvaluateRule(t *testing.T) {
	classifier := NewThresholdClassifier(nil)

	finding, fired, err := classifier.EvaluateRule(domain.HYPERPROLACTINEMIA, domain.Observation{ProlactinNgMl: domain.Float(26)})
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, domain.HYPERPROLACTINEMIA, finding.Code)

	_, fired, err = classifier.EvaluateRule(domain.HYPERPROLACTINEMIA, domain.Observation{})
	require.NoError(t, err)
	assert.False(t, fired)

	_, _, err = classifier.EvaluateRule(domain.FindingCode("NOPE"), domain.Observation{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestThresholdClassifier_Rules(t *testing.T) {
	rules := NewThresholdClassifier(nil).Rules()
	require.Len(t, rules, len(domain.AllFindingCodes))
	for i, rule := range rules {
		assert.Equal(t, domain.AllFindingCodes[i], rule.Code)
		assert.NotEmpty(t, rule.Description)
	}
}
