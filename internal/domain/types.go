// Package domain contains the core entities of the fertility clinical decision support engine:
// observations, findings, the diagnostic decision graph, medication recommendations and
// prescription drafts.
//
// Identifiers in this package are stable keys, never display text. Rendering a finding or a
// decision node in a given human language is the presentation layer's job.
package domain

// FindingCode identifies a flagged clinical condition. The set is closed.
type FindingCode string

const (
	PCOS_SUSPECTED             FindingCode = "PCOS_SUSPECTED"
	DIMINISHED_OVARIAN_RESERVE FindingCode = "DIMINISHED_OVARIAN_RESERVE"
	THYROID_DISORDER           FindingCode = "THYROID_DISORDER"
	HYPERPROLACTINEMIA         FindingCode = "HYPERPROLACTINEMIA"
	ANOVULATION_SUSPECTED      FindingCode = "ANOVULATION_SUSPECTED"
	MALE_FACTOR_COUNT          FindingCode = "MALE_FACTOR_COUNT"
	MALE_FACTOR_MOTILITY       FindingCode = "MALE_FACTOR_MOTILITY"
	MALE_FACTOR_MORPHOLOGY     FindingCode = "MALE_FACTOR_MORPHOLOGY"
	LEUKOCYTOSPERMIA           FindingCode = "LEUKOCYTOSPERMIA"
	BILATERAL_TUBAL_BLOCKAGE   FindingCode = "BILATERAL_TUBAL_BLOCKAGE"
	UTERINE_PATHOLOGY          FindingCode = "UTERINE_PATHOLOGY"
)

// AllFindingCodes lists every finding code in canonical order.
var AllFindingCodes = []FindingCode{
	PCOS_SUSPECTED,
	DIMINISHED_OVARIAN_RESERVE,
	THYROID_DISORDER,
	HYPERPROLACTINEMIA,
	ANOVULATION_SUSPECTED,
	MALE_FACTOR_COUNT,
	MALE_FACTOR_MOTILITY,
	MALE_FACTOR_MORPHOLOGY,
	LEUKOCYTOSPERMIA,
	BILATERAL_TUBAL_BLOCKAGE,
	UTERINE_PATHOLOGY,
}

// IsValid reports whether the code belongs to the closed enumeration.
func (c FindingCode) IsValid() bool {
	switch c {
	case PCOS_SUSPECTED, DIMINISHED_OVARIAN_RESERVE, THYROID_DISORDER, HYPERPROLACTINEMIA,
		ANOVULATION_SUSPECTED, MALE_FACTOR_COUNT, MALE_FACTOR_MOTILITY, MALE_FACTOR_MORPHOLOGY,
		LEUKOCYTOSPERMIA, BILATERAL_TUBAL_BLOCKAGE, UTERINE_PATHOLOGY:
		return true
	default:
		return false
	}
}

// String returns the string representation of the finding code.
func (c FindingCode) String() string {
	return string(c)
}

// IsMaleFactor reports whether the finding comes from the semen analysis.
func (c FindingCode) IsMaleFactor() bool {
	switch c {
	case MALE_FACTOR_COUNT, MALE_FACTOR_MOTILITY, MALE_FACTOR_MORPHOLOGY, LEUKOCYTOSPERMIA:
		return true
	default:
		return false
	}
}

// Severity grades how urgently a finding needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid validates the severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Rank orders severities so that higher is more severe. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// TubalPatency is the result of tubal assessment (HSG or laparoscopy).
// The empty value means the tubes were not assessed.
type TubalPatency string

const (
	TubalUnknown          TubalPatency = "unknown"
	TubalBilateralPatent  TubalPatency = "bilateralPatent"
	TubalBilateralBlocked TubalPatency = "bilateralBlocked"
	TubalRightBlocked     TubalPatency = "rightBlocked"
	TubalLeftBlocked      TubalPatency = "leftBlocked"
)

// IsValid validates the tubal patency value. The empty value is accepted.
func (t TubalPatency) IsValid() bool {
	switch t {
	case "", TubalUnknown, TubalBilateralPatent, TubalBilateralBlocked, TubalRightBlocked, TubalLeftBlocked:
		return true
	default:
		return false
	}
}

// UterineCavity is the result of uterine cavity assessment.
// The empty value means the cavity was not assessed.
type UterineCavity string

const (
	CavityNormal      UterineCavity = "normal"
	CavityFibroids    UterineCavity = "fibroids"
	CavityPolyps      UterineCavity = "polyps"
	CavitySeptate     UterineCavity = "septate"
	CavityHypoplastic UterineCavity = "hypoplastic"
	CavityAsherman    UterineCavity = "asherman"
)

// IsValid validates the uterine cavity value. The empty value is accepted.
func (u UterineCavity) IsValid() bool {
	switch u {
	case "", CavityNormal, CavityFibroids, CavityPolyps, CavitySeptate, CavityHypoplastic, CavityAsherman:
		return true
	default:
		return false
	}
}

// BMIBand is the weight category derived from a body mass index.
type BMIBand string

const (
	BMIUnderweight BMIBand = "underweight"
	BMINormal      BMIBand = "normal"
	BMIOverweight  BMIBand = "overweight"
	BMIObese       BMIBand = "obese"
)

// NodeKind distinguishes question nodes from terminal nodes in a decision graph.
type NodeKind string

const (
	NodeQuestion NodeKind = "question"
	NodeTerminal NodeKind = "terminal"
)

// IsValid validates the node kind.
func (k NodeKind) IsValid() bool {
	return k == NodeQuestion || k == NodeTerminal
}
