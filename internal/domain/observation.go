package domain

import "math"

// Observation is an immutable snapshot of the inputs for one evaluation pass.
// A nil field means "not measured", never zero.
type Observation struct {
	// Anthropometrics
	WeightKg *float64 `json:"weightKg,omitempty" yaml:"weightKg,omitempty"`
	HeightCm *float64 `json:"heightCm,omitempty" yaml:"heightCm,omitempty"`

	// Cycle
	CycleRegular *bool `json:"cycleRegular,omitempty" yaml:"cycleRegular,omitempty"`

	// Hormones
	FSHmIUmL         *float64 `json:"fshMIUmL,omitempty" yaml:"fshMIUmL,omitempty"`
	LHmIUmL          *float64 `json:"lhMIUmL,omitempty" yaml:"lhMIUmL,omitempty"`
	E2PgMl           *float64 `json:"e2PgMl,omitempty" yaml:"e2PgMl,omitempty"`
	AMHNgMl          *float64 `json:"amhNgMl,omitempty" yaml:"amhNgMl,omitempty"`
	TSHmIUmL         *float64 `json:"tshMIUmL,omitempty" yaml:"tshMIUmL,omitempty"`
	ProlactinNgMl    *float64 `json:"prolactinNgMl,omitempty" yaml:"prolactinNgMl,omitempty"`
	ProgesteroneNgMl *float64 `json:"progesteroneNgMl,omitempty" yaml:"progesteroneNgMl,omitempty"`
	AFCCount         *float64 `json:"afcCount,omitempty" yaml:"afcCount,omitempty"`

	// Semen analysis
	SpermCountM   *float64 `json:"spermCountM,omitempty" yaml:"spermCountM,omitempty"`
	MotilityPct   *float64 `json:"motilityPct,omitempty" yaml:"motilityPct,omitempty"`
	MorphologyPct *float64 `json:"morphologyPct,omitempty" yaml:"morphologyPct,omitempty"`
	PusCellsM     *float64 `json:"pusCellsM,omitempty" yaml:"pusCellsM,omitempty"`

	// Structural
	TubalPatency  TubalPatency  `json:"tubalPatency,omitempty" yaml:"tubalPatency,omitempty"`
	UterineCavity UterineCavity `json:"uterineCavity,omitempty" yaml:"uterineCavity,omitempty"`
}

// Float returns a pointer to v. Handy for building observations in code.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}

// IsEmpty reports whether nothing at all was measured.
func (o Observation) IsEmpty() bool {
	for _, f := range o.numericFields() {
		if f.value != nil {
			return false
		}
	}
	return o.CycleRegular == nil && o.TubalPatency == "" && o.UterineCavity == ""
}

type numericField struct {
	name     string
	value    *float64
	positive bool
}

func (o Observation) numericFields() []numericField {
	return []numericField{
		{"weightKg", o.WeightKg, true},
		{"heightCm", o.HeightCm, true},
		{"fshMIUmL", o.FSHmIUmL, false},
		{"lhMIUmL", o.LHmIUmL, false},
		{"e2PgMl", o.E2PgMl, false},
		{"amhNgMl", o.AMHNgMl, false},
		{"tshMIUmL", o.TSHmIUmL, false},
		{"prolactinNgMl", o.ProlactinNgMl, false},
		{"progesteroneNgMl", o.ProgesteroneNgMl, false},
		{"afcCount", o.AFCCount, false},
		{"spermCountM", o.SpermCountM, false},
		{"motilityPct", o.MotilityPct, false},
		{"morphologyPct", o.MorphologyPct, false},
		{"pusCellsM", o.PusCellsM, false},
	}
}

// Validate checks the observation at an input boundary. Anthropometrics must be
// strictly positive, every other numeric must be non-negative, enums must be known.
// The classifier itself never calls this: it is total over well-typed input.
func (o Observation) Validate() error {
	for _, f := range o.numericFields() {
		if f.value == nil {
			continue
		}
		v := *f.value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError(f.name, "must be a finite number", v)
		}
		if f.positive && v <= 0 {
			return NewValidationError(f.name, "must be greater than zero", v)
		}
		if v < 0 {
			return NewValidationError(f.name, "must not be negative", v)
		}
	}

	if o.MotilityPct != nil && *o.MotilityPct > 100 {
		return NewValidationError("motilityPct", "must not exceed 100", *o.MotilityPct)
	}
	if o.MorphologyPct != nil && *o.MorphologyPct > 100 {
		return NewValidationError("morphologyPct", "must not exceed 100", *o.MorphologyPct)
	}
	if !o.TubalPatency.IsValid() {
		return NewValidationError("tubalPatency", "unknown tubal patency", string(o.TubalPatency))
	}
	if !o.UterineCavity.IsValid() {
		return NewValidationError("uterineCavity", "unknown uterine cavity finding", string(o.UterineCavity))
	}

	return nil
}
