package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/domain"
)

// Thresholds used by the classifier. All comparisons are strict.
const (
	pcosAMHThreshold      = 3.5  // ng/mL, AMH above suggests PCOS with irregular cycles
	pcosLHFSHRatio        = 3.0  // LH/FSH ratio above suggests PCOS with irregular cycles
	dorFSHThreshold       = 12.0 // mIU/mL, FSH above suggests diminished reserve
	dorAMHThreshold       = 1.0  // ng/mL, AMH below suggests diminished reserve
	tshLowerLimit         = 0.4  // mIU/mL
	tshUpperLimit         = 4.0  // mIU/mL
	prolactinUpperLimit   = 25.0 // ng/mL
	ovulatoryProgesterone = 12.0 // ng/mL, mid-luteal progesterone below suggests anovulation
	spermCountLowerLimit  = 15.0 // million/mL (WHO lower reference limit)
	spermCountSevereLimit = 5.0  // million/mL, severe oligozoospermia
	motilityLowerLimit    = 40.0 // percent
	morphologyLowerLimit  = 4.0  // percent normal forms
	pusCellsUpperLimit    = 1.0  // million/mL
)

// ClassificationRule is one independent threshold rule.
type ClassificationRule struct {
	Code        domain.FindingCode
	Description string
	// Evaluate returns the finding and true when the rule fires. A rule whose
	// inputs are missing does not fire.
	Evaluate func(obs domain.Observation) (domain.Finding, bool)
}

// ThresholdClassifier turns an observation into a set of findings.
// It holds no mutable state and is safe for concurrent use.
type ThresholdClassifier struct {
	logger *logrus.Logger
	rules  map[domain.FindingCode]*ClassificationRule
}

// NewThresholdClassifier creates a classifier with the full rule table.
func NewThresholdClassifier(logger *logrus.Logger) *ThresholdClassifier {
	c := &ThresholdClassifier{
		logger: logger,
		rules:  make(map[domain.FindingCode]*ClassificationRule),
	}
	c.initializeRules()
	return c
}

// Classify evaluates every rule against the observation. It is pure and total:
// missing fields only disable the rules that need them.
func (c *ThresholdClassifier) Classify(obs domain.Observation) domain.FindingSet {
	findings := make(domain.FindingSet)

	for _, code := range domain.AllFindingCodes {
		rule, ok := c.rules[code]
		if !ok {
			continue
		}
		if finding, fired := rule.Evaluate(obs); fired {
			findings.Add(finding)
		}
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"findings":     findings.Codes(),
			"max_severity": findings.MaxSeverity(),
		}).Debug("Observation classified")
	}

	return findings
}

// EvaluateRule runs a single rule by finding code.
func (c *ThresholdClassifier) EvaluateRule(code domain.FindingCode, obs domain.Observation) (domain.Finding, bool, error) {
	rule, ok := c.rules[code]
	if !ok {
		return domain.Finding{}, false, fmt.Errorf("classification rule %s: %w", code, domain.ErrNotFound)
	}
	finding, fired := rule.Evaluate(obs)
	return finding, fired, nil
}

// Rules returns the rule table in canonical order.
func (c *ThresholdClassifier) Rules() []ClassificationRule {
	out := make([]ClassificationRule, 0, len(c.rules))
	for _, code := range domain.AllFindingCodes {
		if rule, ok := c.rules[code]; ok {
			out = append(out, *rule)
		}
	}
	return out
}

func (c *ThresholdClassifier) register(rule *ClassificationRule) {
	c.rules[rule.Code] = rule
}

func (c *ThresholdClassifier) initializeRules() {
	c.register(&ClassificationRule{
		Code:        domain.PCOS_SUSPECTED,
		Description: "Irregular cycle with AMH > 3.5 ng/mL or LH/FSH ratio > 3",
		Evaluate:    evaluatePCOS,
	})
	c.register(&ClassificationRule{
		Code:        domain.DIMINISHED_OVARIAN_RESERVE,
		Description: "FSH > 12 mIU/mL or AMH < 1 ng/mL",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			fired := above(obs.FSHmIUmL, dorFSHThreshold) || below(obs.AMHNgMl, dorAMHThreshold)
			return finding(domain.DIMINISHED_OVARIAN_RESERVE, domain.SeverityHigh), fired
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.THYROID_DISORDER,
		Description: "TSH < 0.4 or > 4 mIU/mL",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			fired := below(obs.TSHmIUmL, tshLowerLimit) || above(obs.TSHmIUmL, tshUpperLimit)
			return finding(domain.THYROID_DISORDER, domain.SeverityMedium), fired
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.HYPERPROLACTINEMIA,
		Description: "Prolactin > 25 ng/mL",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			return finding(domain.HYPERPROLACTINEMIA, domain.SeverityMedium), above(obs.ProlactinNgMl, prolactinUpperLimit)
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.ANOVULATION_SUSPECTED,
		Description: "Mid-luteal progesterone < 12 ng/mL",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			return finding(domain.ANOVULATION_SUSPECTED, domain.SeverityMedium), below(obs.ProgesteroneNgMl, ovulatoryProgesterone)
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.MALE_FACTOR_COUNT,
		Description: "Sperm concentration < 15 million/mL",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			if !below(obs.SpermCountM, spermCountLowerLimit) {
				return domain.Finding{}, false
			}
			severity := domain.SeverityMedium
			if below(obs.SpermCountM, spermCountSevereLimit) {
				severity = domain.SeverityHigh
			}
			return finding(domain.MALE_FACTOR_COUNT, severity), true
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.MALE_FACTOR_MOTILITY,
		Description: "Total motility < 40%",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			return finding(domain.MALE_FACTOR_MOTILITY, domain.SeverityMedium), below(obs.MotilityPct, motilityLowerLimit)
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.MALE_FACTOR_MORPHOLOGY,
		Description: "Normal forms < 4%",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			return finding(domain.MALE_FACTOR_MORPHOLOGY, domain.SeverityMedium), below(obs.MorphologyPct, morphologyLowerLimit)
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.LEUKOCYTOSPERMIA,
		Description: "Pus cells > 1 million/mL",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			return finding(domain.LEUKOCYTOSPERMIA, domain.SeverityLow), above(obs.PusCellsM, pusCellsUpperLimit)
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.BILATERAL_TUBAL_BLOCKAGE,
		Description: "Both tubes blocked on HSG or laparoscopy",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			return finding(domain.BILATERAL_TUBAL_BLOCKAGE, domain.SeverityHigh), obs.TubalPatency == domain.TubalBilateralBlocked
		},
	})
	c.register(&ClassificationRule{
		Code:        domain.UTERINE_PATHOLOGY,
		Description: "Assessed uterine cavity is not normal",
		Evaluate: func(obs domain.Observation) (domain.Finding, bool) {
			fired := obs.UterineCavity != "" && obs.UterineCavity != domain.CavityNormal
			return finding(domain.UTERINE_PATHOLOGY, domain.SeverityMedium), fired
		},
	})
}

// evaluatePCOS requires an explicitly irregular cycle plus either a high AMH or
// an LH/FSH ratio above 3. The ratio needs both hormones; a zero FSH makes it
// infinite and 0/0 never fires.
func evaluatePCOS(obs domain.Observation) (domain.Finding, bool) {
	if obs.CycleRegular == nil || *obs.CycleRegular {
		return domain.Finding{}, false
	}

	highAMH := above(obs.AMHNgMl, pcosAMHThreshold)
	highRatio := false
	if obs.LHmIUmL != nil && obs.FSHmIUmL != nil {
		highRatio = *obs.LHmIUmL / *obs.FSHmIUmL > pcosLHFSHRatio
	}

	return finding(domain.PCOS_SUSPECTED, domain.SeverityMedium), highAMH || highRatio
}

func finding(code domain.FindingCode, severity domain.Severity) domain.Finding {
	return domain.Finding{Code: code, Severity: severity}
}

// above reports v > limit; a missing value never fires.
func above(v *float64, limit float64) bool {
	return v != nil && *v > limit
}

// below reports v < limit; a missing value never fires.
func below(v *float64, limit float64) bool {
	return v != nil && *v < limit
}
