package service

import "github.com/fertility-cds-server/internal/domain"

// BMI band boundaries. Bands are half-open: each lower bound is inclusive.
const (
	bmiNormalFrom     = 18.5
	bmiOverweightFrom = 25.0
	bmiObeseFrom      = 30.0
)

// BMI computes weight / (height in metres)^2. It reports false when either
// value is missing or not positive.
func BMI(weightKg, heightCm *float64) (float64, bool) {
	if weightKg == nil || heightCm == nil || *weightKg <= 0 || *heightCm <= 0 {
		return 0, false
	}
	heightM := *heightCm / 100
	return *weightKg / (heightM * heightM), true
}

// ClassifyBMI maps a BMI value to its band.
func ClassifyBMI(bmi float64) domain.BMIBand {
	switch {
	case bmi < bmiNormalFrom:
		return domain.BMIUnderweight
	case bmi < bmiOverweightFrom:
		return domain.BMINormal
	case bmi < bmiObeseFrom:
		return domain.BMIOverweight
	default:
		return domain.BMIObese
	}
}

// ObservationBMI computes the BMI and band of an observation, if measurable.
func ObservationBMI(obs domain.Observation) (*float64, domain.BMIBand) {
	value, ok := BMI(obs.WeightKg, obs.HeightCm)
	if !ok {
		return nil, ""
	}
	return &value, ClassifyBMI(value)
}
