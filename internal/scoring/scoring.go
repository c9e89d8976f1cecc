// Package scoring grades face measurements against fixed proportion ideals.
//
// The grading is deliberately harsh: ratio categories get full credit only
// within 5% of their ideal and nothing beyond 20%.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/example/face-score/internal/geometry"
)

// Tolerance curve breakpoints, as relative deviation from the ideal.
const (
	FullCreditDeviation = 0.05
	ZeroCreditDeviation = 0.2
	// NormalizedMax is the curve's value at full credit, before category weighting.
	NormalizedMax = 10.0
)

// Ideal reference ratios.
const (
	GoldenRatio          = 1.618
	IdealNoseToFaceWidth = 0.28
	IdealUpperToLowerLip = 1 / 1.6
	// LipEpsilon keeps the lip ratio finite when the lower lip collapses.
	LipEpsilon = 1e-6
)

// Category ceilings and weights on the 100 point scale.
const (
	ThirdsCeiling   = 20.0
	FaceRatioWeight = 5.0
	SymmetryCeiling = 25.0
	NoseWeight      = 5.0
	LipWeight       = 5.0
	TotalCeiling    = 100.0
)

// Category names, in report order.
const (
	Thirds    = "thirds"
	FaceRatio = "face_ratio"
	Symmetry  = "symmetry"
	Nose      = "nose"
	Lip       = "lip"
)

// Category is one graded aspect of the face.
type Category struct {
	Name string `json:"name"`
	// Measurement is the graded value before weighting.
	Measurement float64 `json:"measurement"`
	Points      float64 `json:"points"`
	// Ceiling is the nominal maximum shown in the report. Ratio categories
	// weight the 0-10 curve by their ceiling, so their points reach 10x it.
	Ceiling float64 `json:"ceiling"`
}

// Scores is the structured result of grading one face.
type Scores struct {
	Total      float64    `json:"total"`
	Categories []Category `json:"categories"`
}

// Deviation is the relative error |actual-ideal|/ideal.
func Deviation(actual, ideal float64) float64 {
	return math.Abs(actual-ideal) / ideal
}

// RatioScore maps actual against ideal onto the 0-10 tolerance curve.
func RatioScore(actual, ideal float64) float64 {
	dev := Deviation(actual, ideal)
	switch {
	case dev <= FullCreditDeviation:
		return NormalizedMax
	case dev <= ZeroCreditDeviation:
		return NormalizedMax * (ZeroCreditDeviation - dev) / (ZeroCreditDeviation - FullCreditDeviation)
	default:
		return 0
	}
}

// ThirdsDeviation is the mean relative deviation of each third from their mean.
func ThirdsDeviation(thirds [3]float64) float64 {
	mean := stat.Mean(thirds[:], nil)
	devs := make([]float64, len(thirds))
	for i, third := range thirds {
		devs[i] = math.Abs(third-mean) / mean
	}
	return stat.Mean(devs, nil)
}

// ThirdsScore penalizes thirds deviation at twice its rate, within [0,20].
func ThirdsScore(dev float64) float64 {
	return clamp(ThirdsCeiling*(1-dev*2), 0, ThirdsCeiling)
}

// SymmetryFactor is 1 when the inner eye corners are centred on the image and
// falls off linearly with the offset of their sum from the image width. It is
// negative when the offset exceeds the width.
func SymmetryFactor(eyeLeftX, eyeRightX, imageWidth float64) float64 {
	return 1 - math.Abs((eyeLeftX+eyeRightX)-imageWidth)/imageWidth
}

// Score grades m. Only the thirds category is clamped on its own; the total is
// clamped to [0,100].
func Score(m geometry.Measurements) Scores {
	thirdsDev := ThirdsDeviation(m.Thirds)
	faceRatio := m.FaceLength / m.FaceWidth
	sym := SymmetryFactor(m.EyeLeftX, m.EyeRightX, m.ImageWidth)
	noseRatio := m.NoseWidth / m.FaceWidth
	lipRatio := m.UpperLipHeight / (m.LowerLipHeight + LipEpsilon)

	categories := []Category{
		{Name: Thirds, Measurement: thirdsDev, Points: ThirdsScore(thirdsDev), Ceiling: ThirdsCeiling},
		{Name: FaceRatio, Measurement: faceRatio, Points: RatioScore(faceRatio, GoldenRatio) * FaceRatioWeight, Ceiling: FaceRatioWeight},
		{Name: Symmetry, Measurement: sym, Points: sym * SymmetryCeiling, Ceiling: SymmetryCeiling},
		{Name: Nose, Measurement: noseRatio, Points: RatioScore(noseRatio, IdealNoseToFaceWidth) * NoseWeight, Ceiling: NoseWeight},
		{Name: Lip, Measurement: lipRatio, Points: RatioScore(lipRatio, IdealUpperToLowerLip) * LipWeight, Ceiling: LipWeight},
	}

	var sum float64
	for _, c := range categories {
		sum += c.Points
	}
	return Scores{Total: clamp(sum, 0, TotalCeiling), Categories: categories}
}

// Category looks up a category by name.
func (s Scores) Category(name string) (Category, bool) {
	for _, c := range s.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Map flattens the points per category, plus "total".
func (s Scores) Map() map[string]float64 {
	out := make(map[string]float64, len(s.Categories)+1)
	for _, c := range s.Categories {
		out[c.Name] = c.Points
	}
	out["total"] = s.Total
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
