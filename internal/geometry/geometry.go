// Package geometry turns normalized face landmarks into pixel-space measurements.
package geometry

import (
	"errors"

	"gonum.org/v1/gonum/floats"

	"github.com/example/face-score/internal/landmarks"
)

// ErrInvalidDimensions is returned for non-positive image sizes.
var ErrInvalidDimensions = errors.New("image width and height must be positive")

// Measurements holds the pixel distances the scorer works from.
type Measurements struct {
	// Thirds are forehead-brow, brow-nose and nose-chin lengths.
	Thirds         [3]float64
	FaceWidth      float64
	FaceLength     float64
	NoseWidth      float64
	UpperLipHeight float64
	LowerLipHeight float64
	// EyeLeftX and EyeRightX are the inner eye corners' horizontal pixel positions.
	EyeLeftX   float64
	EyeRightX  float64
	ImageWidth float64
}

// Extract scales the set to a width x height image and derives the measurements.
func Extract(set landmarks.Set, width, height int) (Measurements, error) {
	if width <= 0 || height <= 0 {
		return Measurements{}, ErrInvalidDimensions
	}
	if err := set.Validate(); err != nil {
		return Measurements{}, err
	}

	px := pixelSpace{set: set, w: float64(width), h: float64(height)}
	return Measurements{
		Thirds: [3]float64{
			px.dist(landmarks.ForeheadTop, landmarks.BrowCenter),
			px.dist(landmarks.BrowCenter, landmarks.NoseTip),
			px.dist(landmarks.NoseTip, landmarks.Chin),
		},
		FaceWidth:      px.dist(landmarks.FaceLeft, landmarks.FaceRight),
		FaceLength:     px.dist(landmarks.ForeheadTop, landmarks.Chin),
		NoseWidth:      px.dist(landmarks.NostrilLeft, landmarks.NostrilRight),
		UpperLipHeight: px.dist(landmarks.LipUpper, landmarks.LipMiddle),
		LowerLipHeight: px.dist(landmarks.LipMiddle, landmarks.LipLower),
		EyeLeftX:       px.at(landmarks.EyeLeftInner)[0],
		EyeRightX:      px.at(landmarks.EyeRightInner)[0],
		ImageWidth:     px.w,
	}, nil
}

type pixelSpace struct {
	set  landmarks.Set
	w, h float64
}

func (p pixelSpace) at(n landmarks.Name) []float64 {
	pt := p.set.At(n)
	return []float64{pt.X * p.w, pt.Y * p.h}
}

func (p pixelSpace) dist(a, b landmarks.Name) float64 {
	return floats.Distance(p.at(a), p.at(b), 2)
}
