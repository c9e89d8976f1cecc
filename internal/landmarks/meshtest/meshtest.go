// Package meshtest builds synthetic face mesh landmark sets for tests.
package meshtest

import "github.com/example/face-score/internal/landmarks"

// Size of the synthetic image the ideal face is drawn on.
const (
	Width  = 400
	Height = 400
)

// RefinedMeshSize is the landmark count of the refined face mesh.
const RefinedMeshSize = 478

// Pixels places named landmarks in pixel coordinates.
type Pixels map[landmarks.Name][2]float64

// Ideal returns a face on a Width x Height image with equal thirds of 100px,
// a golden length/width ratio, nose width at 0.28 of face width, a 10:16 lip
// split and inner eye corners centred on the image.
func Ideal() Pixels {
	faceWidth := 300 / 1.618
	noseWidth := 0.28 * faceWidth
	return Pixels{
		landmarks.ForeheadTop:   {200, 50},
		landmarks.BrowCenter:    {200, 150},
		landmarks.NoseTip:       {200, 250},
		landmarks.Chin:          {200, 350},
		landmarks.FaceLeft:      {200 - faceWidth/2, 200},
		landmarks.FaceRight:     {200 + faceWidth/2, 200},
		landmarks.EyeLeftInner:  {170, 140},
		landmarks.EyeRightInner: {230, 140},
		landmarks.NostrilLeft:   {200 - noseWidth/2, 260},
		landmarks.NostrilRight:  {200 + noseWidth/2, 260},
		landmarks.LipUpper:      {200, 280},
		landmarks.LipMiddle:     {200, 290},
		landmarks.LipLower:      {200, 306},
	}
}

// With returns a copy of p with the given landmark moved.
func (p Pixels) With(n landmarks.Name, x, y float64) Pixels {
	out := make(Pixels, len(p))
	for k, v := range p {
		out[k] = v
	}
	out[n] = [2]float64{x, y}
	return out
}

// Set normalizes p against a width x height image into a refined mesh. Unnamed
// indices sit at the image centre.
func (p Pixels) Set(width, height int) landmarks.Set {
	set := make(landmarks.Set, RefinedMeshSize)
	for i := range set {
		set[i] = landmarks.Point{X: 0.5, Y: 0.5}
	}
	for name, xy := range p {
		i, ok := landmarks.Index(name)
		if !ok {
			continue
		}
		set[i] = landmarks.Point{X: xy[0] / float64(width), Y: xy[1] / float64(height)}
	}
	return set
}
