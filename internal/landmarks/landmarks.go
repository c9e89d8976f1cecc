package landmarks

import (
	"errors"
	"fmt"
	"math"
)

// Topology identifies the detector mesh the index table below is written against.
// Providers must return landmarks in this topology.
const Topology = "mediapipe-face-mesh-v1"

// MinLandmarks is the smallest set length that covers every named index.
const MinLandmarks = 455

var (
	// ErrIncompleteSet is returned when a set does not cover the named indices.
	ErrIncompleteSet = errors.New("landmark set does not cover the face mesh topology")
	// ErrInvalidPoint is returned when a coordinate is not finite or falls outside [0,1].
	ErrInvalidPoint = errors.New("landmark outside normalized image bounds")
)

// Name is a semantic facial landmark.
type Name string

const (
	ForeheadTop   Name = "forehead_top"
	BrowCenter    Name = "brow_center"
	NoseTip       Name = "nose_tip"
	Chin          Name = "chin"
	FaceLeft      Name = "face_left"
	FaceRight     Name = "face_right"
	EyeLeftInner  Name = "eye_left_inner"
	EyeRightInner Name = "eye_right_inner"
	NostrilLeft   Name = "nostril_left"
	NostrilRight  Name = "nostril_right"
	LipUpper      Name = "lip_upper"
	LipMiddle     Name = "lip_middle"
	LipLower      Name = "lip_lower"
)

// indices maps names to face mesh landmark indices.
var indices = map[Name]int{
	ForeheadTop:   10,
	BrowCenter:    9,
	NoseTip:       2,
	Chin:          152,
	FaceLeft:      234,
	FaceRight:     454,
	EyeLeftInner:  133,
	EyeRightInner: 362,
	NostrilLeft:   98,
	NostrilRight:  327,
	LipUpper:      13,
	LipMiddle:     14,
	LipLower:      17,
}

// Index returns the mesh index of a named landmark.
func Index(n Name) (int, bool) {
	i, ok := indices[n]
	return i, ok
}

// Point is a landmark in normalized image coordinates, each axis in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Set is the ordered landmark output for a single face.
type Set []Point

// Validate reports whether every named landmark is present and every point
// lies inside the normalized image.
func (s Set) Validate() error {
	if len(s) < MinLandmarks {
		return fmt.Errorf("%w: got %d landmarks, need at least %d", ErrIncompleteSet, len(s), MinLandmarks)
	}
	for i, p := range s {
		if !normalized(p.X) || !normalized(p.Y) {
			return fmt.Errorf("%w: index %d at (%v, %v)", ErrInvalidPoint, i, p.X, p.Y)
		}
	}
	return nil
}

// NaN fails both comparisons.
func normalized(v float64) bool {
	return v >= 0 && v <= 1 && !math.IsInf(v, 0)
}

// At returns the point for a named landmark. The set must have passed Validate.
func (s Set) At(n Name) Point {
	i, ok := indices[n]
	if !ok {
		panic(fmt.Sprintf("landmarks: unknown name %q", n))
	}
	return s[i]
}
