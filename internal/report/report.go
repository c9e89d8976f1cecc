// Package report renders face scores as the fixed-format text report.
package report

import (
	"fmt"
	"strings"

	"github.com/example/face-score/internal/scoring"
)

// Sentinel texts for the two outcomes that produce no scores.
const (
	NoFace          = "no face detected"
	ImageUnreadable = "image unreadable"
)

// Disclaimer closes every scored report.
const Disclaimer = "These numbers are raw geometry only. They don't account for aesthetics, " +
	"expression, hairstyle, makeup, lighting, angle, etc. Use with caution!"

const title = "Raw Brutal Report"

var labels = map[string]string{
	scoring.Thirds:    "Vertical thirds deviation",
	scoring.FaceRatio: "Face ratio L/W",
	scoring.Symmetry:  "Symmetry factor",
	scoring.Nose:      "Nose width ratio",
	scoring.Lip:       "Lip balance ratio",
}

// Render formats s. The total is printed with one decimal, each category as
// "label: measurement -> points/ceiling".
func Render(s scoring.Scores) string {
	var b strings.Builder
	fmt.Fprintln(&b, title)
	fmt.Fprintf(&b, "Overall harsh score: %.1f/%.0f\n", s.Total, scoring.TotalCeiling)
	for _, c := range s.Categories {
		label, ok := labels[c.Name]
		if !ok {
			label = c.Name
		}
		fmt.Fprintf(&b, "%s: %.2f -> %.1f/%.0f\n", label, c.Measurement, c.Points, c.Ceiling)
	}
	b.WriteString(Disclaimer)
	return b.String()
}
