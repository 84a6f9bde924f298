package region

import (
	"image"
	"slices"

	"github.com/JaimeStill/pallor/internal/models"
)

// Kind tags the outcome of region selection.
type Kind int

const (
	// Fallback means no accepted detection was found and the full image is used.
	Fallback Kind = iota
	// Detected means a detection box was selected.
	Detected
)

func (k Kind) String() string {
	if k == Detected {
		return "detected"
	}
	return "fallback"
}

// Box is an integer pixel box with X1<X2 and Y1<Y2 after clamping.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Area returns the box area; inverted boxes yield zero or negative values.
func (b Box) Area() int {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Clamp limits the box to a w x h image. It reports false when nothing remains.
func (b Box) Clamp(w, h int) (Box, bool) {
	c := Box{
		X1: max(0, b.X1),
		Y1: max(0, b.Y1),
		X2: min(w, b.X2),
		Y2: min(h, b.Y2),
	}
	return c, c.X1 < c.X2 && c.Y1 < c.Y2
}

// Selection is the tagged result of choosing a region among detections.
type Selection struct {
	Kind  Kind
	Box   Box
	Label string
	Score float32
}

// Select returns the accepted detection with the strictly largest box area.
// Detection scores do not influence the choice, and ties keep the earliest
// detection. Without a positive-area accepted detection the result is Fallback.
func Select(dets []models.Detection, names map[int]string, accepted []string) Selection {
	var (
		best     Selection
		bestArea int
	)

	for _, d := range dets {
		label, ok := names[d.ClassID]
		if !ok || !slices.Contains(accepted, label) {
			continue
		}

		box := Box{
			X1: int(d.Box.X1),
			Y1: int(d.Box.Y1),
			X2: int(d.Box.X2),
			Y2: int(d.Box.Y2),
		}
		if area := box.Area(); area > bestArea {
			bestArea = area
			best = Selection{
				Kind:  Detected,
				Box:   box,
				Label: label,
				Score: d.Score,
			}
		}
	}

	return best
}
