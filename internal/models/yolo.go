package models

import (
	"image"
	"image/color"
	"math"
	"slices"

	"gocv.io/x/gocv"
)

const letterboxFill = 114

// letterbox records how a source image was scaled and padded into the square
// model input so boxes can be mapped back.
type letterbox struct {
	scale      float32
	left, top  int
	srcW, srcH int
}

// newLetterbox computes the aspect-preserving resize and centered padding for a
// w x h image placed in a size x size canvas.
func newLetterbox(w, h, size int) letterbox {
	r := min(float64(size)/float64(h), float64(size)/float64(w))
	nw := int(math.Round(float64(w) * r))
	nh := int(math.Round(float64(h) * r))
	dw := float64(size-nw) / 2
	dh := float64(size-nh) / 2

	return letterbox{
		scale: float32(r),
		left:  int(math.Round(dw - 0.1)),
		top:   int(math.Round(dh - 0.1)),
		srcW:  w,
		srcH:  h,
	}
}

func (l letterbox) resized() image.Point {
	return image.Pt(
		int(math.Round(float64(l.srcW)*float64(l.scale))),
		int(math.Round(float64(l.srcH)*float64(l.scale))),
	)
}

// blob renders img into a normalized NCHW RGB float buffer of size x size.
func (l letterbox) blob(img gocv.Mat, size int) ([]float32, error) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, l.resized(), 0, 0, gocv.InterpolationLinear)

	sz := l.resized()
	right := size - sz.X - l.left
	bottom := size - sz.Y - l.top

	padded := gocv.NewMat()
	defer padded.Close()
	fill := color.RGBA{R: letterboxFill, G: letterboxFill, B: letterboxFill}
	gocv.CopyMakeBorder(resized, &padded, l.top, bottom, l.left, right, gocv.BorderConstant, fill)

	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	return slices.Clone(data), nil
}

// restore maps a box from model input space back to clipped source coordinates.
func (l letterbox) restore(b Box) Box {
	unmap := func(v float32, pad int, limit int) float32 {
		v = (v - float32(pad)) / l.scale
		return max(0, min(v, float32(limit)))
	}
	return Box{
		X1: unmap(b.X1, l.left, l.srcW),
		Y1: unmap(b.Y1, l.top, l.srcH),
		X2: unmap(b.X2, l.left, l.srcW),
		Y2: unmap(b.Y2, l.top, l.srcH),
	}
}

// decodeYOLO reads a (4+classes, anchors) row-major prediction block where the
// first four rows are center x, center y, width, and height. Each anchor keeps
// its best class when that score exceeds confidence.
func decodeYOLO(out []float32, classes, anchors int, confidence float32) []Detection {
	var dets []Detection

	for a := range anchors {
		best, cls := float32(0), -1
		for c := range classes {
			if s := out[(4+c)*anchors+a]; s > best {
				best, cls = s, c
			}
		}
		if cls < 0 || best <= confidence {
			continue
		}

		cx, cy := out[a], out[anchors+a]
		w, h := out[2*anchors+a], out[3*anchors+a]

		dets = append(dets, Detection{
			ClassID: cls,
			Box: Box{
				X1: cx - w/2,
				Y1: cy - h/2,
				X2: cx + w/2,
				Y2: cy + h/2,
			},
			Score: best,
		})
	}

	return dets
}

// nms performs class-aware non-maximum suppression, keeping at most limit
// detections in descending score order.
func nms(dets []Detection, iou float32, limit int) []Detection {
	sorted := slices.Clone(dets)
	slices.SortStableFunc(sorted, func(a, b Detection) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	var kept []Detection
	for _, d := range sorted {
		if limit > 0 && len(kept) >= limit {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && overlap(k.Box, d.Box) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}

	return kept
}

func overlap(a, b Box) float32 {
	iw := min(a.X2, b.X2) - max(a.X1, b.X1)
	ih := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
