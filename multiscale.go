package facefinder

import (
	"iter"
	"math"
)

// Detector scores a single square window of a grayscale image.
// The second return value is the classifier's own accept decision:
// a rejected window produces no detection.
type Detector interface {
	Classify(img ImageParams, w Window) (float32, bool)
}

// Window is a square scan window centered at (Row, Col).
type Window struct {
	Row  int
	Col  int
	Size int
}

// Center returns the window center as an image point.
func (w Window) Center() Point {
	return Point{X: float32(w.Col), Y: float32(w.Row)}
}

// MultiScale holds the parameters of the sliding window scan.
// MinSize: the smallest window edge, in pixels.
// MaxSize: the largest window edge, in pixels.
// ShiftFactor: the scan step as a fraction of the current window size.
// ScaleFactor: the growth of the window size between two passes.
type MultiScale struct {
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
}

// Windows enumerates the scan windows of a rows x cols image by ascending size,
// then in raster order. Only windows lying fully inside the image are produced.
// The order is part of the contract: clustering breaks score ties by it.
func (ms MultiScale) Windows(rows, cols int) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if ms.MinSize < 1 || ms.ScaleFactor <= 1 {
			return
		}
		prev := 0
		for size := float64(ms.MinSize); size <= float64(ms.MaxSize); size *= ms.ScaleFactor {
			s := int(size)
			if s == prev {
				continue
			}
			prev = s

			step := int(math.Max(1, math.Round(float64(s)*ms.ShiftFactor)))
			offset := s/2 + 1

			for row := offset; row <= rows-offset; row += step {
				for col := offset; col <= cols-offset; col += step {
					if !yield(Window{Row: row, Col: col, Size: s}) {
						return
					}
				}
			}
		}
	}
}

// Run scans the image and returns a raw detection for every window accepted by d.
func (ms MultiScale) Run(d Detector, img ImageParams) []Detection {
	var dets []Detection
	for w := range ms.Windows(img.Rows, img.Cols) {
		if q, ok := d.Classify(img, w); ok {
			dets = append(dets, Detection{
				Center: w.Center(),
				Size:   float32(w.Size),
				Score:  q,
			})
		}
	}
	return dets
}
