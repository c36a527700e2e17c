package facefinder

import (
	"math"
	"slices"
	"sort"
)

// MinScore is the confidence floor applied to clustered detections.
const MinScore = 40.0

// Detection is a square detection given by its center, edge size and score.
// Raw detections come out of the scan, clustered ones out of Clusterize.
type Detection struct {
	Center Point
	Size   float32
	Score  float32
}

// Rect returns the integer bounding box of the detection.
func (d Detection) Rect() Rect {
	return Rect{
		Left:   int(d.Center.X - d.Size/2),
		Top:    int(d.Center.Y - d.Size/2),
		Width:  uint(d.Size),
		Height: uint(d.Size),
	}
}

// IoU returns the intersection over union of the square boxes of a and b.
func IoU(a, b Detection) float64 {
	x1, y1, s1 := float64(a.Center.X), float64(a.Center.Y), float64(a.Size)
	x2, y2, s2 := float64(b.Center.X), float64(b.Center.Y), float64(b.Size)

	overX := math.Max(0, math.Min(x1+s1/2, x2+s2/2)-math.Max(x1-s1/2, x2-s2/2))
	overY := math.Max(0, math.Min(y1+s1/2, y2+s2/2)-math.Max(y1-s1/2, y2-s2/2))

	inter := overX * overY
	union := s1*s1 + s2*s2 - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Clusterize merges overlapping detections. The highest scoring detection not yet
// assigned becomes a cluster seed and absorbs every unassigned detection whose IoU
// with it exceeds threshold. A cluster keeps the seed geometry and the sum of the
// member scores. The result is ordered by descending score; equal scores keep the
// order in which they were encountered. The input slice is left untouched.
func Clusterize(dets []Detection, threshold float64) []Detection {
	sorted := slices.Clone(dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	assigned := make([]bool, len(sorted))
	clusters := make([]Detection, 0, len(sorted))

	for i, seed := range sorted {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		score := seed.Score

		for j := i + 1; j < len(sorted); j++ {
			if !assigned[j] && IoU(seed, sorted[j]) > threshold {
				assigned[j] = true
				score += sorted[j].Score
			}
		}
		clusters = append(clusters, Detection{
			Center: seed.Center,
			Size:   seed.Size,
			Score:  score,
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Score > clusters[j].Score
	})
	return clusters
}
