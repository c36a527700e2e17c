package cascade

import (
	"github.com/esimov/facefinder"
	"golang.org/x/exp/rand"
)

// Names of the facial landmark cascades used by the Shaper.
const (
	OuterEyeCorner = "lp46"
	InnerEyeCorner = "lp44"
	Nose           = "lp312"
)

// Shaper predicts the five point landmark shape of a face. It first locates the two
// pupils inside the face box, then anchors the landmark cascades between them. Every
// landmark cascade runs plain and mirrored, one run for each side of the face.
type Shaper struct {
	Pupils      *Cascade
	OuterCorner *Cascade
	InnerCorner *Cascade
	Nose        *Cascade

	Perturbs int
	Seed     uint64
}

// NewShaper returns a Shaper with the default perturbation settings.
func NewShaper(pupils, outer, inner, nose *Cascade) *Shaper {
	return &Shaper{
		Pupils:      pupils,
		OuterCorner: outer,
		InnerCorner: inner,
		Nose:        nose,
		Perturbs:    facefinder.DefaultPerturbs,
		Seed:        facefinder.DefaultSeed,
	}
}

// Predict returns the landmark points of the face found inside rect, ordered as
// left outer eye corner, left inner eye corner, right outer eye corner,
// right inner eye corner and nose. Left and right are image sides.
func (sh *Shaper) Predict(img facefinder.ImageParams, rect facefinder.Rect) []facefinder.Point {
	rng := rand.New(rand.NewSource(sh.Seed))

	s := float32(rect.Width)
	cx := float32(rect.Left) + s/2
	cy := float32(rect.Top) + float32(rect.Height)/2

	left := sh.Pupils.perturbLocalize(img, facefinder.Similarity{
		Translation: facefinder.Point{X: cx - 0.185*s, Y: cy - 0.085*s},
		Scale:       0.4 * s,
	}, rng, sh.Perturbs, false)
	right := sh.Pupils.perturbLocalize(img, facefinder.Similarity{
		Translation: facefinder.Point{X: cx + 0.185*s, Y: cy - 0.085*s},
		Scale:       0.4 * s,
	}, rng, sh.Perturbs, false)

	anchor := landmarkAnchor(left, right)

	lo, ro := sh.pair(sh.OuterCorner, img, anchor, rng)
	li, ri := sh.pair(sh.InnerCorner, img, anchor, rng)
	n1, n2 := sh.pair(sh.Nose, img, anchor, rng)

	return []facefinder.Point{lo, li, ro, ri, facefinder.Center(n1, n2)}
}

// pair runs the landmark cascade plain and mirrored and returns
// the two estimates ordered from left to right.
func (sh *Shaper) pair(c *Cascade, img facefinder.ImageParams, anchor facefinder.Similarity, rng *rand.Rand) (facefinder.Point, facefinder.Point) {
	a := c.perturbLocalize(img, anchor, rng, sh.Perturbs, false)
	b := c.perturbLocalize(img, anchor, rng, sh.Perturbs, true)
	if b.X < a.X {
		return b, a
	}
	return a, b
}

// landmarkAnchor returns the search region of the landmark cascades,
// placed below the pupils and scaled by their distance.
func landmarkAnchor(left, right facefinder.Point) facefinder.Similarity {
	dist := facefinder.Distance(left, right)
	mid := facefinder.Center(left, right)

	return facefinder.Similarity{
		Translation: facefinder.Point{X: mid.X + 0.15*dist, Y: mid.Y + 0.25*dist},
		Scale:       3 * dist,
	}
}
