package facefinder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

// jitterLocalizer averages perturbs random offsets of the region center.
type jitterLocalizer struct {
	calls    int
	perturbs []int
}

func (l *jitterLocalizer) PerturbLocalize(img ImageParams, roi Similarity, rng *rand.Rand, perturbs int) Point {
	l.calls++
	l.perturbs = append(l.perturbs, perturbs)

	var sx, sy float32
	for i := 0; i < perturbs; i++ {
		sx += roi.Scale * 0.1 * (0.5 - rng.Float32())
		sy += roi.Scale * 0.1 * (0.5 - rng.Float32())
	}
	n := float32(max(perturbs, 1))
	return Point{X: roi.Translation.X + sx/n, Y: roi.Translation.Y + sy/n}
}

func TestPupilRefiner_IsDeterministic(t *testing.T) {
	assert := assert.New(t)

	roi := Similarity{Translation: Point{X: 40, Y: 30}, Scale: 12}
	img := ImageParams{}

	r1 := NewPupilRefiner(&jitterLocalizer{}, DefaultSeed, DefaultPerturbs)
	r2 := NewPupilRefiner(&jitterLocalizer{}, DefaultSeed, DefaultPerturbs)

	for i := 0; i < 4; i++ {
		p1, p2 := r1.Refine(img, roi), r2.Refine(img, roi)
		assert.Equal(p1, p2)
		assert.True(roi.Contains(p1))
	}
}

func TestPupilRefiner_ResetRewindsTheStream(t *testing.T) {
	assert := assert.New(t)

	roi := Similarity{Translation: Point{X: 40, Y: 30}, Scale: 12}
	r := NewPupilRefiner(&jitterLocalizer{}, DefaultSeed, DefaultPerturbs)

	first := r.Refine(ImageParams{}, roi)
	second := r.Refine(ImageParams{}, roi)
	assert.NotEqual(first, second, "consecutive eyes should draw from the same running stream")

	r.Reset()
	assert.Equal(first, r.Refine(ImageParams{}, roi))
	assert.Equal(second, r.Refine(ImageParams{}, roi))
}

func TestPupilRefiner_ForwardsThePerturbations(t *testing.T) {
	assert := assert.New(t)

	l := &jitterLocalizer{}
	r := &PupilRefiner{Localizer: l, Seed: 7, Perturbs: 5}
	r.Refine(ImageParams{}, Similarity{Scale: 1})
	r.Refine(ImageParams{}, Similarity{Scale: 1})

	assert.Equal(2, l.calls)
	assert.Equal([]int{5, 5}, l.perturbs)

	roi := Similarity{Translation: Point{X: 40, Y: 30}, Scale: 12}
	a := NewPupilRefiner(&jitterLocalizer{}, 1, DefaultPerturbs).Refine(ImageParams{}, roi)
	b := NewPupilRefiner(&jitterLocalizer{}, 2, DefaultPerturbs).Refine(ImageParams{}, roi)
	assert.NotEqual(a, b, "the seed should drive the perturbations")
}
