package facefinder

import "golang.org/x/exp/rand"

const (
	// DefaultSeed seeds the perturbation stream at the start of every detection.
	DefaultSeed uint64 = 42
	// DefaultPerturbs is the number of perturbed localizer runs per pupil.
	DefaultPerturbs = 31
)

// Localizer refines a point inside a search region. It runs its own cascade
// perturbs times on randomly perturbed copies of roi, drawing from rng,
// and aggregates the estimates into a single point.
type Localizer interface {
	PerturbLocalize(img ImageParams, roi Similarity, rng *rand.Rand, perturbs int) Point
}

// PupilRefiner feeds a Localizer with a reproducible randomness stream.
// Reset must be called once per detection, not once per eye: both eyes of
// every face in a call draw from the same stream, in order.
type PupilRefiner struct {
	Localizer Localizer
	Seed      uint64
	Perturbs  int

	rng *rand.Rand
}

// NewPupilRefiner returns a refiner already reset to seed.
func NewPupilRefiner(l Localizer, seed uint64, perturbs int) *PupilRefiner {
	r := &PupilRefiner{
		Localizer: l,
		Seed:      seed,
		Perturbs:  perturbs,
	}
	r.Reset()
	return r
}

// Reset rewinds the randomness stream to its seed.
func (r *PupilRefiner) Reset() {
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(r.Seed))
		return
	}
	r.rng.Seed(r.Seed)
}

// Refine returns the pupil center estimated inside the eye region roi.
func (r *PupilRefiner) Refine(img ImageParams, roi Similarity) Point {
	if r.rng == nil {
		r.Reset()
	}
	return r.Localizer.PerturbLocalize(img, roi, r.rng, r.Perturbs)
}
