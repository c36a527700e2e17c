package cascade

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/esimov/facefinder"
	"github.com/esimov/facefinder/utils"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// maxDepth bounds the tree depth accepted by ParseCascade.
const maxDepth = 16

// Cascade is a regression tree cascade in the pico pupil localization format.
// The same format backs the pupil localizer and the facial landmark cascades.
// Each stage moves the current estimate by the sum of its tree outputs and
// shrinks the search scale by a fixed multiplier.
type Cascade struct {
	stages uint32
	scale  float32
	trees  uint32
	depth  uint32
	codes  []int8
	preds  []float32
}

// ParseCascade unpacks a cascade from its binary form:
// the number of stages, the scale multiplier, the number of trees per stage and
// the tree depth, followed by the node codes and the leaf predictions of every tree.
func ParseCascade(data []byte) (*Cascade, error) {
	const header = 16
	if len(data) < header {
		return nil, errors.Errorf("cascade too short: %d bytes", len(data))
	}
	c := &Cascade{
		stages: binary.LittleEndian.Uint32(data[0:]),
		scale:  math.Float32frombits(binary.LittleEndian.Uint32(data[4:])),
		trees:  binary.LittleEndian.Uint32(data[8:]),
		depth:  binary.LittleEndian.Uint32(data[12:]),
	}
	if c.depth == 0 || c.depth > maxDepth {
		return nil, errors.Errorf("invalid tree depth: %d", c.depth)
	}

	leaves := 1 << c.depth
	codeLen := 4*leaves - 4
	predLen := 2 * leaves
	ntrees := int(c.stages) * int(c.trees)

	if need := header + ntrees*(codeLen+4*predLen); len(data) != need {
		return nil, errors.Errorf("cascade size mismatch: got %d bytes, want %d", len(data), need)
	}

	c.codes = make([]int8, 0, ntrees*codeLen)
	c.preds = make([]float32, 0, ntrees*predLen)

	pos := header
	for t := 0; t < ntrees; t++ {
		for _, b := range data[pos : pos+codeLen] {
			c.codes = append(c.codes, int8(b))
		}
		pos += codeLen

		for i := 0; i < predLen; i++ {
			c.preds = append(c.preds, math.Float32frombits(binary.LittleEndian.Uint32(data[pos:])))
			pos += 4
		}
	}
	return c, nil
}

// Stages returns the number of stages of the cascade.
func (c *Cascade) Stages() int { return int(c.stages) }

// Localize runs the cascade once from the estimate (r, col, s): row, column and scale.
// With flipV the cascade is mirrored around the vertical axis, which lets a cascade
// trained for one side of the face locate its counterpart on the other side.
func (c *Cascade) Localize(img facefinder.ImageParams, r, col, s float32, flipV bool) (float32, float32, float32) {
	if len(img.Pixels) == 0 || img.Rows == 0 || img.Cols == 0 {
		return r, col, s
	}
	var flip = 1
	if flipV {
		flip = -1
	}
	leaves := 1 << c.depth
	root := 0

	for i := 0; i < int(c.stages); i++ {
		var dr, dc float32
		si := int(math.Round(float64(s)))

		for j := 0; j < int(c.trees); j++ {
			idx := 0
			for k := 0; k < int(c.depth); k++ {
				node := c.codes[root+4*idx:]

				r1 := utils.Clamp((256*int(r)+int(node[0])*si)>>8, 0, img.Rows-1)
				c1 := utils.Clamp((256*int(col)+flip*int(node[1])*si)>>8, 0, img.Cols-1)
				r2 := utils.Clamp((256*int(r)+int(node[2])*si)>>8, 0, img.Rows-1)
				c2 := utils.Clamp((256*int(col)+flip*int(node[3])*si)>>8, 0, img.Cols-1)

				bit := 0
				if img.Pixels[r1*img.Dim+c1] > img.Pixels[r2*img.Dim+c2] {
					bit = 1
				}
				idx = 2*idx + 1 + bit
			}
			lut := 2 * (int(c.trees)*leaves*i + leaves*j + idx - (leaves - 1))

			dr += c.preds[lut]
			dc += float32(flip) * c.preds[lut+1]

			root += 4*leaves - 4
		}

		r += dr * s
		col += dc * s
		s *= c.scale
	}
	return r, col, s
}

// PerturbLocalize runs the cascade perturbs times on randomly perturbed copies of roi
// and returns the per axis median of the estimates. The translation is perturbed by
// up to 7.5% of the region scale and the scale itself by up to 7.5%.
func (c *Cascade) PerturbLocalize(img facefinder.ImageParams, roi facefinder.Similarity, rng *rand.Rand, perturbs int) facefinder.Point {
	return c.perturbLocalize(img, roi, rng, perturbs, false)
}

func (c *Cascade) perturbLocalize(img facefinder.ImageParams, roi facefinder.Similarity, rng *rand.Rand, perturbs int, flipV bool) facefinder.Point {
	r, col, s := roi.Translation.Y, roi.Translation.X, roi.Scale
	if perturbs < 1 {
		r, col, _ = c.Localize(img, r, col, s, flipV)
		return facefinder.Point{X: col, Y: r}
	}

	rows := make([]float64, perturbs)
	cols := make([]float64, perturbs)

	for i := 0; i < perturbs; i++ {
		rt := r + s*0.15*(0.5-rng.Float32())
		ct := col + s*0.15*(0.5-rng.Float32())
		st := s * (0.925 + 0.15*rng.Float32())

		pr, pc, _ := c.Localize(img, rt, ct, st, flipV)
		rows[i], cols[i] = float64(pr), float64(pc)
	}

	return facefinder.Point{
		X: float32(median(cols)),
		Y: float32(median(rows)),
	}
}

// median sorts x in place and returns its median.
func median(x []float64) float64 {
	sort.Float64s(x)
	return stat.Quantile(0.5, stat.Empirical, x, nil)
}
