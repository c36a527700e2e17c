package facefinder

import "gonum.org/v1/gonum/spatial/r2"

// Point is an image coordinate, X being the column and Y the row.
type Point struct {
	X float32
	Y float32
}

// MarshalJSON encodes the point as a two element array: [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float32{p.X, p.Y})
}

// UnmarshalJSON decodes a point from its [x, y] representation.
func (p *Point) UnmarshalJSON(data []byte) error {
	var xy [2]float32
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

func (p Point) vec() r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}

func fromVec(v r2.Vec) Point {
	return Point{X: float32(v.X), Y: float32(v.Y)}
}

// Center returns the midpoint of a and b.
func Center(a, b Point) Point {
	return fromVec(r2.Scale(0.5, r2.Add(a.vec(), b.vec())))
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b Point) float32 {
	return float32(r2.Norm(r2.Sub(a.vec(), b.vec())))
}

// Similarity is a translation combined with a uniform scale. Used as a search
// region it describes a circle centered at Translation with radius Scale.
type Similarity struct {
	Translation Point
	Scale       float32
}

// Apply maps p from the unit frame into the frame described by s.
func (s Similarity) Apply(p Point) Point {
	return fromVec(r2.Add(s.Translation.vec(), r2.Scale(float64(s.Scale), p.vec())))
}

// Contains reports whether p lies inside the bounding circle of the region.
func (s Similarity) Contains(p Point) bool {
	return Distance(s.Translation, p) <= s.Scale
}
