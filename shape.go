package facefinder

import "gonum.org/v1/gonum/spatial/r2"

// Shape5Size is the number of landmark points in a face shape.
const Shape5Size = 5

// EyeEnlarge widens an eye search region beyond the corner distance,
// so that noisy corner landmarks still enclose the pupil.
const EyeEnlarge = 1.1

// Shape5 is the five point landmark shape of a face. In its slice form the points
// follow the field order: left outer eye corner, left inner eye corner,
// right outer eye corner, right inner eye corner, nose.
type Shape5 struct {
	LeftOuterEyeCorner  Point
	LeftInnerEyeCorner  Point
	RightOuterEyeCorner Point
	RightInnerEyeCorner Point
	Nose                Point
}

// NewShape5 builds a shape from its slice form.
// It returns a *ShapeContractError unless exactly Shape5Size points are given.
func NewShape5(pts []Point) (Shape5, error) {
	if len(pts) != Shape5Size {
		return Shape5{}, &ShapeContractError{Got: len(pts)}
	}
	return Shape5{
		LeftOuterEyeCorner:  pts[0],
		LeftInnerEyeCorner:  pts[1],
		RightOuterEyeCorner: pts[2],
		RightInnerEyeCorner: pts[3],
		Nose:                pts[4],
	}, nil
}

// Points returns the shape in its slice form.
func (s Shape5) Points() []Point {
	return []Point{
		s.LeftOuterEyeCorner,
		s.LeftInnerEyeCorner,
		s.RightOuterEyeCorner,
		s.RightInnerEyeCorner,
		s.Nose,
	}
}

// EyeCenters returns the midpoints of the left and right eye corner pairs.
func (s Shape5) EyeCenters() (Point, Point) {
	return Center(s.LeftOuterEyeCorner, s.LeftInnerEyeCorner),
		Center(s.RightOuterEyeCorner, s.RightInnerEyeCorner)
}

// EyesROI returns the left and right eye search regions. Each region is
// centered between the two corners of the eye and its radius is the corner
// distance enlarged by EyeEnlarge.
func (s Shape5) EyesROI() (Similarity, Similarity) {
	return eyeROI(s.LeftInnerEyeCorner, s.LeftOuterEyeCorner),
		eyeROI(s.RightOuterEyeCorner, s.RightInnerEyeCorner)
}

// eyeROI derives the region spanned from corner a towards corner b.
func eyeROI(a, b Point) Similarity {
	d := fromVec(r2.Sub(b.vec(), a.vec()))
	return Similarity{
		Translation: Point{X: a.X + d.X*0.5, Y: a.Y + d.Y*0.5},
		Scale:       Distance(a, b) * EyeEnlarge,
	}
}

// FindEyesROI derives both eye regions straight from the slice form of a shape.
func FindEyesROI(pts []Point) (Similarity, Similarity, error) {
	s, err := NewShape5(pts)
	if err != nil {
		return Similarity{}, Similarity{}, err
	}
	l, r := s.EyesROI()
	return l, r, nil
}
