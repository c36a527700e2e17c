package facefinder

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/esimov/facefinder/utils"
)

// Colors of the annotation marks.
var (
	RectColor   = color.NRGBA{R: 0xff, A: 0xff}
	ShapeColor  = color.NRGBA{G: 0xff, A: 0xff}
	PupilColor  = color.NRGBA{B: 0xff, A: 0xff}
	markOpacity = 0.9
)

// Annotate returns a copy of img with the detected faces marked on it:
// the bounding rectangle, the landmark points and the pupils.
func Annotate(img image.Image, faces []Face) *image.NRGBA {
	src := imaging.Clone(img)
	b := src.Bounds()
	layer := imaging.New(b.Dx(), b.Dy(), color.Transparent)

	for _, face := range faces {
		r := face.Rect
		thickness := utils.Max(1, int(r.Width)/100)
		drawRect(layer, r, thickness, RectColor)

		radius := utils.Max(1, float64(r.Width)/80)
		for _, p := range face.Shape {
			drawCircle(layer, p, radius, true, ShapeColor)
		}
		for _, p := range face.Pupils {
			drawCircle(layer, p, 2*radius, false, PupilColor)
		}
	}
	return imaging.Overlay(src, layer, image.Pt(0, 0), markOpacity)
}

// drawRect draws the outline of r with the provided line thickness.
func drawRect(dst *image.NRGBA, r Rect, thickness int, col color.NRGBA) {
	x0, y0 := r.Left, r.Top
	x1, y1 := r.Left+int(r.Width), r.Top+int(r.Height)

	for t := 0; t < thickness; t++ {
		for x := x0; x < x1; x++ {
			dst.SetNRGBA(x, y0+t, col)
			dst.SetNRGBA(x, y1-1-t, col)
		}
		for y := y0; y < y1; y++ {
			dst.SetNRGBA(x0+t, y, col)
			dst.SetNRGBA(x1-1-t, y, col)
		}
	}
}

// drawCircle draws a circle centered at p. A filled circle is a dot,
// otherwise only a one pixel wide ring is drawn.
func drawCircle(dst *image.NRGBA, p Point, radius float64, fill bool, col color.NRGBA) {
	cx, cy := float64(p.X), float64(p.Y)
	r := int(math.Ceil(radius))

	for y := int(cy) - r; y <= int(cy)+r; y++ {
		for x := int(cx) - r; x <= int(cx)+r; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d > radius || (!fill && d < radius-1) {
				continue
			}
			dst.SetNRGBA(x, y, col)
		}
	}
}
