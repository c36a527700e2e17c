package facefinder

import (
	"image"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// ImageParams is the single channel grayscale raster the detectors work on.
type ImageParams = pigo.ImageParams

// Grayscale converts img into a row major grayscale raster.
func Grayscale(img image.Image) ImageParams {
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	return ImageParams{
		Pixels: pigo.RgbToGrayscale(src),
		Rows:   rows,
		Cols:   cols,
		Dim:    cols,
	}
}
