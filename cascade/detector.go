package cascade

import (
	"encoding/binary"
	"fmt"

	"github.com/esimov/facefinder"
	pigo "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
)

// Detector is the pico face classifier. It scores one scan window at a time.
type Detector struct {
	classifier *pigo.Pigo
}

// NewDetector unpacks the binary facefinder cascade.
func NewDetector(data []byte) (det *Detector, err error) {
	if len(data) < 16 {
		return nil, errors.Errorf("facefinder cascade too short: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint32(data[12:]) == 0 {
		return nil, errors.New("facefinder cascade has no trees")
	}
	// Unpack indexes the packet without checking its bounds.
	defer func() {
		if r := recover(); r != nil {
			det, err = nil, fmt.Errorf("malformed facefinder cascade: %v", r)
		}
	}()

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, err
	}
	return &Detector{classifier: classifier}, nil
}

// Classify scores the window w. The classifier runs on a view of the image holding
// exactly one window position, so the pigo scan evaluates w and nothing else.
// A window is accepted when its score is positive.
func (d *Detector) Classify(img facefinder.ImageParams, w facefinder.Window) (float32, bool) {
	offset := w.Size/2 + 1
	top, left := w.Row-offset, w.Col-offset
	if w.Size < 1 || top < 0 || left < 0 || w.Row+offset > img.Rows || w.Col+offset > img.Cols {
		return 0, false
	}

	dets := d.classifier.RunCascade(pigo.CascadeParams{
		MinSize:     w.Size,
		MaxSize:     w.Size,
		ShiftFactor: 1,
		ScaleFactor: 2,
		ImageParams: pigo.ImageParams{
			Pixels: img.Pixels[top*img.Dim+left:],
			Rows:   2 * offset,
			Cols:   2 * offset,
			Dim:    img.Dim,
		},
	}, 0)

	if len(dets) == 0 {
		return 0, false
	}
	return dets[0].Q, true
}
