package facefinder

import (
	"image"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Opt holds the options of a single detection call.
// MinSize: the smallest window edge to scan, in pixels.
// ScaleFactor: the growth of the window size between two scan passes.
// ShiftFactor: the scan step as a fraction of the current window size.
// Threshold: the IoU above which two raw detections are merged.
type Opt struct {
	MinSize     uint32  `json:"min_size" validate:"gte=1"`
	ScaleFactor float32 `json:"scale_factor" validate:"gt=1"`
	ShiftFactor float32 `json:"shift_factor" validate:"gt=0,lte=1"`
	Threshold   float32 `json:"threshold" validate:"gte=0,lte=1"`
}

// DefaultOpt returns the default detection options.
func DefaultOpt() Opt {
	return Opt{
		MinSize:     100,
		ScaleFactor: 1.1,
		ShiftFactor: 0.1,
		Threshold:   0.2,
	}
}

var validate = validator.New()

// Validate checks the option ranges and returns a *ConfigError on failure.
func (o Opt) Validate() error {
	if err := validate.Struct(o); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// Request is the outward request: a base64 encoded image and optional overrides.
type Request struct {
	Img         string   `json:"img"`
	MinSize     *uint32  `json:"min_size,omitempty"`
	ShiftFactor *float32 `json:"shift_factor,omitempty"`
	ScaleFactor *float32 `json:"scale_factor,omitempty"`
	Threshold   *float32 `json:"threshold,omitempty"`
}

// Opt returns the default options with the request overrides applied.
func (r Request) Opt() Opt {
	opt := DefaultOpt()
	if r.MinSize != nil {
		opt.MinSize = *r.MinSize
	}
	if r.ShiftFactor != nil {
		opt.ShiftFactor = *r.ShiftFactor
	}
	if r.ScaleFactor != nil {
		opt.ScaleFactor = *r.ScaleFactor
	}
	if r.Threshold != nil {
		opt.Threshold = *r.Threshold
	}
	return opt
}

// Rect is an axis aligned bounding box.
type Rect struct {
	Left   int  `json:"left"`
	Top    int  `json:"top"`
	Width  uint `json:"width"`
	Height uint `json:"height"`
}

// Face is the detection result of one face.
type Face struct {
	Score  float32  `json:"score"`
	Rect   Rect     `json:"rect"`
	Shape  []Point  `json:"shape"`
	Pupils [2]Point `json:"pupils"`
}

// Shaper predicts the landmark shape of the face found inside rect.
type Shaper interface {
	Predict(img ImageParams, rect Rect) []Point
}

// Models bundles the three models a detection runs against.
type Models struct {
	Detector  Detector
	Localizer Localizer
	Shaper    Shaper
}

// FaceFinder owns the models and serializes the detections running against them.
// The zero value is not usable, use New.
type FaceFinder struct {
	mu     sync.Mutex
	models Models

	seed     uint64
	perturbs int
	log      logrus.FieldLogger
}

// Option configures a FaceFinder.
type Option func(*FaceFinder)

// WithSeed replaces the seed of the pupil perturbation stream.
func WithSeed(seed uint64) Option {
	return func(ff *FaceFinder) {
		ff.seed = seed
	}
}

// WithPerturbs replaces the number of perturbed localizer runs per pupil.
func WithPerturbs(n int) Option {
	return func(ff *FaceFinder) {
		if n > 0 {
			ff.perturbs = n
		}
	}
}

// WithLogger sets the logger receiving the per stage timings, at debug level.
func WithLogger(log logrus.FieldLogger) Option {
	return func(ff *FaceFinder) {
		if log != nil {
			ff.log = log
		}
	}
}

// New returns a FaceFinder owning models. All three models are required.
func New(models Models, opts ...Option) (*FaceFinder, error) {
	switch {
	case models.Detector == nil:
		return nil, errors.New("missing face detector")
	case models.Localizer == nil:
		return nil, errors.New("missing pupil localizer")
	case models.Shaper == nil:
		return nil, errors.New("missing landmark shaper")
	}

	silent := logrus.New()
	silent.SetOutput(io.Discard)

	ff := &FaceFinder{
		models:   models,
		seed:     DefaultSeed,
		perturbs: DefaultPerturbs,
		log:      silent,
	}
	for _, opt := range opts {
		opt(ff)
	}
	return ff, nil
}

// DetectFaces decodes the base64 encoded image and runs the detection on it.
func (ff *FaceFinder) DetectFaces(opt Opt, b64 string) ([]Face, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	img, err := decodeBase64(b64)
	if err != nil {
		return nil, err
	}
	return ff.DetectImage(opt, img)
}

// DetectBytes decodes the raw image bytes and runs the detection on them.
func (ff *FaceFinder) DetectBytes(opt Opt, data []byte) ([]Face, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	img, err := decodeImg(data)
	if err != nil {
		return nil, err
	}
	return ff.DetectImage(opt, img)
}

// DetectImage converts img to grayscale and runs the detection on it.
func (ff *FaceFinder) DetectImage(opt Opt, img image.Image) ([]Face, error) {
	start := time.Now()
	gray := Grayscale(img)
	ff.log.WithField("elapsed", time.Since(start)).Debug("grayscale conversion")

	return ff.Detect(opt, gray)
}

// Detect runs the whole pipeline over the grayscale raster: multiscale scan,
// clustering, confidence floor, landmark shape, eye regions and pupils.
// Only one call at a time runs against the models; the others wait for it.
func (ff *FaceFinder) Detect(opt Opt, img ImageParams) ([]Face, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	start := time.Now()
	ms := MultiScale{
		MinSize:     int(opt.MinSize),
		MaxSize:     img.Cols,
		ShiftFactor: float64(opt.ShiftFactor),
		ScaleFactor: float64(opt.ScaleFactor),
	}
	dets := ms.Run(ff.models.Detector, img)
	ff.log.WithFields(logrus.Fields{
		"elapsed":    time.Since(start),
		"detections": len(dets),
	}).Debug("multiscale scan")

	start = time.Now()
	clusters := Clusterize(dets, float64(opt.Threshold))
	ff.log.WithFields(logrus.Fields{
		"elapsed":  time.Since(start),
		"clusters": len(clusters),
	}).Debug("clustering")

	start = time.Now()
	refiner := NewPupilRefiner(ff.models.Localizer, ff.seed, ff.perturbs)

	faces := make([]Face, 0, len(clusters))
	for _, det := range clusters {
		if det.Score < MinScore {
			continue
		}
		rect := det.Rect()

		pts := ff.models.Shaper.Predict(img, rect)
		shape, err := NewShape5(pts)
		if err != nil {
			return nil, err
		}
		left, right := shape.EyesROI()

		faces = append(faces, Face{
			Score: det.Score,
			Rect:  rect,
			Shape: shape.Points(),
			Pupils: [2]Point{
				refiner.Refine(img, left),
				refiner.Refine(img, right),
			},
		})
	}
	ff.log.WithFields(logrus.Fields{
		"elapsed": time.Since(start),
		"faces":   len(faces),
	}).Debug("landmarks and pupils")

	return faces, nil
}
