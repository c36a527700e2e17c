package cascade

import (
	"path/filepath"
	"strings"

	"github.com/esimov/facefinder"
	"github.com/esimov/facefinder/utils"
	"github.com/pkg/errors"
)

const cascadeURL = "https://raw.githubusercontent.com/esimov/pigo/master/cascade/"

// Sources locates the cascade files. Every source is either a local path or an url.
// Landmarks is the directory holding the facial landmark cascades.
type Sources struct {
	Facefinder string
	Puploc     string
	Landmarks  string
}

// DefaultSources points to the cascades published with pigo.
func DefaultSources() Sources {
	return Sources{
		Facefinder: cascadeURL + "facefinder",
		Puploc:     cascadeURL + "puploc",
		Landmarks:  cascadeURL + "lps/",
	}
}

// Load reads and unpacks all the cascades and returns them as the model bundle
// of a FaceFinder. Any failure is reported as a *facefinder.ModelLoadError.
func Load(src Sources) (facefinder.Models, error) {
	data, err := read("facefinder", src.Facefinder)
	if err != nil {
		return facefinder.Models{}, err
	}
	det, err := NewDetector(data)
	if err != nil {
		return facefinder.Models{}, &facefinder.ModelLoadError{Model: "facefinder", Err: err}
	}

	puploc, err := load("puploc", src.Puploc)
	if err != nil {
		return facefinder.Models{}, err
	}

	lps := make(map[string]*Cascade, 3)
	for _, name := range []string{OuterEyeCorner, InnerEyeCorner, Nose} {
		c, err := load(name, landmarkPath(src.Landmarks, name))
		if err != nil {
			return facefinder.Models{}, err
		}
		lps[name] = c
	}

	return facefinder.Models{
		Detector:  det,
		Localizer: puploc,
		Shaper:    NewShaper(puploc, lps[OuterEyeCorner], lps[InnerEyeCorner], lps[Nose]),
	}, nil
}

func read(model, src string) ([]byte, error) {
	if src == "" {
		return nil, &facefinder.ModelLoadError{Model: model, Err: errors.New("missing cascade source")}
	}
	data, err := utils.ReadSource(src)
	if err != nil {
		return nil, &facefinder.ModelLoadError{Model: model, Err: errors.Wrap(err, src)}
	}
	return data, nil
}

func load(model, src string) (*Cascade, error) {
	data, err := read(model, src)
	if err != nil {
		return nil, err
	}
	c, err := ParseCascade(data)
	if err != nil {
		return nil, &facefinder.ModelLoadError{Model: model, Err: errors.Wrap(err, src)}
	}
	return c, nil
}

func landmarkPath(dir, name string) string {
	if dir == "" {
		return ""
	}
	if utils.IsValidUrl(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}
