/*
Package facefinder locates faces and eye pupils in a still image and returns, for every
face found, its confidence score, its bounding box, a five point landmark shape and the
position of the two pupils.

A detection runs a multiscale sliding window scan over the grayscale image, merges the
overlapping windows by their intersection over union, drops the clusters scoring below
MinScore, predicts the landmark shape of every remaining face, derives the eye regions
from it and refines the pupil inside each of them with a seeded perturbation search.
The outcome of a detection depends only on its input: the same image always yields the
same faces and pupils.

The models are provided by the caller. The cascade package loads the pigo cascades:

	package main

	import (
		"fmt"
		"log"

		"github.com/esimov/facefinder"
		"github.com/esimov/facefinder/cascade"
	)

	func main() {
		models, err := cascade.Load(cascade.DefaultSources())
		if err != nil {
			log.Fatal(err)
		}
		ff, err := facefinder.New(models)
		if err != nil {
			log.Fatal(err)
		}

		faces, err := ff.DetectFaces(facefinder.DefaultOpt(), b64img)
		if err != nil {
			log.Fatalf("Error detecting faces: %s", err.Error())
		}
		for _, face := range faces {
			fmt.Println(face.Rect, face.Pupils)
		}
	}
*/
package facefinder
