package facefinder

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the outward form of a failed detection.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EncodeResult serializes the outcome of a detection call: the face list
// when err is nil, a single error object otherwise. Never both.
func EncodeResult(faces []Face, err error) ([]byte, error) {
	if err != nil {
		return json.Marshal(ErrorResponse{Error: err.Error()})
	}
	if faces == nil {
		faces = []Face{}
	}
	return json.Marshal(faces)
}
