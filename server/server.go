// Package server exposes the face detection over HTTP.
package server

import (
	"io"
	"mime"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/esimov/facefinder"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxBodySize limits the accepted request body.
const MaxBodySize = 32 << 20

// Detector runs the face detection over an encoded image.
type Detector interface {
	DetectFaces(opt facefinder.Opt, b64 string) ([]facefinder.Face, error)
	DetectBytes(opt facefinder.Opt, data []byte) ([]facefinder.Face, error)
}

type state struct {
	ff  Detector
	log logrus.FieldLogger

	requests atomic.Uint64
	failures atomic.Uint64
	faces    atomic.Uint64
}

// NewRouter returns the routes of the detection service:
//
//	POST /detect  JSON request, multipart "file" field or raw image body
//	GET  /healthz service counters
func NewRouter(ff Detector, log logrus.FieldLogger) *mux.Router {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	s := &state{ff: ff, log: log}

	r := mux.NewRouter()
	r.Use(s.requestLogger)
	r.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return r
}

func (s *state) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"elapsed":    time.Since(start),
		}).Info("request served")
	})
}

func (s *state) handleDetect(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	faces, err := s.detect(r)
	if err != nil {
		s.failures.Add(1)

		status := http.StatusInternalServerError
		var bodyErr *requestError
		if errors.As(err, &bodyErr) || facefinder.IsClientError(err) {
			status = http.StatusBadRequest
		} else {
			s.log.WithError(err).Error("detection failed")
		}
		writeJSON(w, status, facefinder.ErrorResponse{Error: err.Error()})
		return
	}
	s.faces.Add(uint64(len(faces)))

	out, err := facefinder.EncodeResult(faces, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, facefinder.ErrorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *state) detect(r *http.Request) ([]facefinder.Face, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var req facefinder.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, &requestError{errors.Wrap(err, "invalid request body")}
		}
		if req.Img == "" {
			return nil, &requestError{errors.New("invalid request body: missing img")}
		}
		return s.ff.DetectFaces(req.Opt(), req.Img)
	case "multipart/form-data":
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, &requestError{errors.Wrap(err, "invalid multipart form")}
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, &requestError{err}
		}
		return s.ff.DetectBytes(facefinder.DefaultOpt(), data)
	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &requestError{err}
		}
		return s.ff.DetectBytes(facefinder.DefaultOpt(), data)
	}
}

func (s *state) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"requests": s.requests.Load(),
		"failures": s.failures.Load(),
		"faces":    s.faces.Load(),
	})
}

// requestError marks a malformed request body.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
