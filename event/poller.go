// Package event runs the face detection behind a polling event runtime: it fetches one
// event at a time, answers it on the response endpoint and reports processing failures
// on the error endpoint.
package event

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/esimov/facefinder"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Detector runs a detection over a base64 encoded image.
type Detector interface {
	DetectFaces(opt facefinder.Opt, b64 string) ([]facefinder.Face, error)
}

// Response is the gateway envelope posted to the response endpoint.
type Response struct {
	IsBase64Encoded bool              `json:"isBase64Encoded"`
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
}

// Message is posted to the ready and error endpoints.
type Message struct {
	Msg string `json:"msg"`
}

// Poller fetches and answers the events.
type Poller struct {
	cfg    Config
	ff     Detector
	client *http.Client
	log    logrus.FieldLogger
}

// NewPoller validates cfg and returns a Poller running detections on ff.
func NewPoller(cfg Config, ff Detector, log logrus.FieldLogger) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Poller{
		cfg:    cfg,
		ff:     ff,
		client: &http.Client{},
		log:    log,
	}, nil
}

// Run announces the poller on the ready endpoint, then handles the events one by one
// until ctx is done. A failed fetch is retried after the configured backoff; a
// non-2xx answer of the event endpoint counts as a failed fetch, so its body is never
// handled as an event nor reported to the error endpoint.
// An event already fetched is always handled to completion.
func (p *Poller) Run(ctx context.Context) error {
	if _, err := p.post(ctx, p.cfg.ReadyURL, Message{Msg: "facefinder ready"}); err != nil {
		p.log.WithError(err).Warn("could not notify the ready endpoint")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.WithError(err).Error("event fetch failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.Backoff):
			}
			continue
		}

		if err := p.Handle(context.WithoutCancel(ctx), ev); err != nil {
			_, perr := p.post(context.WithoutCancel(ctx), p.cfg.ErrorURL, Message{Msg: err.Error()})
			p.log.WithFields(logrus.Fields{
				"error":        err,
				"report_error": perr,
			}).Error("event processing failed")
		}
	}
}

// Handle answers a single event. The event is a detection request, possibly wrapped
// in a gateway envelope carrying the request as a JSON string in its body field.
// Detection failures are answered with an error object; the returned error only
// reports an unreadable event or an undelivered response.
func (p *Poller) Handle(ctx context.Context, ev []byte) error {
	log := p.log.WithField("event_id", uuid.NewString())

	if !json.Valid(ev) {
		return errors.New("event is not a valid JSON document")
	}
	if body := json.Get(ev, "body"); body.ValueType() == jsoniter.StringValue {
		if s := body.ToString(); s != "" && json.Valid([]byte(s)) {
			ev = []byte(s)
		}
	}

	start := time.Now()
	resp, err := facefinder.EncodeResult(p.detect(ev))
	if err != nil {
		return errors.Wrap(err, "could not encode the detection result")
	}
	log.WithField("elapsed", time.Since(start)).Info("event processed")

	out, err := p.post(ctx, p.cfg.ResponseURL, Response{
		IsBase64Encoded: false,
		StatusCode:      http.StatusOK,
		Headers:         map[string]string{"Content-Type": "application/json"},
		Body:            string(resp),
	})
	if err != nil {
		return errors.Wrap(err, "could not post the response")
	}
	log.WithField("reply", string(out)).Debug("response delivered")

	return nil
}

func (p *Poller) detect(ev []byte) ([]facefinder.Face, error) {
	var req facefinder.Request
	if err := json.Unmarshal(ev, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %v", err)
	}
	if req.Img == "" {
		return nil, errors.New("invalid request: missing img")
	}
	return p.ff.DetectFaces(req.Opt(), req.Img)
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.EventURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected event status: %s", res.Status)
	}
	return io.ReadAll(res.Body)
}

func (p *Poller) post(ctx context.Context, url string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode/100 != 2 {
		return body, fmt.Errorf("unexpected status posting to %s: %s", url, res.Status)
	}
	return body, nil
}
