package event

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/esimov/facefinder"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	mu   sync.Mutex
	opts []facefinder.Opt
	imgs []string
	err  error
}

func (d *fakeDetector) DetectFaces(opt facefinder.Opt, b64 string) ([]facefinder.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opts = append(d.opts, opt)
	d.imgs = append(d.imgs, b64)
	if d.err != nil {
		return nil, d.err
	}
	return []facefinder.Face{{
		Score:  64,
		Rect:   facefinder.Rect{Left: 1, Top: 2, Width: 100, Height: 100},
		Shape:  make([]facefinder.Point, facefinder.Shape5Size),
		Pupils: [2]facefinder.Point{{X: 30, Y: 40}, {X: 70, Y: 40}},
	}}, nil
}

// runtime is a fake event runtime: it serves the queued events and records the posts.
type runtime struct {
	mu     sync.Mutex
	events [][]byte
	fail   int
	posts  map[string][][]byte
	posted chan string
}

func newRuntime(events ...string) *runtime {
	rt := &runtime{
		posts:  make(map[string][][]byte),
		posted: make(chan string, 64),
	}
	for _, ev := range events {
		rt.events = append(rt.events, []byte(ev))
	}
	return rt
}

func (rt *runtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/next" {
		rt.mu.Lock()
		if rt.fail > 0 {
			rt.fail--
			rt.mu.Unlock()
			http.Error(w, "runtime unavailable", http.StatusServiceUnavailable)
			return
		}
		if len(rt.events) == 0 {
			rt.mu.Unlock()
			<-r.Context().Done()
			return
		}
		ev := rt.events[0]
		rt.events = rt.events[1:]
		rt.mu.Unlock()

		w.Write(ev)
		return
	}

	body, _ := io.ReadAll(r.Body)
	rt.mu.Lock()
	rt.posts[r.URL.Path] = append(rt.posts[r.URL.Path], body)
	rt.mu.Unlock()

	w.Write([]byte(`{"status":"ok"}`))
	rt.posted <- r.URL.Path
}

func (rt *runtime) get(path string) [][]byte {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.posts[path]
}

func testConfig(url string) Config {
	return Config{
		ReadyURL:    url + "/ready",
		EventURL:    url + "/next",
		ResponseURL: url + "/response",
		ErrorURL:    url + "/error",
		Backoff:     10 * time.Millisecond,
	}
}

func responseBody(t *testing.T, data []byte) string {
	t.Helper()

	var resp Response
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.False(t, resp.IsBase64Encoded)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"Content-Type": "application/json"}, resp.Headers)
	return resp.Body
}

func TestPoller_HandleRequest(t *testing.T) {
	rt := newRuntime()
	srv := httptest.NewServer(rt)
	defer srv.Close()

	det := &fakeDetector{}
	p, err := NewPoller(testConfig(srv.URL), det, nil)
	require.NoError(t, err)

	require.NoError(t, p.Handle(context.Background(), []byte(`{"img": "aGVsbG8=", "min_size": 50, "shift_factor": 0.2}`)))

	posts := rt.get("/response")
	require.Len(t, posts, 1)
	assert.JSONEq(t, `[{
		"score": 64,
		"rect": {"left": 1, "top": 2, "width": 100, "height": 100},
		"shape": [[0,0],[0,0],[0,0],[0,0],[0,0]],
		"pupils": [[30,40],[70,40]]
	}]`, responseBody(t, posts[0]))

	require.Len(t, det.opts, 1)
	assert.Equal(t, "aGVsbG8=", det.imgs[0])
	assert.Equal(t, uint32(50), det.opts[0].MinSize)
	assert.Equal(t, float32(0.2), det.opts[0].ShiftFactor)
	assert.Equal(t, facefinder.DefaultOpt().ScaleFactor, det.opts[0].ScaleFactor)
	assert.Equal(t, facefinder.DefaultOpt().Threshold, det.opts[0].Threshold)
}

func TestPoller_HandleGatewayEnvelope(t *testing.T) {
	rt := newRuntime()
	srv := httptest.NewServer(rt)
	defer srv.Close()

	det := &fakeDetector{}
	p, err := NewPoller(testConfig(srv.URL), det, nil)
	require.NoError(t, err)

	ev := `{"httpMethod": "POST", "body": "{\"img\": \"Zm9v\", \"threshold\": 0.4}"}`
	require.NoError(t, p.Handle(context.Background(), []byte(ev)))

	require.Len(t, det.opts, 1)
	assert.Equal(t, "Zm9v", det.imgs[0])
	assert.Equal(t, float32(0.4), det.opts[0].Threshold)
}

func TestPoller_HandleErrorsAreAnswered(t *testing.T) {
	rt := newRuntime()
	srv := httptest.NewServer(rt)
	defer srv.Close()

	det := &fakeDetector{err: &facefinder.DecodeError{Err: errors.New("unknown format")}}
	p, err := NewPoller(testConfig(srv.URL), det, nil)
	require.NoError(t, err)

	require.NoError(t, p.Handle(context.Background(), []byte(`{"img": "Zm9v"}`)))
	require.NoError(t, p.Handle(context.Background(), []byte(`{"min_size": 10}`)))
	require.NoError(t, p.Handle(context.Background(), []byte(`{"img": 42}`)))

	posts := rt.get("/response")
	require.Len(t, posts, 3)
	assert.JSONEq(t, `{"error": "image decode error: unknown format"}`, responseBody(t, posts[0]))
	assert.JSONEq(t, `{"error": "invalid request: missing img"}`, responseBody(t, posts[1]))
	assert.Contains(t, responseBody(t, posts[2]), `"error"`)
	assert.Len(t, det.opts, 1)
}

func TestPoller_HandleRejectsMalformedEvents(t *testing.T) {
	rt := newRuntime()
	srv := httptest.NewServer(rt)
	defer srv.Close()

	p, err := NewPoller(testConfig(srv.URL), &fakeDetector{}, nil)
	require.NoError(t, err)

	assert.Error(t, p.Handle(context.Background(), []byte(`{"img": `)))
	assert.Empty(t, rt.get("/response"))

	cfg := testConfig(srv.URL)
	cfg.ResponseURL = "http://127.0.0.1:1/response"
	p, err = NewPoller(cfg, &fakeDetector{}, nil)
	require.NoError(t, err)
	assert.Error(t, p.Handle(context.Background(), []byte(`{"img": "Zm9v"}`)))
}

func TestPoller_Run(t *testing.T) {
	rt := newRuntime(
		`{"img": "Zm9v"}`,
		`not json`,
		`{"body": "{\"img\": \"YmFy\"}"}`,
	)
	rt.fail = 2
	srv := httptest.NewServer(rt)
	defer srv.Close()

	det := &fakeDetector{}
	p, err := NewPoller(testConfig(srv.URL), det, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	seen := map[string]int{}
	timeout := time.After(5 * time.Second)
	for seen["/response"] < 2 || seen["/error"] < 1 {
		select {
		case path := <-rt.posted:
			seen[path]++
		case <-timeout:
			t.Fatalf("timed out waiting for the posts, got %v", seen)
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("the poller did not stop")
	}

	assert.Equal(t, 1, seen["/ready"])
	assert.JSONEq(t, `{"msg": "facefinder ready"}`, string(rt.get("/ready")[0]))
	assert.Contains(t, string(rt.get("/error")[0]), "not a valid JSON")

	// The two 503 answers were retried, not reported as events.
	assert.Len(t, rt.get("/error"), 1)
	rt.mu.Lock()
	assert.Zero(t, rt.fail)
	rt.mu.Unlock()
	assert.Equal(t, []string{"Zm9v", "YmFy"}, det.imgs)
}

func TestConfig_FromEnv(t *testing.T) {
	t.Setenv(EnvReadyURL, "http://localhost:9001/ready")
	t.Setenv(EnvEventURL, "http://localhost:9001/next")
	t.Setenv(EnvResponseURL, "http://localhost:9001/response")
	t.Setenv(EnvErrorURL, "http://localhost:9001/error")
	t.Setenv(EnvBackoff, "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9001/next", cfg.EventURL)
	assert.Equal(t, DefaultBackoff, cfg.Backoff)

	t.Setenv(EnvBackoff, "250ms")
	cfg, err = ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Backoff)

	t.Setenv(EnvBackoff, "soon")
	_, err = ConfigFromEnv()
	assert.Error(t, err)

	t.Setenv(EnvBackoff, "")
	t.Setenv(EnvErrorURL, "not an url")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}

func TestConfig_FromEnvFile(t *testing.T) {
	for _, key := range []string{EnvReadyURL, EnvEventURL, EnvResponseURL, EnvErrorURL, EnvBackoff} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv(EnvReadyURL, "http://override/ready")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"FACEFINDER_READY_URL=http://runtime/ready\n"+
			"FACEFINDER_EVENT_URL=http://runtime/next\n"+
			"FACEFINDER_RESPONSE_URL=http://runtime/response\n"+
			"FACEFINDER_ERROR_URL=http://runtime/error\n"+
			"FACEFINDER_BACKOFF=2s\n",
	), 0644))

	cfg, err := ConfigFromEnv(envFile)
	require.NoError(t, err)
	assert.Equal(t, "http://override/ready", cfg.ReadyURL)
	assert.Equal(t, "http://runtime/error", cfg.ErrorURL)
	assert.Equal(t, 2*time.Second, cfg.Backoff)

	_, err = ConfigFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
