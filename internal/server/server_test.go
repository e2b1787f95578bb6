package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andresmejia3/aist/internal/gallery"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/types"
	"github.com/andresmejia3/aist/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneFace reports a single face at the origin of the embedding space.
type oneFace struct{}

func (oneFace) Embed([]byte) ([]types.FaceResult, error) {
	return []types.FaceResult{{Loc: [4]int{1, 2, 3, 4}, Vec: []float64{0, 0}, Prob: 0.99}}, nil
}

type oneDog struct{}

func (oneDog) Detect([]byte, []int, float64) ([]types.Detection, error) {
	return []types.Detection{{Class: 16, Conf: 0.7, Box: [4]float64{0, 0, 0.5, 0.5}}}, nil
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func newServer(t *testing.T, withDetect bool) (*Server, *identity.Gallery) {
	t.Helper()
	g := identity.NewGallery()
	require.NoError(t, g.Add("Alice", identity.Embedding{0, 0.1}))
	require.NoError(t, g.Add("Bob", identity.Embedding{3, 4}))

	rec := recognize.New(g, oneFace{}, 0.5)
	rec.Out = io.Discard
	var w *watch.Watcher
	if withDetect {
		w = watch.New(oneDog{})
	}
	s, err := New(Config{Addr: "127.0.0.1:0"}, rec, w)
	require.NoError(t, err)
	return s, g
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, recognize.New(identity.NewGallery(), oneFace{}, 1), nil)
	assert.Error(t, err)
	_, err = New(Config{Addr: ":0"}, nil, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, false)
	rr := do(t, s.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Identities)
	assert.False(t, body.Detect)
}

func TestPredict(t *testing.T) {
	s, _ := newServer(t, false)

	rr := do(t, s.Handler(), http.MethodPost, "/v1/predict", pngImage(t))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body predictBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Alice", body.Result)
	require.Len(t, body.Faces, 1)
	assert.Equal(t, "identified", body.Faces[0].Outcome)
	assert.Equal(t, [4]int{1, 2, 3, 4}, body.Faces[0].Box)
	assert.InDelta(t, 0.1, body.Faces[0].Distance, 1e-9)

	rr = do(t, s.Handler(), http.MethodPost, "/v1/predict?threshold=0.05", pngImage(t))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, identity.UnknownLabel, body.Result)
}

func TestPredict_BadInput(t *testing.T) {
	s, _ := newServer(t, false)

	rr := do(t, s.Handler(), http.MethodPost, "/v1/predict", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s.Handler(), http.MethodPost, "/v1/predict", []byte("not an image"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	rr = do(t, s.Handler(), http.MethodPost, "/v1/predict?threshold=-1", pngImage(t))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s.Handler(), http.MethodPost, "/v1/predict?threshold=NaN", pngImage(t))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.cfg.MaxBody = 8
	rr = do(t, s.Handler(), http.MethodPost, "/v1/predict", pngImage(t))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestPredict_DimensionMismatch(t *testing.T) {
	s, g := newServer(t, false)
	require.NoError(t, g.Replace([]identity.Entry{{Label: "Carol", Vec: identity.Embedding{1, 2, 3}}}))

	rr := do(t, s.Handler(), http.MethodPost, "/v1/predict", pngImage(t))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestDetect(t *testing.T) {
	s, _ := newServer(t, false)
	rr := do(t, s.Handler(), http.MethodPost, "/v1/detect", pngImage(t))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	s, _ = newServer(t, true)
	rr = do(t, s.Handler(), http.MethodPost, "/v1/detect", pngImage(t))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rec watch.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, []int{16}, rec.Classes)
	assert.Nil(t, rec.Camera)
}

func TestGallery(t *testing.T) {
	s, _ := newServer(t, false)
	rr := do(t, s.Handler(), http.MethodGet, "/v1/gallery", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	g, err := gallery.Decode(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, g.Labels())
}

func TestGallery_Fetch(t *testing.T) {
	s, _ := newServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	f := &gallery.Fetcher{Client: ts.Client(), Progress: io.Discard}
	g, err := f.Fetch(context.Background(), ts.URL+"/v1/gallery", t.TempDir()+"/core.gob")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
}

func TestStart_Shutdown(t *testing.T) {
	s, _ := newServer(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
