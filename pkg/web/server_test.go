package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyvo/retina/backend/pkg/classify"
	"github.com/vyvo/retina/backend/pkg/fetch"
	"github.com/vyvo/retina/backend/pkg/results"
	"github.com/vyvo/retina/backend/pkg/storage"
)

type fakeFetcher struct {
	data []byte
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (fetch.Image, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return fetch.Image{}, f.err
	}
	return fetch.Image{Data: f.data, ContentType: "image/png"}, nil
}

type fakeClassifier struct {
	probs    []float32
	err      error
	readyErr error
	sizes    []int
}

func (c *fakeClassifier) Predict(ctx context.Context, tensor []float32, size int) ([]float32, error) {
	c.sizes = append(c.sizes, size)
	if len(tensor) != size*size*3 {
		return nil, errors.New("bad tensor")
	}
	return c.probs, c.err
}

func (c *fakeClassifier) Ready(ctx context.Context) error {
	return c.readyErr
}

type harness struct {
	srv        *Server
	handler    http.Handler
	uploads    *storage.LocalStore
	results    *results.MemStore
	fetcher    *fakeFetcher
	classifier *fakeClassifier
}

func pngBytes(t *testing.T) []byte {
	return pngOf(t, color.RGBA{R: 200, G: 40, B: 40, A: 255})
}

func pngOf(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	uploads, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		uploads:    uploads,
		results:    results.NewMemStore(),
		fetcher:    &fakeFetcher{data: pngBytes(t)},
		classifier: &fakeClassifier{probs: []float32{0.01, 0.02, 0.03, 0.04, 0.10, 0.80}},
	}
	srv, err := New(Deps{
		Uploads:    h.uploads,
		Results:    h.results,
		Fetcher:    h.fetcher,
		Classifier: h.classifier,
	}, Options{TopK: 3, ImageSize: 8})
	require.NoError(t, err)
	h.srv = srv
	h.handler = srv.Routes()
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, fileName string, fileData []byte, imageURL string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("image_url", imageURL))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestLandingListsCatalog(t *testing.T) {
	h := newHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range classify.Catalog {
		assert.Contains(t, rec.Body.String(), c.DisplayName)
	}
}

func TestPredictStartShowsModelError(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/predict_start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="prediction-form"`)
	assert.NotContains(t, rec.Body.String(), "currently unavailable")

	h.classifier.readyErr = classify.ErrUnavailable
	rec = h.do(httptest.NewRequest(http.MethodGet, "/predict_start", nil))
	assert.Contains(t, rec.Body.String(), "currently unavailable")
}

func TestFormIsFirstCardWithModelError(t *testing.T) {
	h := newHarness(t)
	h.classifier.readyErr = classify.ErrUnavailable

	rec := h.do(httptest.NewRequest(http.MethodGet, "/predict_start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	banner := strings.Index(body, "currently unavailable")
	form := strings.Index(body, `id="prediction-form" class="card"`)
	require.NotEqual(t, -1, banner)
	require.NotEqual(t, -1, form)
	require.Less(t, banner, form)

	firstCard := strings.Index(body, `class="card"`)
	assert.Equal(t, form+len(`id="prediction-form" `), firstCard)
}

func TestFormReportsCoordinatorLoadFailure(t *testing.T) {
	h := newHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/predict_start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `/static/formwasm.wasm`)
	assert.Contains(t, body, `console.error("form validation unavailable`)
	assert.NotContains(t, body, `.catch(() => {})`)
}

func TestPredictFileUpload(t *testing.T) {
	h := newHarness(t)
	data := pngBytes(t)

	rec := h.do(multipartRequest(t, "../My Eye.png", data, ""))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/results/"))

	id := strings.TrimPrefix(location, "/results/")
	stored, err := h.results.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.Filename, "_My_Eye.png"), stored.Filename)
	assert.Equal(t, results.SourceFile, stored.Source)
	require.Len(t, stored.Top, 3)
	assert.Equal(t, "normal", stored.Top[0].Label)
	assert.False(t, stored.Rejected)
	assert.Equal(t, []int{8}, h.classifier.sizes)

	page := h.do(httptest.NewRequest(http.MethodGet, location, nil))
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Healthy Retina")
	assert.Contains(t, page.Body.String(), "80.00%")
	assert.Contains(t, page.Body.String(), "/uploads/"+stored.Filename)

	img := h.do(httptest.NewRequest(http.MethodGet, "/static/uploads/"+stored.Filename, nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/png", img.Header().Get("Content-Type"))
	assert.Equal(t, data, img.Body.Bytes())
}

func TestPredictSameFileNameKeepsEachImage(t *testing.T) {
	h := newHarness(t)
	first := pngOf(t, color.RGBA{R: 255, A: 255})
	second := pngOf(t, color.RGBA{B: 255, A: 255})
	require.NotEqual(t, first, second)

	var names []string
	for _, data := range [][]byte{first, second} {
		rec := h.do(multipartRequest(t, "fundus.png", data, ""))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		stored, err := h.results.Get(context.Background(), strings.TrimPrefix(rec.Header().Get("Location"), "/results/"))
		require.NoError(t, err)
		names = append(names, stored.Filename)
	}
	require.NotEqual(t, names[0], names[1])

	img := h.do(httptest.NewRequest(http.MethodGet, "/uploads/"+names[0], nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, first, img.Body.Bytes())

	img = h.do(httptest.NewRequest(http.MethodGet, "/uploads/"+names[1], nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, second, img.Body.Bytes())
}

func TestAPIPredictWithoutFileNameDoesNotCollide(t *testing.T) {
	h := newHarness(t)

	var names []string
	for i := 0; i < 2; i++ {
		body, err := json.Marshal(PredictRequest{FileData: pngBytes(t)})
		require.NoError(t, err)
		rec := h.do(httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp PredictResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		names = append(names, resp.Result.Filename)
	}
	assert.NotEqual(t, names[0], names[1])
}

func TestPredictURLStoresJPEG(t *testing.T) {
	h := newHarness(t)

	rec := h.do(multipartRequest(t, "", nil, "  https://example.com/fundus.png?size=large  "))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []string{"https://example.com/fundus.png?size=large"}, h.fetcher.urls)

	id := strings.TrimPrefix(rec.Header().Get("Location"), "/results/")
	stored, err := h.results.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, results.SourceURL, stored.Source)
	assert.Equal(t, "https://example.com/fundus.png?size=large", stored.OriginalURL)
	assert.True(t, strings.HasPrefix(stored.Filename, "url_image_"))
	assert.True(t, strings.HasSuffix(stored.Filename, ".jpg"))

	rc, err := h.uploads.Open(context.Background(), stored.Filename)
	require.NoError(t, err)
	defer rc.Close()
	head := make([]byte, 2)
	_, err = io.ReadFull(rc, head)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, head)
}

func TestPredictValidationErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name     string
		fileName string
		url      string
		want     string
	}{
		{name: "missing", want: "Please upload a file or provide a URL."},
		{name: "bad url", url: "https://example.com/page", want: "URL must be a direct link to an image file"},
		{name: "both", fileName: "eye.png", url: "https://example.com/x.png", want: "Please use EITHER the file upload OR the URL input, not both."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data []byte
			if tt.fileName != "" {
				data = pngBytes(t)
			}
			rec := h.do(multipartRequest(t, tt.fileName, data, tt.url))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
	assert.Empty(t, h.fetcher.urls)
	assert.Empty(t, h.classifier.sizes)
}

func TestPredictFailures(t *testing.T) {
	t.Run("fetch error", func(t *testing.T) {
		h := newHarness(t)
		h.fetcher.err = &fetch.FetchError{URL: "https://example.com/x.jpg", StatusCode: http.StatusNotFound}
		rec := h.do(multipartRequest(t, "", nil, "https://example.com/x.jpg"))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "Error downloading image from URL")
	})

	t.Run("not an image", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(multipartRequest(t, "eye.png", []byte("not an image"), ""))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Not a valid image.")
	})

	t.Run("runner unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.classifier.err = classify.ErrUnavailable
		rec := h.do(multipartRequest(t, "eye.png", pngBytes(t), ""))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "currently unavailable")
	})

	t.Run("runner error", func(t *testing.T) {
		h := newHarness(t)
		h.classifier.err = errors.New("boom")
		rec := h.do(multipartRequest(t, "eye.png", pngBytes(t), ""))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "Prediction failed: boom")
	})
}

func TestResultPageRejected(t *testing.T) {
	h := newHarness(t)
	h.classifier.probs = []float32{0.2, 0.2, 0.2, 0.2, 0.1, 0.1}

	rec := h.do(multipartRequest(t, "cat.png", pngBytes(t), ""))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	page := h.do(httptest.NewRequest(http.MethodGet, rec.Header().Get("Location"), nil))
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Image not recognised")
	assert.NotContains(t, page.Body.String(), "Top predictions")
}

func TestResultPageMissing(t *testing.T) {
	h := newHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/results/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIPredict(t *testing.T) {
	h := newHarness(t)

	body, err := json.Marshal(PredictRequest{FileName: "eye.png", FileData: pngBytes(t)})
	require.NoError(t, err)
	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Result.ID)
	assert.True(t, strings.HasSuffix(resp.Result.Filename, "_eye.png"), resp.Result.Filename)
	require.NotNil(t, resp.Condition)
	assert.Equal(t, "Healthy Retina", resp.Condition.DisplayName)

	got := h.do(httptest.NewRequest(http.MethodGet, "/api/results/"+resp.Result.ID, nil))
	require.Equal(t, http.StatusOK, got.Code)

	list := h.do(httptest.NewRequest(http.MethodGet, "/api/results?limit=5", nil))
	require.Equal(t, http.StatusOK, list.Code)
	var recs []results.Record
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, resp.Result.ID, recs[0].ID)
}

func TestAPIPredictErrors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Len(t, errResp.Detail, 1)
	assert.Equal(t, "missing_input", errResp.Detail[0].Type)

	rec = h.do(httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"image_url":"https://example.com/page"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "unrecognized_image_url", errResp.Detail[0].Type)
	assert.Equal(t, []string{"body", "image_url"}, errResp.Detail[0].Loc)

	rec = h.do(httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/results/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "not_found", errResp.Detail[0].Type)
}

func TestUploadMissing(t *testing.T) {
	h := newHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/uploads/none.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestAPIKeyRequired(t *testing.T) {
	h := newHarness(t)
	srv, err := New(Deps{
		Uploads:    h.uploads,
		Results:    h.results,
		Fetcher:    h.fetcher,
		Classifier: h.classifier,
	}, Options{APIKeys: []string{"secret"}})
	require.NoError(t, err)
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "unauthorized", errResp.Detail[0].Type)

	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	req.Header.Set("Authorization", "Key secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
