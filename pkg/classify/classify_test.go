package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK(t *testing.T) {
	probs := []float32{0.05, 0.6, 0.1, 0.2, 0.01, 0.04}

	top := TopK(probs, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "ageDegeneration", top[0].Label)
	assert.Equal(t, "diabetes", top[1].Label)
	assert.Equal(t, "cataract", top[2].Label)
	assert.InDelta(t, 0.6, top[0].Probability, 1e-6)

	assert.Len(t, TopK(probs, 10), len(Labels))
}

func TestAssess(t *testing.T) {
	assert.Equal(t, Verdict{Rejected: true}, Assess([]Prediction{{Probability: 0.49}}, DefaultThresholds))
	assert.Equal(t, Verdict{}, Assess([]Prediction{{Probability: 0.5}}, DefaultThresholds))
	assert.Equal(t, Verdict{Rejected: true}, Assess(nil, DefaultThresholds))

	lenient := Thresholds{RejectBelow: 0.2, LowConfidence: 0.45}
	assert.Equal(t, Verdict{LowConfidence: true}, Assess([]Prediction{{Probability: 0.3}}, lenient))
}

func TestCatalogCoversLabels(t *testing.T) {
	require.Len(t, Catalog, len(Labels))
	for _, label := range Labels {
		c, ok := Lookup(label)
		require.True(t, ok, label)
		assert.NotEmpty(t, c.DisplayName)
	}
	_, ok := Lookup("glaucoma")
	assert.False(t, ok)
}

func TestClientPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/predict", r.URL.Path)
		var req PredictRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.ImageSize)
		assert.Len(t, req.Image, 12)

		_ = json.NewEncoder(w).Encode(PredictResponse{Probabilities: []float32{0, 0, 0, 0, 0, 1}})
	}))
	defer srv.Close()

	probs, err := NewClient(srv.URL+"/").Predict(context.Background(), make([]float32, 12), 2)
	require.NoError(t, err)
	assert.Equal(t, float32(1), probs[5])
}

func TestClientPredictErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_ = json.NewEncoder(w).Encode(PredictResponse{Probabilities: []float32{1}})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Predict(context.Background(), nil, 224)
	assert.ErrorContains(t, err, "expected 6")
	assert.ErrorIs(t, c.Ready(context.Background()), ErrUnavailable)

	srv.Close()
	_, err = c.Predict(context.Background(), nil, 224)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
