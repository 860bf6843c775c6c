package classify

import "sort"

// Labels in the order the classifier was trained with.
var Labels = []string{
	"Retinal Vein Occlusion",
	"ageDegeneration",
	"cataract",
	"diabetes",
	"myopia",
	"normal",
}

// Prediction is one label with its probability.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// TopK returns the k most probable labels, highest first.
func TopK(probs []float32, k int) []Prediction {
	preds := make([]Prediction, 0, len(probs))
	for i, p := range probs {
		if i >= len(Labels) {
			break
		}
		preds = append(preds, Prediction{Label: Labels[i], Probability: float64(p)})
	}
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Probability > preds[j].Probability
	})
	if k < len(preds) {
		preds = preds[:k]
	}
	return preds
}

// Thresholds decide how a top-1 probability is reported.
type Thresholds struct {
	// RejectBelow marks the image as not a fundus photograph at all.
	RejectBelow float64
	// LowConfidence flags a retinal image the model is unsure about.
	LowConfidence float64
}

var DefaultThresholds = Thresholds{RejectBelow: 0.50, LowConfidence: 0.45}

// Verdict summarises a prediction for display.
type Verdict struct {
	Rejected      bool
	LowConfidence bool
}

// Assess applies the thresholds to the top prediction. Rejection is checked
// first, so with the default thresholds LowConfidence never fires; it still
// applies when RejectBelow is configured lower.
func Assess(top []Prediction, t Thresholds) Verdict {
	if len(top) == 0 {
		return Verdict{Rejected: true}
	}
	p := top[0].Probability
	if p < t.RejectBelow {
		return Verdict{Rejected: true}
	}
	return Verdict{LowConfidence: p < t.LowConfidence}
}
