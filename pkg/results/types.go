package results

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vyvo/retina/backend/pkg/classify"
)

// ErrNotFound is returned when no record exists for an ID.
var ErrNotFound = errors.New("result not found")

// Source records which input the image came from.
type Source string

const (
	SourceFile Source = "file"
	SourceURL  Source = "url"
)

// Record is a finished prediction for one image.
type Record struct {
	ID            string                `json:"id"`
	Filename      string                `json:"filename"`
	Source        Source                `json:"source"`
	OriginalURL   string                `json:"original_url,omitempty"`
	Top           []classify.Prediction `json:"top"`
	Rejected      bool                  `json:"rejected"`
	LowConfidence bool                  `json:"low_confidence"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Best returns the top-1 prediction, if any.
func (r Record) Best() (classify.Prediction, bool) {
	if len(r.Top) == 0 {
		return classify.Prediction{}, false
	}
	return r.Top[0], true
}

// Repository defines the storage operations for prediction records.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
}

// prepare fills in the ID and creation time of a new record.
func prepare(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

func clone(rec Record) Record {
	rec.Top = append([]classify.Prediction(nil), rec.Top...)
	return rec
}
