package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyvo/retina/backend/pkg/classify"
	"github.com/vyvo/retina/backend/pkg/imaging"
	"github.com/vyvo/retina/backend/pkg/intake"
	"github.com/vyvo/retina/backend/pkg/results"
	"github.com/vyvo/retina/backend/pkg/storage"
	"github.com/vyvo/retina/backend/pkg/telemetry"
)

// predictInput is one submission. FileName is empty when no file was sent.
type predictInput struct {
	URL      string
	FileName string
	FileData []byte
}

// predict validates the submission, stores the image, runs the classifier
// and persists the record. Errors carry the HTTP status and the message the
// form page shows.
func (s *Server) predict(ctx context.Context, in predictInput) (results.Record, error) {
	if err := intake.Validate(in.FileName != "", in.URL); err != nil {
		return results.Record{}, codedErr(http.StatusBadRequest, err)
	}

	var (
		rec results.Record
		img image.Image
		err error
	)
	if url := strings.TrimSpace(in.URL); url != "" {
		img, rec, err = s.acquireURL(ctx, url)
	} else {
		img, rec, err = s.acquireFile(ctx, in.FileName, in.FileData)
	}
	if err != nil {
		return results.Record{}, err
	}

	top, err := s.classify(ctx, img)
	if err != nil {
		return results.Record{}, err
	}
	verdict := classify.Assess(top, s.opts.Thresholds)
	rec.Top = top
	rec.Rejected = verdict.Rejected
	rec.LowConfidence = verdict.LowConfidence

	ctx, span := telemetry.StartSpan(ctx, "store", attribute.String("result.filename", rec.Filename))
	err = s.deps.Results.Save(ctx, &rec)
	telemetry.End(span, err)
	if err != nil {
		return results.Record{}, fmt.Errorf("save result: %w", err)
	}

	best, _ := rec.Best()
	s.deps.Logger.Info("prediction complete",
		"id", rec.ID,
		"source", rec.Source,
		"label", best.Label,
		"probability", best.Probability,
		"rejected", rec.Rejected,
	)
	return rec, nil
}

func (s *Server) acquireURL(ctx context.Context, url string) (image.Image, results.Record, error) {
	fetchCtx, span := telemetry.StartSpan(ctx, "fetch", attribute.String("image.url", url))
	remote, err := s.deps.Fetcher.Fetch(fetchCtx, url)
	telemetry.End(span, err)
	if err != nil {
		return nil, results.Record{}, codedErrorf(http.StatusBadGateway,
			"Error downloading image from URL. Check URL or network: %w", err)
	}

	decoded, err := decode(ctx, remote.Data)
	if err != nil {
		return nil, results.Record{}, codedErrorf(http.StatusUnprocessableEntity,
			"The downloaded file is not a valid image or another URL error occurred: %w", err)
	}
	jpg, err := imaging.EncodeJPEG(decoded.Image)
	if err != nil {
		return nil, results.Record{}, codedErrorf(http.StatusUnprocessableEntity,
			"The downloaded file is not a valid image or another URL error occurred: %w", err)
	}

	name := fmt.Sprintf("url_image_%s.jpg", uuid.NewString())
	if err := s.deps.Uploads.Put(ctx, name, bytes.NewReader(jpg), "image/jpeg"); err != nil {
		return nil, results.Record{}, fmt.Errorf("store %s: %w", name, err)
	}
	return decoded.Image, results.Record{Filename: name, Source: results.SourceURL, OriginalURL: url}, nil
}

func (s *Server) acquireFile(ctx context.Context, filename string, data []byte) (image.Image, results.Record, error) {
	safe, err := storage.SecureFilename(filename)
	if err != nil {
		return nil, results.Record{}, codedErrorf(http.StatusBadRequest,
			"The uploaded file could not be processed. Invalid file name.")
	}

	decoded, err := decode(ctx, data)
	if err != nil {
		return nil, results.Record{}, codedErrorf(http.StatusUnprocessableEntity,
			"The uploaded file could not be processed. Not a valid image.")
	}

	name := fmt.Sprintf("%s_%s", uuid.NewString(), safe)
	if err := s.deps.Uploads.Put(ctx, name, bytes.NewReader(data), http.DetectContentType(data)); err != nil {
		return nil, results.Record{}, fmt.Errorf("store %s: %w", name, err)
	}
	return decoded.Image, results.Record{Filename: name, Source: results.SourceFile}, nil
}

func decode(ctx context.Context, data []byte) (imaging.Decoded, error) {
	_, span := telemetry.StartSpan(ctx, "decode", attribute.Int("image.bytes", len(data)))
	decoded, err := imaging.Decode(data)
	telemetry.End(span, err)
	return decoded, err
}

func (s *Server) classify(ctx context.Context, img image.Image) ([]classify.Prediction, error) {
	ctx, span := telemetry.StartSpan(ctx, "classify", attribute.Int("image.size", s.opts.ImageSize))
	tensor := imaging.Tensor(img, s.opts.ImageSize)
	probs, err := s.deps.Classifier.Predict(ctx, tensor, s.opts.ImageSize)
	telemetry.End(span, err)
	if errors.Is(err, classify.ErrUnavailable) {
		return nil, codedErr(http.StatusServiceUnavailable, err)
	}
	if err != nil {
		return nil, codedErrorf(http.StatusBadGateway, "Prediction failed: %w", err)
	}
	return classify.TopK(probs, s.opts.TopK), nil
}
