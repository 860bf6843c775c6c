package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"github.com/vyvo/retina/backend/pkg/classify"
	"github.com/vyvo/retina/backend/pkg/intake"
	"github.com/vyvo/retina/backend/pkg/results"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func codedErr(code int, err error) error {
	return &codedError{err: err, code: code}
}

func codedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

func statusOf(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	return http.StatusInternalServerError
}

// ErrorDetail is one entry of an API error envelope.
type ErrorDetail struct {
	Type string   `json:"type"`
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Detail []ErrorDetail `json:"detail"`
}

func errorResponse(err error) ErrorResponse {
	var verr *intake.ValidationError
	if errors.As(err, &verr) {
		loc := []string{"body"}
		if verr.Kind == intake.UnrecognizedImageURL {
			loc = append(loc, "image_url")
		}
		return ErrorResponse{Detail: []ErrorDetail{{Type: verr.Kind.String(), Loc: loc, Msg: err.Error()}}}
	}

	code := statusOf(err)
	typ := strings.ToLower(strings.ReplaceAll(http.StatusText(code), " ", "_"))
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal server error"
	}
	return ErrorResponse{Detail: []ErrorDetail{{Type: typ, Loc: []string{}, Msg: msg}}}
}

func restHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			code := statusOf(err)
			if code == http.StatusInternalServerError {
				slog.Error("internal server error received in endpoint", "path", r.URL.Path, "error", err)
			}
			writeJSON(w, code, errorResponse(err))
			return
		}
		if res == nil {
			res = struct{}{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("error writing json response", "error", err)
	}
}

// PredictRequest is the JSON body of POST /api/predict. FileData is base64
// in JSON.
type PredictRequest struct {
	ImageURL string `json:"image_url"`
	FileName string `json:"file_name"`
	FileData []byte `json:"file_data"`
}

// PredictResponse is a stored record plus the catalog entry of its top label.
type PredictResponse struct {
	Result    results.Record      `json:"result"`
	Condition *classify.Condition `json:"condition,omitempty"`
}

func newPredictResponse(rec results.Record) PredictResponse {
	resp := PredictResponse{Result: rec}
	if best, ok := rec.Best(); ok && !rec.Rejected {
		if c, ok := classify.Lookup(best.Label); ok {
			resp.Condition = &c
		}
	}
	return resp
}

func (s *Server) apiPredict(r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.opts.MaxUploadBytes*2)
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, codedErrorf(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return nil, codedErrorf(http.StatusBadRequest, "unable to parse request body")
	}

	if req.FileName == "" && len(req.FileData) > 0 {
		req.FileName = "upload"
	}
	rec, err := s.predict(r.Context(), predictInput{
		URL:      req.ImageURL,
		FileName: req.FileName,
		FileData: req.FileData,
	})
	if err != nil {
		return nil, err
	}
	return newPredictResponse(rec), nil
}

type listParams struct {
	Limit int `schema:"limit"`
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func (s *Server) apiListResults(r *http.Request) (any, error) {
	var params listParams
	if err := queryDecoder.Decode(&params, r.URL.Query()); err != nil {
		return nil, codedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}
	recs, err := s.deps.Results.List(r.Context(), params.Limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if recs == nil {
		recs = []results.Record{}
	}
	return recs, nil
}

func (s *Server) apiGetResult(r *http.Request) (any, error) {
	rec, err := s.deps.Results.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, results.ErrNotFound) {
		return nil, codedErr(http.StatusNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return newPredictResponse(rec), nil
}
