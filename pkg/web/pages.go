package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"github.com/vyvo/retina/backend/pkg/classify"
	"github.com/vyvo/retina/backend/pkg/results"
	"github.com/vyvo/retina/backend/pkg/storage"
)

const readyTimeout = 2 * time.Second

var templateFuncs = template.FuncMap{
	"percent": func(p float64) string {
		return fmt.Sprintf("%.2f%%", p*100)
	},
}

type formPage struct {
	ModelError   bool
	ErrorMessage string
	ImageURL     string
}

type resultPage struct {
	Record    results.Record
	ImageURL  string
	Best      classify.Prediction
	Condition classify.Condition
}

type predictForm struct {
	ImageURL string `schema:"image_url"`
}

var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.deps.Logger.Error("render template failed", "template", name, "error", err)
	}
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "landing.html", classify.Catalog)
}

func (s *Server) modelReady(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := s.deps.Classifier.Ready(ctx); err != nil {
		s.deps.Logger.Error("model runner not ready", "error", err)
		return false
	}
	return true
}

func (s *Server) handlePredictStart(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", formPage{ModelError: !s.modelReady(r.Context())})
}

func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.render(w, http.StatusRequestEntityTooLarge, "index.html", formPage{ErrorMessage: "The uploaded file is too large."})
			return
		}
		s.render(w, http.StatusBadRequest, "index.html", formPage{ErrorMessage: "The form could not be read."})
		return
	}
	if r.PostForm == nil {
		_ = r.ParseForm()
	}

	var form predictForm
	if err := formDecoder.Decode(&form, r.PostForm); err != nil {
		s.render(w, http.StatusBadRequest, "index.html", formPage{ErrorMessage: "The form could not be read."})
		return
	}

	in := predictInput{URL: form.ImageURL}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		if header.Filename != "" {
			data, err := io.ReadAll(file)
			if err != nil {
				s.render(w, http.StatusBadRequest, "index.html", formPage{ErrorMessage: "The uploaded file could not be read."})
				return
			}
			in.FileName = header.Filename
			in.FileData = data
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		s.render(w, http.StatusBadRequest, "index.html", formPage{ErrorMessage: "The uploaded file could not be read."})
		return
	}

	rec, err := s.predict(r.Context(), in)
	if err != nil {
		code := statusOf(err)
		page := formPage{ImageURL: form.ImageURL}
		switch code {
		case http.StatusServiceUnavailable:
			page.ModelError = true
		case http.StatusInternalServerError:
			s.deps.Logger.Error("prediction failed", "error", err)
			page.ErrorMessage = "Prediction failed: internal error."
		default:
			page.ErrorMessage = err.Error()
		}
		s.render(w, code, "index.html", page)
		return
	}

	http.Redirect(w, r, "/results/"+rec.ID, http.StatusSeeOther)
}

func (s *Server) handleResultPage(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Results.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, results.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.deps.Logger.Error("load result failed", "error", err)
		http.Error(w, "failed to load result", http.StatusInternalServerError)
		return
	}

	page := resultPage{Record: rec, ImageURL: "/uploads/" + rec.Filename}
	if best, ok := rec.Best(); ok {
		page.Best = best
		page.Condition, _ = classify.Lookup(best.Label)
	}
	s.render(w, http.StatusOK, "results.html", page)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rc, err := s.deps.Uploads.Open(r.Context(), name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.deps.Logger.Error("open upload failed", "name", name, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = io.Copy(w, rc)
}
