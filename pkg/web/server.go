package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vyvo/retina/backend/pkg/auth"
	"github.com/vyvo/retina/backend/pkg/classify"
	"github.com/vyvo/retina/backend/pkg/fetch"
	"github.com/vyvo/retina/backend/pkg/results"
	"github.com/vyvo/retina/backend/pkg/storage"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Fetcher downloads an image referenced by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Image, error)
}

// Classifier runs the model on a preprocessed tensor.
type Classifier interface {
	Predict(ctx context.Context, tensor []float32, size int) ([]float32, error)
	Ready(ctx context.Context) error
}

// Deps are the backends a Server talks to.
type Deps struct {
	Uploads    storage.Store
	Results    results.Repository
	Fetcher    Fetcher
	Classifier Classifier
	Logger     Logger
}

// Options tune the prediction pipeline.
type Options struct {
	TopK           int
	ImageSize      int
	Thresholds     classify.Thresholds
	MaxUploadBytes int64
	StaticDir      string

	// APIKeys protect /api when non-empty.
	APIKeys []string
}

// Server renders the screening pages and the JSON API.
type Server struct {
	deps      Deps
	opts      Options
	templates *template.Template
	keyring   *auth.Keyring
}

func New(deps Deps, opts Options) (*Server, error) {
	if deps.Uploads == nil || deps.Results == nil || deps.Fetcher == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("web: uploads, results, fetcher and classifier are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.TopK < 1 {
		opts.TopK = 3
	}
	if opts.ImageSize < 1 {
		opts.ImageSize = 224
	}
	if opts.Thresholds == (classify.Thresholds{}) {
		opts.Thresholds = classify.DefaultThresholds
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Server{deps: deps, opts: opts, templates: tmpl, keyring: auth.NewKeyring(opts.APIKeys)}, nil
}

// Routes mounts every page and API endpoint on a new router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", healthzHandler)
	r.Get("/", s.handleLanding)
	r.Get("/predict_start", s.handlePredictStart)
	r.Post("/predict", s.handlePredictForm)
	r.Get("/results/{id}", s.handleResultPage)

	r.Get("/uploads/{name}", s.handleUpload)
	r.Get("/static/uploads/{name}", s.handleUpload)
	if s.opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.opts.StaticDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/predict", restHandler(s.apiPredict))
		r.Get("/results", restHandler(s.apiListResults))
		r.Get("/results/{id}", restHandler(s.apiGetResult))
	})
	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.keyring.Check(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Key realm="retina"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse(codedErr(http.StatusUnauthorized, err)))
			return
		}
		next.ServeHTTP(w, r)
	})
}
