// Package gateway is the HTTP surface of the marketplace engine. It
// composes the entitlement evaluator, the admission controller, the
// artifact store and the inference runner; it holds no entitlement state
// of its own.
package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"tensormart.io/market/admission"
	"tensormart.io/market/artifact"
	"tensormart.io/market/captoken"
	"tensormart.io/market/entitle"
	"tensormart.io/market/inference"
	"tensormart.io/market/ledger"
)

const (
	defaultMaxUploadBytes = 500 << 20
	defaultDownloadTTL    = time.Hour
)

// Config wires a Server. Reader, Evaluator, Admission and Signer are
// required; Store and Runner may be nil when the deployment does not
// serve downloads or inference.
type Config struct {
	Program   ledger.Address
	Reader    ledger.Reader
	Evaluator *entitle.Evaluator
	Admission *admission.Controller
	Signer    *captoken.Signer
	Store     artifact.Store
	Runner    inference.Runner
	Logger    *zap.Logger

	// BaseURL prefixes issued download URLs, e.g. "https://api.example.com".
	BaseURL string

	// DownloadTTL bounds capability token lifetime. Default 1h.
	DownloadTTL time.Duration

	// MaxUploadBytes bounds artifact uploads. Default 500 MiB.
	MaxUploadBytes int64
}

type Server struct {
	program   ledger.Address
	reader    ledger.Reader
	evaluator *entitle.Evaluator
	admission *admission.Controller
	signer    *captoken.Signer
	store     artifact.Store
	runner    inference.Runner
	log       *zap.Logger

	baseURL        string
	downloadTTL    time.Duration
	maxUploadBytes int64
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.DownloadTTL
	if ttl <= 0 {
		ttl = defaultDownloadTTL
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Server{
		program:        cfg.Program,
		reader:         cfg.Reader,
		evaluator:      cfg.Evaluator,
		admission:      cfg.Admission,
		signer:         cfg.Signer,
		store:          cfg.Store,
		runner:         cfg.Runner,
		log:            log,
		baseURL:        cfg.BaseURL,
		downloadTTL:    ttl,
		maxUploadBytes: maxUpload,
	}
}

// Handler builds the router. Safe for concurrent use; every request runs
// independently.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(s.logRequests)
	r.Use(s.withIdentity)

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/auth/token", s.handleAuthToken)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/marketplace", s.handleMarketplace)

		r.Route("/models", func(r chi.Router) {
			r.Get("/", s.handleListModels)
			r.Post("/upload", s.handleUpload)
			r.Get("/creator/{principal}", s.handleModelsByCreator)
			r.Get("/{address}", s.handleGetModel)
			r.Get("/{address}/stats", s.handleModelStats)
		})

		r.Route("/access", func(r chi.Router) {
			r.Get("/check/{user}/{model}", s.handleCheckAccess)
			r.Get("/user/{user}", s.handleListUserAccess)
			// Download issuance is a paid operation; it sits behind the
			// admission gate like inference does.
			r.With(s.throttled).Post("/download/{model}", s.handleRequestDownload)
		})

		r.Get("/download/{model}", s.handleDownload)

		r.Route("/inference", func(r chi.Router) {
			r.Get("/history/{user}", s.handleInferenceHistory)
			r.With(s.throttled).Post("/{model}", s.handleRunInference)
		})
	})

	return r
}
