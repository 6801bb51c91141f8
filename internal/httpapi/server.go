package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/urlchecker/internal/domain"
	apimw "github.com/hamed0406/urlchecker/internal/httpapi/middleware"
	"github.com/hamed0406/urlchecker/internal/notify"
)

const maxBodyBytes = 1 << 20

// BatchChecker runs a whole batch. *probe.BatchRunner implements it.
type BatchChecker interface {
	CheckAll(ctx context.Context, urls []string) ([]domain.CheckResult, error)
}

// BatchRecorder is the optional metrics hook for accepted batches.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, size int)
}

type Server struct {
	Logger   *zap.Logger
	Runner   BatchChecker
	Notifier notify.Notifier // nil disables alerts
	Metrics  BatchRecorder   // may be nil
	MaxBatch int
}

func NewServer(l *zap.Logger, runner BatchChecker, maxBatch int) *Server {
	if maxBatch < 1 {
		maxBatch = 50
	}
	return &Server{Logger: l, Runner: runner, MaxBatch: maxBatch}
}

// Options configures the cross-cutting middleware.
type Options struct {
	APIKeys        []string
	AllowedOrigins []string // empty allows all
	RPM            int      // <= 0 disables rate limiting
	Burst          int
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.recoverJSON)
	r.Use(corsHandler(opts.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.RPM, opts.Burst))
		r.Use(apimw.RequireKey(opts.APIKeys))
		r.Post("/check-urls", s.handleCheckURLs)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposedHeaders: []string{"X-Batch-ID"},
		MaxAge:         300,
	})
}

func (s *Server) recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.Logger.Error("handler_panic",
					zap.String("path", r.URL.Path),
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.Any("panic", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type checkPayload struct {
	URLs json.RawMessage `json:"urls"`
}

// handleCheckURLs is the admission boundary: the batch runner assumes a
// validated 1..MaxBatch list of strings.
func (s *Server) handleCheckURLs(w http.ResponseWriter, r *http.Request) {
	var p checkPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	var urls []string
	if len(p.URLs) == 0 || string(p.URLs) == "null" || json.Unmarshal(p.URLs, &urls) != nil {
		writeError(w, http.StatusBadRequest, `send a "urls" field with an array of URL strings`)
		return
	}
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "the URL list must not be empty")
		return
	}
	if len(urls) > s.MaxBatch {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d URLs per request", s.MaxBatch))
		return
	}

	batchID := uuid.NewString()
	log := s.Logger.With(
		zap.String("batch_id", batchID),
		zap.String("request_id", chimw.GetReqID(r.Context())),
	)
	if s.Metrics != nil {
		s.Metrics.RecordBatch(r.Context(), len(urls))
	}

	// the batch runs to completion even if the client goes away
	ctx := context.WithoutCancel(r.Context())
	results, err := s.Runner.CheckAll(ctx, urls)
	if err != nil {
		log.Error("batch_faults", zap.Error(err))
	}
	log.Info("batch_checked", zap.Int("count", len(results)))

	s.alert(ctx, log, results)

	w.Header().Set("X-Batch-ID", batchID)
	writeJSON(w, http.StatusOK, domain.BatchResponse{Results: results, Count: len(results)})
}

func (s *Server) alert(ctx context.Context, log *zap.Logger, results []domain.CheckResult) {
	if s.Notifier == nil {
		return
	}
	title, text, ok := notify.ThreatReport(results)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.Notifier.Send(ctx, title, text); err != nil {
			log.Warn("alert_send_error", zap.Error(err))
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
