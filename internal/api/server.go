// Package api serves normalization, interception and maintenance runs over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/normalize"
	"github.com/maxo-smsgw/smsgw/internal/outbound"
)

const (
	defaultRateLimit  = 120
	defaultRateWindow = time.Minute
	defaultMaxMessage = 10 << 20
	jobRetention      = time.Hour
)

// Processor normalizes bodies and subjects.
type Processor interface {
	Process(raw string) normalize.Result
	StripTicketReference(subject string) string
}

// RunFunc starts one maintenance run of the given kind.
type RunFunc func(ctx context.Context, kind model.RunKind, dryRun bool) (*model.Run, error)

// RunHistory lists recorded maintenance runs.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Options configures a Server. Runs, History and Conversations may be nil,
// which disables the endpoints that need a record store.
type Options struct {
	Addr          string
	Processor     Processor
	Interceptor   *outbound.Interceptor
	Composer      *outbound.Composer
	Runs          RunFunc
	History       RunHistory
	Conversations Conversations
	RateLimit     int
	RateWindow    time.Duration
	MaxMessage    int64
	Logger        *zap.Logger
}

type Server struct {
	addr          string
	proc          Processor
	interceptor   *outbound.Interceptor
	composer      *outbound.Composer
	runs          RunFunc
	history       RunHistory
	conversations Conversations
	maxMessage    int64
	rateLimiter   *RateLimiter
	jobManager    *JobManager
	log           *zap.Logger
	httpServer    *http.Server
}

func NewServer(opts Options) *Server {
	if opts.Processor == nil {
		opts.Processor = normalize.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interceptor == nil {
		opts.Interceptor = outbound.NewInterceptor(outbound.Options{Logger: opts.Logger})
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = defaultRateWindow
	}
	if opts.MaxMessage <= 0 {
		opts.MaxMessage = defaultMaxMessage
	}
	return &Server{
		addr:          opts.Addr,
		proc:          opts.Processor,
		interceptor:   opts.Interceptor,
		composer:      opts.Composer,
		runs:          opts.Runs,
		history:       opts.History,
		conversations: opts.Conversations,
		maxMessage:    opts.MaxMessage,
		rateLimiter:   NewRateLimiter(opts.RateLimit, opts.RateWindow),
		jobManager:    NewJobManager(),
		log:           opts.Logger,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware)
		r.Post("/normalize", s.handleNormalize)
		r.Post("/subject", s.handleSubject)
		r.Post("/intercept", s.handleIntercept)
		r.Get("/conversations/{id}", s.handleConversation)
		r.Get("/runs", s.handleRuns)
		r.Post("/runs", s.handleStartRun)
		r.Get("/job/active", s.handleJobActive)
		r.Get("/job/{jobID}", s.handleJobStatus)
		r.Post("/job/{jobID}/cancel", s.handleJobCancel)
	})

	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("api listening", zap.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels a running job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Close()
	if job := s.jobManager.GetActive(); job != nil {
		job.Cancel()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type normalizeRequest struct {
	Body string `json:"body"`
}

type normalizeResponse struct {
	Text  string   `json:"text"`
	Shape string   `json:"shape"`
	Tier  string   `json:"tier,omitempty"`
	Fired []string `json:"fired,omitempty"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.proc.Process(req.Body)
	writeJSON(w, http.StatusOK, normalizeResponse{
		Text:  res.Text,
		Shape: string(res.Shape),
		Tier:  res.Tier,
		Fired: res.Fired,
	})
}

type subjectRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handleSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, subjectRequest{Subject: s.proc.StripTicketReference(req.Subject)})
}

// handleIntercept takes a raw RFC 5322 message and returns it as it would be
// delivered. X-Smsgw-Rewritten tells whether the gateway rewrite applied.
func (s *Server) handleIntercept(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxMessage)
	msg, err := outbound.ParseMIME(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rewritten := outbound.Prepare(msg, s.interceptor, s.composer)
	out, err := msg.Bytes()
	if err != nil {
		s.log.Error("failed to encode intercepted message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to encode message")
		return
	}

	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("X-Smsgw-Rewritten", strconv.FormatBool(rewritten))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "no record store configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.history.RecentRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to list maintenance runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

type startRunRequest struct {
	Kind   model.RunKind `json:"kind"`
	DryRun bool          `json:"dry_run"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "no record store configured")
		return
	}
	req := startRunRequest{Kind: model.RunFull}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	switch req.Kind {
	case model.RunFull, model.RunMerge, model.RunDedup:
	case "":
		req.Kind = model.RunFull
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown run kind %q", req.Kind))
		return
	}

	s.jobManager.Cleanup(jobRetention)
	job := s.jobManager.Create(req.Kind, req.DryRun)
	if job == nil {
		writeError(w, http.StatusConflict, "a maintenance run is already in progress")
		return
	}

	go s.processRunJob(job)
	writeJSON(w, http.StatusAccepted, job.View())
}

func (s *Server) processRunJob(job *Job) {
	log := s.log.With(zap.String("job", job.ID), zap.String("kind", string(job.Kind)))
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("maintenance job crashed", zap.Error(err))
			job.Finish(nil, err)
		}
	}()

	run, err := s.runs(job.Context(), job.Kind, job.DryRun)
	if err != nil {
		log.Warn("maintenance job failed", zap.Error(err))
	}
	job.Finish(run, err)
}

func (s *Server) handleJobActive(w http.ResponseWriter, r *http.Request) {
	job := s.jobManager.GetActive()
	if job == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"job": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"job": job.View()})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobManager.Get(chi.URLParam(r, "jobID"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.View())
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	job := s.jobManager.Get(chi.URLParam(r, "jobID"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job.Cancel()
	writeJSON(w, http.StatusOK, job.View())
}
