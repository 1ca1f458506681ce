package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"hpc-job-metrics/internal/api"
	"hpc-job-metrics/internal/logging"
	"hpc-job-metrics/internal/model"
	"hpc-job-metrics/internal/storage"
)

const (
	tokenTTL           = time.Hour
	defaultMaxBodySize = 1 << 20
)

var (
	metricRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobmetrics", Subsystem: "mock", Name: "requests_total", Help: "Requests served, by route and status code.",
	}, []string{"route", "code"})
	metricTokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobmetrics", Subsystem: "mock", Name: "tokens_issued_total", Help: "Access tokens issued.",
	})
)

func init() {
	prometheus.MustRegister(metricRequests, metricTokensIssued)
}

type serverOptions struct {
	ClientID     string
	ClientSecret string
	// Location is the timezone of the from/to query parameters.
	Location *time.Location
	Logger   zerolog.Logger
	// MaxBodySize caps request bodies. Defaults to 1MB.
	MaxBodySize int64
}

type server struct {
	store storage.Store
	opts  serverOptions

	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
	now    func() time.Time
}

// newServer builds an http.Handler with all routes, for testing and for main().
func newServer(store storage.Store, opts serverOptions) http.Handler {
	return newMockServer(store, opts).routes()
}

func newMockServer(store storage.Store, opts serverOptions) *server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}
	return &server{store: store, opts: opts, tokens: map[string]time.Time{}, now: time.Now}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(logging.Middleware(s.opts.Logger), instrument, limitBody(s.opts.MaxBodySize))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)

	m := r.PathPrefix("/metrics/{cluster}/{jobid}").Subrouter()
	m.Use(s.requireToken)
	m.HandleFunc("/"+api.PathCapstorGlobal, s.handleCapstor).Methods(http.MethodGet)
	m.HandleFunc("/"+api.PathGPUTemperature, s.handleGPU).Methods(http.MethodGet)
	m.HandleFunc("/{node_id}/"+api.PathGPUTemperature, s.handleGPU).Methods(http.MethodGet)
	return r
}

func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := basicCredentials(r)
	if !ok || user != s.opts.ClientID || pass != s.opts.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "invalid_request"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = s.now().Add(tokenTTL)
	s.mu.Unlock()
	metricTokensIssued.Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(tokenTTL.Seconds()),
	})
}

// basicCredentials returns the Basic auth client id and secret. Clients form-encode
// both before building the header (RFC 6749 section 2.3.1).
func basicCredentials(r *http.Request) (string, string, bool) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	user, err := url.QueryUnescape(user)
	if err != nil {
		return "", "", false
	}
	pass, err = url.QueryUnescape(pass)
	if err != nil {
		return "", "", false
	}
	return user, pass, true
}

func (s *server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		h := r.Header.Get("Authorization")
		if len(h) <= len(prefix) || h[:len(prefix)] != prefix || !s.validToken(h[len(prefix):]) {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) validToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[token]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.tokens, token)
		return false
	}
	return true
}

func (s *server) handleCapstor(w http.ResponseWriter, r *http.Request) {
	points, ok := s.query(w, r, api.PathCapstorGlobal)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, api.CapstorGlobalFromPoints(points))
}

func (s *server) handleGPU(w http.ResponseWriter, r *http.Request) {
	points, ok := s.query(w, r, api.PathGPUTemperature)
	if !ok {
		return
	}
	node := mux.Vars(r)["node_id"]
	resp := api.GPUTemperatureFromPoints(points, node)
	if node != "" && len(resp.Nodes) == 0 && len(points) > 0 {
		http.Error(w, "node is not part of the job", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// query resolves the job and window of r and returns its stored points of source.
// It writes the error response itself and reports false on failure.
func (s *server) query(w http.ResponseWriter, r *http.Request, source string) ([]model.Point, bool) {
	vars := mux.Vars(r)
	job := model.JobRef{Cluster: vars["cluster"], JobID: vars["jobid"]}
	log := zerolog.Ctx(r.Context())

	var startPtr, endPtr *time.Time
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &startPtr}, {"to", &endPtr}} {
		v := r.URL.Query().Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.ParseInLocation(api.WindowLayout, v, s.opts.Location)
		if err != nil {
			http.Error(w, "invalid "+p.name, http.StatusBadRequest)
			return nil, false
		}
		*p.dst = &t
	}

	known, err := s.knownJob(job)
	if err != nil {
		log.Error().Err(err).Str("job", job.String()).Msg("list jobs")
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	if !known {
		http.Error(w, "unknown job", http.StatusNotFound)
		return nil, false
	}

	points, err := s.store.QueryPoints(job, source, startPtr, endPtr)
	if err != nil {
		log.Error().Err(err).Str("job", job.String()).Str("source", source).Msg("query points")
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	return points, true
}

func (s *server) knownJob(job model.JobRef) (bool, error) {
	jobs, err := s.store.ListJobs()
	if err != nil {
		return false, err
	}
	for _, j := range jobs {
		if j == job {
			return true, nil
		}
	}
	return false, nil
}

// instrument counts requests by route template so job ids stay out of the labels.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metricRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

func limitBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (r *codeRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
