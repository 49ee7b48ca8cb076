package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/config"
	"github.com/NicholasBarkolias/job-booking-expo/internal/database"
	"github.com/NicholasBarkolias/job-booking-expo/internal/domain"
	"github.com/NicholasBarkolias/job-booking-expo/internal/metrics"
	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
	"github.com/NicholasBarkolias/job-booking-expo/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the data service to application code over HTTP. Every
// handler resolves against the local store only; sync state is reachable
// through the /sync endpoints but never blocks a data call.
type HTTPServer struct {
	cfg    config.APIConfig
	data   domain.DataService
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, data domain.DataService, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, data: data, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/login", srv.handleLogin)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	mux.HandleFunc("/api/v1/jobs", srv.handleCreateJob)
	mux.HandleFunc("/api/v1/jobs/", srv.handleJobStatus)
	mux.HandleFunc("/api/v1/timeslots", srv.handleTimeSlots)
	mux.HandleFunc("/api/v1/sync/failed", srv.handleFailedOps)
	mux.HandleFunc("/api/v1/sync/failed/", srv.handleRetryFailedOp)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	root := http.NewServeMux()
	root.Handle("/api/", handler)
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("login")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.data.Login(r.Context(), req.Email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	switch r.Method {
	case http.MethodGet:
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "tenant_id is required")
			return
		}
		bookings, err := s.data.GetBookingsByTenantID(r.Context(), tenantID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if bookings == nil {
			bookings = []*models.Booking{}
		}
		writeJSON(w, http.StatusOK, bookings)

	case http.MethodPost:
		var req models.NewBooking
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		booking, err := s.data.CreateBooking(r.Context(), req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, booking)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking")
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		booking, err := s.data.GetBookingByID(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	case http.MethodPatch:
		var update models.BookingUpdate
		if err := decodeJSON(r, &update); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		booking, err := s.data.UpdateBooking(r.Context(), id, update)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.NewJob
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.data.CreateJob(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *HTTPServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("job_status")
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	jobID, ok := strings.CutSuffix(rest, "/status")
	if !ok || jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.data.UpdateJobStatus(r.Context(), jobID, req.Status)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleTimeSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("timeslots")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	dateStr := r.URL.Query().Get("date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	slots, err := s.data.GetTimeSlots(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *HTTPServer) handleFailedOps(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_failed")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ops, err := s.data.GetFailedOperations(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if ops == nil {
		ops = []models.PendingOperation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *HTTPServer) handleRetryFailedOp(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_retry")
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sync/failed/")
	idStr, ok := strings.CutSuffix(rest, "/retry")
	if !ok || idStr == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid operation id")
		return
	}
	if err := s.data.RetryFailedOperation(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// decodeJSON rejects unknown fields so a typo in an update payload fails
// loudly instead of silently naming a stray column.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
