package optd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/metrics"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/reliability"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

const (
	maxRequestBytes   = 4 << 20
	sseKeepAlive      = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
	defaultPageLimit  = 50
	maximumPageLimit  = 1000
	contentTypeYAML   = "yaml"
	contentTypeSSE    = "text/event-stream"
	sseEventProgress  = "progress"
	sseEventComplete  = "complete"
	sseEventHeartbeat = ": keep-alive\n\n"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

type HTTPServer struct {
	mux        *http.ServeMux
	Controller *Controller
}

func NewHTTPServer(controller *Controller) *HTTPServer {
	s := &HTTPServer{
		mux:        http.NewServeMux(),
		Controller: controller,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/v1/jobs", s.handleJobs)
	s.mux.HandleFunc("/v1/jobs/", s.handleJobByID)
	s.mux.HandleFunc("/v1/surrogates", s.handleSurrogates)
	s.mux.HandleFunc("/v1/rule-sets", s.handleRuleSets)

	return s
}

// Handler returns the routes wrapped with request logging
func (s *HTTPServer) Handler() http.Handler {
	return withRequestID(s.mux)
}

const requestIDHeader = "X-Request-ID"

// withRequestID tags every request with an ID, taken from the caller when it
// sends one, and logs the request once it is served
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	counts := s.Controller.Counts()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"jobs": map[string]int{
			"pending": counts[models.JobStatusPending],
			"running": counts[models.JobStatusRunning],
		},
	})
}

// handleJobs handles /v1/jobs endpoint
func (s *HTTPServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeInvalidJob, "method not allowed")
	}
}

// handleJobByID handles /v1/jobs/{id} and related endpoints
func (s *HTTPServer) handleJobByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, "job ID is required")
		return
	}

	routes := []struct {
		suffix  string
		method  string
		handler func(http.ResponseWriter, *http.Request, string)
	}{
		{":cancel", http.MethodPost, s.handleCancelJob},
		{"/results", http.MethodGet, s.handleGetResults},
		{"/reliability", http.MethodPost, s.handleReliability},
		{"/progress/stream", http.MethodGet, s.handleProgressStream},
		{"/progress/ws", http.MethodGet, s.handleProgressWebSocket},
		{"/progress/timeseries", http.MethodGet, s.handleTimeSeries},
	}
	for _, route := range routes {
		if !strings.HasSuffix(path, route.suffix) {
			continue
		}
		jobID := strings.TrimSuffix(path, route.suffix)
		if r.Method != route.method {
			s.writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeInvalidJob, "method not allowed")
			return
		}
		route.handler(w, r, jobID)
		return
	}

	// Otherwise it's GET /v1/jobs/{id}
	if r.Method == http.MethodGet {
		s.handleGetJob(w, r, path)
	} else {
		s.writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeInvalidJob, "method not allowed")
	}
}

// handleSubmitJob handles POST /v1/jobs. The body is a job spec in JSON, or
// YAML when the content type says so.
func (s *HTTPServer) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, "failed to read request body: "+err.Error())
		return
	}

	var spec *config.JobSpec
	if strings.Contains(r.Header.Get("Content-Type"), contentTypeYAML) {
		spec, err = config.ParseJobSpecYAML(body)
	} else {
		spec, err = config.ParseJobSpecJSON(body)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, err.Error())
		return
	}

	job, err := s.Controller.Submit(r.Context(), spec)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}

	logger.Info("job submitted (HTTP)", "job_id", job.ID)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"job_id": job.ID,
		"job":    job,
	})
}

// handleListJobs handles GET /v1/jobs with pagination and filtering
func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maximumPageLimit)
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var status models.JobStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		parsed, ok := models.ParseJobStatus(strings.ToLower(statusStr))
		if !ok {
			s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, "unknown status: "+statusStr)
			return
		}
		status = parsed
	}

	jobs, total, err := s.Controller.List(r.Context(), ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		s.writeControllerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs": jobs,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(jobs),
			"total":  total,
		},
	})
}

// handleGetJob handles GET /v1/jobs/{id}
func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := s.Controller.Get(r.Context(), jobID)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// handleCancelJob handles POST /v1/jobs/{id}:cancel
func (s *HTTPServer) handleCancelJob(w http.ResponseWriter, _ *http.Request, jobID string) {
	job, err := s.Controller.Cancel(jobID)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}

	logger.Info("job cancel requested (HTTP)", "job_id", jobID, "status", job.Status)
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// handleGetResults handles GET /v1/jobs/{id}/results
func (s *HTTPServer) handleGetResults(w http.ResponseWriter, r *http.Request, jobID string) {
	res, err := s.Controller.Results(r.Context(), jobID)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleReliability handles POST /v1/jobs/{id}/reliability
func (s *HTTPServer) handleReliability(w http.ResponseWriter, r *http.Request, jobID string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, "failed to read request body: "+err.Error())
		return
	}
	spec, err := config.ParseReliabilitySpecJSON(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, err.Error())
		return
	}

	res, err := s.Controller.AnalyzeReliability(r.Context(), jobID, spec)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleProgressStream handles GET /v1/jobs/{id}/progress/stream (SSE)
func (s *HTTPServer) handleProgressStream(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()
	sub, err := s.Controller.Subscribe(ctx, jobID)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flush(w)

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	var last models.ProgressSnapshot
	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, sseEventHeartbeat); err != nil {
				return
			}
			flush(w)
		case snap, ok := <-sub.C:
			if !ok {
				if last.Terminal() {
					s.sendSSEEvent(w, sseEventComplete, map[string]any{
						"job_id": last.JobID,
						"status": last.Status,
						"reason": last.Reason,
					})
					flush(w)
				}
				return
			}
			last = snap
			s.sendSSEEvent(w, sseEventProgress, snap)
			flush(w)
		}
	}
}

// handleProgressWebSocket handles GET /v1/jobs/{id}/progress/ws. Every
// snapshot is sent as one JSON text message; the server closes the
// connection normally after the terminal snapshot.
func (s *HTTPServer) handleProgressWebSocket(w http.ResponseWriter, r *http.Request, jobID string) {
	sub, err := s.Controller.Subscribe(r.Context(), jobID)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	defer sub.Cancel()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", "job_id", jobID, "error", err)
		return
	}
	defer ws.Close()

	// the reader only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-sub.C:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
				_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(snap); err != nil {
				logger.Warn("failed to write websocket snapshot", "job_id", jobID, "error", err)
				return
			}
		}
	}
}

// handleTimeSeries handles GET /v1/jobs/{id}/progress/timeseries
func (s *HTTPServer) handleTimeSeries(w http.ResponseWriter, r *http.Request, jobID string) {
	since := -1
	if sinceStr := r.URL.Query().Get("since_generation"); sinceStr != "" {
		parsed, err := strconv.Atoi(sinceStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, "invalid since_generation: "+err.Error())
			return
		}
		since = parsed
	}

	var startTime, endTime time.Time
	var err error
	if startTimeStr := r.URL.Query().Get("start_time"); startTimeStr != "" {
		if startTime, err = parseTime(startTimeStr); err != nil {
			s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, "invalid start_time format: "+err.Error())
			return
		}
	}
	if endTimeStr := r.URL.Query().Get("end_time"); endTimeStr != "" {
		if endTime, err = parseTime(endTimeStr); err != nil {
			s.writeError(w, http.StatusBadRequest, models.ErrorCodeInvalidJob, "invalid end_time format: "+err.Error())
			return
		}
	}

	points, err := s.Controller.TimeSeries(r.Context(), jobID, since)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}

	metricName := r.URL.Query().Get("metric")
	objective := r.URL.Query().Get("objective")
	filtered := make([]metrics.Point, 0, len(points))
	for _, p := range points {
		if metricName != "" && p.Name != metricName {
			continue
		}
		if objective != "" && p.Labels["objective"] != objective {
			continue
		}
		if !startTime.IsZero() && p.Timestamp.Before(startTime) {
			continue
		}
		if !endTime.IsZero() && p.Timestamp.After(endTime) {
			continue
		}
		filtered = append(filtered, p)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"points": filtered,
	})
}

// handleSurrogates handles GET /v1/surrogates
func (s *HTTPServer) handleSurrogates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeInvalidJob, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"surrogates": s.Controller.Registry().Names(),
	})
}

// handleRuleSets handles GET /v1/rule-sets
func (s *HTTPServer) handleRuleSets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeInvalidJob, "method not allowed")
		return
	}
	sets := []constraint.RuleSetInfo{}
	if rules := s.Controller.Rules(); rules != nil {
		sets = rules.List()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rule_sets": sets})
}

// parseTime parses time from ISO 8601 or Unix milliseconds
func parseTime(timeStr string) (time.Time, error) {
	if unixMs, err := strconv.ParseInt(timeStr, 10, 64); err == nil {
		return time.UnixMilli(unixMs).UTC(), nil
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unable to parse time format")
}

// sendSSEEvent writes one Server-Sent Event. SSE streams are best-effort, so
// write errors are only logged.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		logger.Error("failed to write SSE event", "event", eventType, "error", err)
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Helper functions

// ErrorCode returns the stable code for an error returned by the controller
func ErrorCode(err error) models.ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidJob), errors.Is(err, reliability.ErrInvalidRequest):
		return models.ErrorCodeInvalidJob
	case errors.Is(err, ErrJobNotFound):
		return models.ErrorCodeNotFound
	case errors.Is(err, ErrJobNotCompleted):
		return models.ErrorCodeNotCompleted
	case errors.Is(err, reliability.ErrSamplingFailed):
		return models.ErrorCodeSamplingFailed
	case errors.Is(err, surrogate.ErrSurrogateUnavailable):
		return models.ErrorCodeSurrogateUnavailable
	default:
		return models.ErrorCodeInternal
	}
}

func httpStatus(code models.ErrorCode) int {
	switch code {
	case models.ErrorCodeInvalidJob:
		return http.StatusBadRequest
	case models.ErrorCodeNotFound:
		return http.StatusNotFound
	case models.ErrorCodeNotCompleted:
		return http.StatusConflict
	case models.ErrorCodeSamplingFailed:
		return http.StatusUnprocessableEntity
	case models.ErrorCodeSurrogateUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeControllerError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrShuttingDown) {
		s.writeError(w, http.StatusServiceUnavailable, models.ErrorCodeInternal, err.Error())
		return
	}
	code := ErrorCode(err)
	s.writeError(w, httpStatus(code), code, err.Error())
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
		"code":  code,
	})
}
