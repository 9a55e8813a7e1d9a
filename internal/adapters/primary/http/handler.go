package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-video-recorder/internal/core/domain"
	"go-video-recorder/internal/core/ports"
	"go-video-recorder/internal/metrics"
)

const chunkFormField = "video_chunk"

type Handler struct {
	service       ports.RecordingService
	logger        *slog.Logger
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
	maxChunkBytes int64
}

// NewHandler wires the REST API. m and gatherer may be nil, in which case
// requests are not measured and /metrics is not served.
func NewHandler(service ports.RecordingService, logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer, maxChunkBytes int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:       service,
		logger:        logger,
		metrics:       m,
		gatherer:      gatherer,
		maxChunkBytes: int64(maxChunkBytes),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.withMetrics("/sessions", h.startSession))
	mux.HandleFunc("POST /sessions/{sessionId}/chunks", h.withMetrics("/sessions/{id}/chunks", h.submitChunk))
	mux.HandleFunc("POST /sessions/{sessionId}/stop", h.withMetrics("/sessions/{id}/stop", h.stopSession))
	mux.HandleFunc("GET /sessions/{sessionId}/stop", h.withMetrics("/sessions/{id}/stop", h.stopSession))
	mux.HandleFunc("GET /sessions/{sessionId}", h.withMetrics("/sessions/{id}", h.getSessionDetail))
	mux.HandleFunc("GET /sessions/{sessionId}/status", h.withMetrics("/sessions/{id}/status", h.getStatus))
	mux.HandleFunc("GET /health", h.health)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type messageResponse struct {
	Message string              `json:"message"`
	State   domain.SessionState `json:"state,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type transcriptionBody struct {
	Text string `json:"text"`
}

type detailResponse struct {
	SessionID     string              `json:"session_id"`
	Video         string              `json:"video"`
	State         domain.SessionState `json:"state"`
	Transcription *transcriptionBody  `json:"transcription"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.StartSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{SessionID: session.ID})
}

func (h *Handler) submitChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	chunk, err := h.readChunk(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.SubmitChunk(r.Context(), sessionID, chunk); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Video data chunk saved successfully"})
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	session, err := h.service.StopSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Recording stopped successfully", State: session.State})
}

func (h *Handler) getSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	detail, err := h.service.GetSessionDetail(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := detailResponse{
		SessionID: detail.SessionID,
		Video:     detail.FinalArtifactPath,
		State:     detail.State,
	}
	if detail.Transcribed {
		resp.Transcription = &transcriptionBody{Text: detail.TranscriptionText}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readChunk accepts either a multipart form with a video_chunk file or the
// raw chunk as the request body.
func (h *Handler) readChunk(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := h.maxChunkBytes
	if limit > 0 {
		// Leave room for multipart framing; the service enforces the exact limit.
		r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err)
		}
		return data, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, domain.ErrEmptyChunk
		}
		if err != nil {
			return nil, bodyError(err)
		}
		if part.FormName() != chunkFormField {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, bodyError(err)
		}
		return data, nil
	}
}

var errBadRequest = errors.New("bad request")

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrChunkTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: read body: %v", errBadRequest, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotReady):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyChunk), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrSessionClosed), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *Handler) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	if h.metrics == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), time.Since(startTime).Seconds())
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
