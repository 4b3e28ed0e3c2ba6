package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resumekit/api/internal/auth"
	"resumekit/api/internal/importer"
	"resumekit/api/internal/resume"
	"resumekit/api/internal/search"
	"resumekit/api/internal/session"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
}

// NewHTTPServer builds the API handler. Request counters are registered on
// registry, which is also what /metrics serves; nil gets a private registry.
func NewHTTPServer(service *Service, corsOrigin string, registry *prometheus.Registry) *HTTPServer {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resumekit_http_requests_total",
		Help: "API requests by method and response status.",
	}, []string{"method", "status"})
	if err := registry.Register(requests); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			requests = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, registry: registry, requests: requests}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, authPrefix) {
		s.handleAuth(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		current, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      current.UserName,
			"userId":        current.AccountID,
			"email":         current.Email,
			"plan":          current.Plan,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if !readJSON(w, r, &body) {
			return
		}
		refreshed, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(refreshed))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		current := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				current = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), current, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	current, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := search.Query{
			Text:     strings.TrimSpace(r.URL.Query().Get("q")),
			Template: strings.TrimSpace(r.URL.Query().Get("template")),
		}
		var err error
		if query.Limit, err = intParam(r, "limit", 20); err != nil {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, "limit must be an integer", nil)
			return
		}
		if query.Offset, err = intParam(r, "offset", 0); err != nil {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, "offset must be an integer", nil)
			return
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), current, query))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/import" {
		s.handleImport(w, r, current)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/billing/checkout" {
		var body struct {
			Plan string `json:"plan"`
		}
		if !readJSON(w, r, &body) {
			return
		}
		payload, err := s.service.Checkout(r.Context(), current, body.Plan)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "collections" {
		s.handleCollections(w, r, current, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
}

// handleCollections serves /api/collections/{name}[/{id}[/export|/history[/{hash}]]].
func (s *HTTPServer) handleCollections(w http.ResponseWriter, r *http.Request, current Session, name string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			filter := make(map[string]string)
			for key, values := range r.URL.Query() {
				if len(values) > 0 {
					filter[key] = values[0]
				}
			}
			records, err := s.service.ListRecords(r.Context(), current, name, filter)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, records)
		case http.MethodPost:
			var body map[string]any
			if !readJSON(w, r, &body) {
				return
			}
			created, err := s.service.CreateRecord(r.Context(), current, name, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id := rest[0]
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPatch, http.MethodPut:
			var body map[string]any
			if !readJSON(w, r, &body) {
				return
			}
			updated, err := s.service.UpdateRecord(r.Context(), current, name, id, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := s.service.DeleteRecord(r.Context(), current, name, id); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if name != resume.CollectionName || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
		return
	}

	switch {
	case len(rest) == 2 && rest[1] == "export":
		result, err := s.service.Export(r.Context(), current, id, r.URL.Query().Get("format"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
	case len(rest) == 2 && rest[1] == "history":
		limit, err := intParam(r, "limit", 50)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, "limit must be an integer", nil)
			return
		}
		payload, err := s.service.History(r.Context(), current, id, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 3 && rest[1] == "history":
		payload, err := s.service.Revision(r.Context(), current, id, rest[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	}
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request, current Session) {
	r.Body = http.MaxBytesReader(w, r.Body, importer.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(importer.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", importer.ErrTooLarge.Error(), nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form with a file field", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, CodeValidation, "file is required", nil)
		return
	}
	defer file.Close()

	result, err := s.service.Import(r.Context(), current, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"draft":    result.Draft,
		"key":      result.Key,
		"mimeType": result.MimeType,
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
		return Session{}, false
	}
	current, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusNotFound {
			status, code, message, details = http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil
		}
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	return current, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.requests.WithLabelValues(r.Method, strconv.Itoa(writer.status)).Inc()
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("app: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// readJSON decodes the request body into target and writes a 400 when it
// is not valid JSON.
func readJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func intParam(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func sessionPayload(current Session) map[string]any {
	return map[string]any{
		"accessToken":  current.Token,
		"refreshToken": current.RefreshToken,
		"userId":       current.AccountID,
		"userName":     current.UserName,
		"plan":         current.Plan,
		"expiresAt":    current.ExpiresAt.Unix(),
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, CodeNotFound, "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, session.ErrSessionNotFound) {
		return http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
