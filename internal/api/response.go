package api

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-reservation/internal/apperrors"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func SuccessResponse(message string, data any) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message, kind string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     kind,
		Timestamp: time.Now().UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, SuccessResponse(message, data))
}

// respondError renders err with the status of its kind. Internal errors
// never leak their cause.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("API", r.Method+" "+r.URL.Path+": "+err.Error())
	}
	writeJSON(w, status, ErrorResponse(apperrors.PublicMessage(err), string(apperrors.KindOf(err))))
}
