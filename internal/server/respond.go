package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ErrorResponse is the JSON body written for failed requests
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Status:  "error",
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Errorf("Failed to encode error response: %v", err)
	}
}

// writeServiceError maps service-layer sentinel errors onto HTTP statuses
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		s.writeErrorResponse(w, http.StatusNotFound, msg)
	case strings.Contains(msg, "already exists"),
		strings.Contains(msg, "already in progress"):
		s.writeErrorResponse(w, http.StatusConflict, msg)
	case strings.Contains(msg, "invalid"),
		strings.Contains(msg, "must include"),
		strings.Contains(msg, "no fields to update"),
		strings.Contains(msg, "not a branch"),
		strings.Contains(msg, "no stage context"),
		strings.Contains(msg, "no extraction prompt"),
		strings.Contains(msg, "no curation prompt"),
		strings.Contains(msg, "no concretization prompt"):
		s.writeErrorResponse(w, http.StatusBadRequest, msg)
	default:
		s.logger.Errorf("Request failed: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, msg)
	}
}

func decodeJSONBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
