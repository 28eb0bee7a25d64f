package api

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// uploadResponse keeps the {status, message} shape browser clients already parse.
type uploadResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Handle    string `json:"handle,omitempty"`
	Digest    string `json:"digest,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func writeUploadError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, uploadResponse{Status: "error", Message: msg})
}
