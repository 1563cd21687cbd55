package mw

import (
	"encoding/json"
	"net/http"
)

// errorBody is the JSON envelope every rejection from this service uses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError sends the JSON error envelope. Handlers outside this package
// use it so all rejections look the same on the wire.
func WriteError(w http.ResponseWriter, status int, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: message, Details: details}})
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]any) {
	WriteError(w, status, message, details)
}
