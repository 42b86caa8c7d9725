package main

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message, correlationID string) {
	body := map[string]string{"error": message}
	if correlationID != "" {
		body["correlationId"] = correlationID
	}
	respondJSON(w, status, body)
}
