package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/telqo/gsmbridge/modem"
)

// Server handles incoming HTTP requests for interacting with the
// gateway's devices
type Server struct {
	Logger  *slog.Logger
	Gateway *Gateway
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sms", s.handleSMS)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		Device  string `json:"device"`
		To      string `json:"to"`
		Message string `json:"message"`
		// Report requests per-part delivery confirmation.
		Report bool `json:"report"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Device == "" || req.To == "" || req.Message == "" {
		s.sendError(w, "'device', 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	if err := s.Gateway.Send(req.Device, req.To, req.Message, req.Report); err != nil {
		s.Logger.Error("Failed to queue SMS", "error", err, "device", req.Device, "to", req.To)
		status := http.StatusInternalServerError
		if errors.Is(err, modem.ErrNotInitialized) || errors.Is(err, modem.ErrNotConnected) {
			status = http.StatusServiceUnavailable
		}
		s.sendError(w, err.Error(), status)
		return
	}

	s.Logger.Info("SMS queued", "device", req.Device, "to", req.To, "message_length", len(req.Message))
	w.WriteHeader(http.StatusAccepted)
}

// handleDevices lists every configured device and its session state
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Gateway.Devices())
}
