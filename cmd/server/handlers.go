package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/wav"
	"github.com/himanishpuri/audiowm/pkg/audiowm"
	"github.com/himanishpuri/audiowm/pkg/logger"
)

// Server encapsulates the HTTP server and its dependencies.
type Server struct {
	service   audiowm.Service
	config    *ServerConfig
	log       audiowm.Logger
	validator *validator.Validate
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           int
	DBPath         string
	AllowedOrigins []string
}

func NewServer(service audiowm.Service, config *ServerConfig) *Server {
	return &Server{
		service:   service,
		config:    config,
		log:       logger.GetLogger(),
		validator: validator.New(),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("failed to encode JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "audiowm API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":  "GET /health",
			"metrics": "GET /api/health/metrics",
			"decode":  "POST /api/decode",
			"speed":   "POST /api/speed",
			"keys":    "GET /api/keys, POST /api/keys",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	keys, err := s.service.ListKeys()
	if err != nil {
		s.log.Errorf("failed to count keys: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to retrieve metrics")
		return
	}
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:   "healthy",
		DBPath:   s.config.DBPath,
		KeyCount: len(keys),
	})
}

// handleDecode handles POST /api/decode.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req DecodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.WAVBase64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "wav_base64 is not valid base64")
		return
	}
	data, err := wav.Read(bytes.NewReader(raw))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "could not decode WAV data")
		return
	}

	result, err := s.service.Search(ctx, data, req.KeyLabels, req.Mode)
	if err != nil {
		s.log.Errorf("decode failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, "decode failed")
		return
	}

	candidates := make([]SyncCandidateDTO, len(result.Candidates))
	for i, c := range result.Candidates {
		candidates[i] = SyncCandidateDTO{
			KeyLabel:  c.KeyLabel,
			FrameIdx:  c.FrameIdx,
			Quality:   c.Quality,
			BlockType: c.BlockType,
		}
	}
	s.respondJSON(w, http.StatusOK, DecodeResponse{Candidates: candidates, Count: len(candidates)})
}

// handleSpeed handles POST /api/speed.
func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req SpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.WAVBase64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "wav_base64 is not valid base64")
		return
	}
	data, err := wav.Read(bytes.NewReader(raw))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "could not decode WAV data")
		return
	}

	results, err := s.service.DetectSpeed(ctx, data, req.KeyLabels)
	if err != nil {
		s.log.Errorf("detect-speed failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, "detect-speed failed")
		return
	}

	dtos := make([]SpeedResultDTO, len(results))
	for i, r := range results {
		dtos[i] = SpeedResultDTO{KeyLabel: r.KeyLabel, Speed: r.Speed}
	}
	s.respondJSON(w, http.StatusOK, SpeedResponse{Results: dtos})
}

// handleKeys handles GET and POST /api/keys.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListKeys(w, r)
	case http.MethodPost:
		s.handleAddKey(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	infos, err := s.service.ListKeys()
	if err != nil {
		s.log.Errorf("failed to list keys: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	dtos := make([]KeyDTO, len(infos))
	for i, info := range infos {
		dtos[i] = KeyDTO{Label: info.Label, Hex: info.Hex}
	}
	s.respondJSON(w, http.StatusOK, ListKeysResponse{Keys: dtos, Count: len(dtos)})
}

func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req AddKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	k, err := key.ParseHex(req.HexKey)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "hex_key must be 32 hex characters")
		return
	}

	if err := s.service.AddKey(req.Label, k); err != nil {
		s.log.Errorf("failed to register key %q: %v", req.Label, err)
		s.respondError(w, http.StatusInternalServerError, "failed to register key")
		return
	}

	s.respondJSON(w, http.StatusCreated, KeyDTO{Label: req.Label, Hex: k.String()})
}
