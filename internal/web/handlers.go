package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/kiosk-agent/internal/actuator"
	"github.com/sweeney/kiosk-agent/internal/detect"
	"github.com/sweeney/kiosk-agent/internal/state"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.core.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.core.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(state.FormatJSON(snap))
}

func (s *Server) handleLED(w http.ResponseWriter, r *http.Request) {
	var req LEDRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	enabled := false
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	level := 100
	if req.Brightness != nil {
		level = *req.Brightness
	}

	st, err := s.core.SetManualActuator(enabled, level)
	writeJSON(w, actuatorStatus(err), ledResponse(st, err))
}

func (s *Server) handleLEDAuto(w http.ResponseWriter, r *http.Request) {
	st, err := s.core.ClearManualOverride()
	writeJSON(w, actuatorStatus(err), ledResponse(st, err))
}

func actuatorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, actuator.ErrHardwareUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, distanceJSON(s.core.DistanceSample()))
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	res, err := s.core.TriggerDetection(r.Context())
	if err != nil {
		writeDetectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.DetectionToJSON(res))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	res, ok := s.core.LatestDetection()
	if !ok {
		writeJSON(w, http.StatusOK, NoDetectionJSON{Message: "No detections yet"})
		return
	}
	writeJSON(w, http.StatusOK, state.DetectionToJSON(res))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	all := s.core.DetectionHistory(0)
	recent := all
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	writeJSON(w, http.StatusOK, HistoryJSON{
		Total:      len(all),
		Detections: state.DetectionsToJSON(recent),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, err := s.core.StreamFrame(r.Context())
	if err != nil {
		writeDetectError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

func (s *Server) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.core.Snapshot()
	status := "offline"
	if snap.CameraReady {
		status = "online"
	}
	writeJSON(w, http.StatusOK, CameraStatusJSON{
		Initialized: snap.CameraReady,
		Status:      status,
		Attributes:  snap.Config.Attributes,
		Timestamp:   snap.Now.UTC().Format(time.RFC3339),
	})
}

func writeDetectError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, detect.ErrCameraUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, detect.ErrTimeout):
		code = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body
		return
	default:
		log.Printf("web: detection failed: %v", err)
	}
	zero := 0
	writeJSON(w, code, ErrorJSON{Error: err.Error(), FacesDetected: &zero})
}
