package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// LEDRequest is the body of POST /api/led. Enabled defaults to false and
// Brightness to 100.
type LEDRequest struct {
	Enabled    *bool `json:"enabled"`
	Brightness *int  `json:"brightness"`
}

// LEDResponse reports the effective light state.
type LEDResponse struct {
	Success    bool   `json:"success"`
	LEDStatus  bool   `json:"led_status"`
	Brightness int    `json:"brightness"`
	Mode       string `json:"mode"`
	Applied    bool   `json:"applied"`
	Error      string `json:"error,omitempty"`
}

// DistanceJSON is a single sensor reading. Distance is null without an echo.
type DistanceJSON struct {
	Distance  *float64 `json:"distance"`
	Valid     bool     `json:"valid"`
	Unit      string   `json:"unit"`
	Timestamp string   `json:"timestamp"`
}

// HistoryJSON is the detection history response.
type HistoryJSON struct {
	Total      int                   `json:"total"`
	Detections []state.DetectionJSON `json:"detections"`
}

// NoDetectionJSON is returned by the latest endpoint before any detection.
type NoDetectionJSON struct {
	Message    string `json:"message"`
	FacesCount int    `json:"faces_count"`
}

// CameraStatusJSON reports camera readiness.
type CameraStatusJSON struct {
	Initialized bool   `json:"initialized"`
	Status      string `json:"status"`
	Attributes  bool   `json:"attributes"`
	Timestamp   string `json:"timestamp"`
}

// ErrorJSON is the body of every failed request.
type ErrorJSON struct {
	Error         string `json:"error"`
	FacesDetected *int   `json:"faces_detected,omitempty"`
}

func ledResponse(st logic.ActuatorState, err error) LEDResponse {
	mode := "auto"
	if st.Manual {
		mode = "manual"
	}
	resp := LEDResponse{
		Success:    err == nil,
		LEDStatus:  st.Command.Enabled,
		Brightness: st.Command.Level,
		Mode:       mode,
		Applied:    st.Applied,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func distanceJSON(s logic.DistanceSample) DistanceJSON {
	d := DistanceJSON{
		Valid:     s.Valid,
		Unit:      "cm",
		Timestamp: s.MeasuredAt.UTC().Format(time.RFC3339Nano),
	}
	if s.Valid {
		cm := s.DistanceCm
		d.Distance = &cm
	}
	return d
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorJSON{Error: msg})
}
