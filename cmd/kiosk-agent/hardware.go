package main

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/kiosk-agent/internal/agent"
	"github.com/sweeney/kiosk-agent/internal/analysis"
	"github.com/sweeney/kiosk-agent/internal/camera"
	"github.com/sweeney/kiosk-agent/internal/gpio"
	"github.com/sweeney/kiosk-agent/internal/sensor"
)

// hardware holds whatever devices could be opened. A nil field means the
// agent runs without that capability.
type hardware struct {
	sensor   *gpio.RealSensor
	pwm      *gpio.RealPWM
	camera   *camera.Device
	detector *camera.CascadeDetector
	analysis *analysis.Client
}

// openHardware opens every device it can. Failures are logged and leave the
// capability out (demo mode) instead of stopping the agent.
func openHardware(o options) *hardware {
	hw := &hardware{}

	if s, err := gpio.NewRealSensor(o.chip, o.pinTrigger, o.pinEcho); err != nil {
		log.Printf("demo mode: distance sensor unavailable: %v", err)
	} else {
		hw.sensor = s
	}

	if p, err := gpio.NewRealPWM(o.chip, o.pinLED, o.pwmFreq); err != nil {
		log.Printf("demo mode: led unavailable: %v", err)
	} else {
		hw.pwm = p
	}

	if d, err := camera.NewCascadeDetector(o.cascade); err != nil {
		log.Printf("demo mode: face detector unavailable: %v", err)
	} else {
		hw.detector = d
	}

	// A camera that fails to open is kept: each detection cycle reopens it
	// until it comes up.
	if hw.detector != nil {
		hw.camera = camera.NewDevice(o.cameraIndex, o.cameraWidth, o.cameraHeight)
		if err := hw.camera.Open(); err != nil {
			log.Printf("camera not ready yet, retrying each cycle: %v", err)
		}
	}

	if o.attributes && o.analysisURL != "" {
		hw.analysis = analysis.NewClient(o.analysisURL, o.analysisWait)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := hw.analysis.Health(ctx); err != nil {
			log.Printf("attribute service not ready yet: %v", err)
		}
		cancel()
	}
	return hw
}

// deps returns agent dependencies for the opened devices. Missing devices
// stay nil interfaces.
func (hw *hardware) deps() agent.Deps {
	var d agent.Deps
	if hw.sensor != nil {
		d.Sampler = sensor.New(hw.sensor, hw.sensor)
	}
	if hw.pwm != nil {
		d.PWM = hw.pwm
	}
	if hw.camera != nil {
		d.Camera = hw.camera
	}
	if hw.detector != nil {
		d.Detector = hw.detector
	}
	if hw.analysis != nil {
		d.Inferer = hw.analysis
	}
	return d
}

// Close releases every opened device. The LED line is driven low first.
func (hw *hardware) Close() {
	if hw.pwm != nil {
		if err := hw.pwm.Close(); err != nil {
			log.Printf("close led: %v", err)
		}
	}
	if hw.sensor != nil {
		if err := hw.sensor.Close(); err != nil {
			log.Printf("close sensor: %v", err)
		}
	}
	if hw.camera != nil {
		if err := hw.camera.Close(); err != nil {
			log.Printf("close camera: %v", err)
		}
	}
	if hw.detector != nil {
		if err := hw.detector.Close(); err != nil {
			log.Printf("close detector: %v", err)
		}
	}
}
