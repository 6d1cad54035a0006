// Command kiosk-agent runs the kiosk: ultrasonic presence drives the LED strip,
// the camera feeds face detection, and state is served over HTTP and mirrored
// to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/kiosk-agent/internal/agent"
	"github.com/sweeney/kiosk-agent/internal/camera"
	"github.com/sweeney/kiosk-agent/internal/detect"
	"github.com/sweeney/kiosk-agent/internal/gpio"
	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/mqtt"
	"github.com/sweeney/kiosk-agent/internal/presence"
	"github.com/sweeney/kiosk-agent/internal/sensor"
	"github.com/sweeney/kiosk-agent/internal/state"
	"github.com/sweeney/kiosk-agent/internal/web"
)

// httpShutdownTimeout bounds the graceful HTTP shutdown before connections
// are dropped.
const httpShutdownTimeout = 5 * time.Second

// options is the resolved command line.
type options struct {
	presencePeriod  time.Duration
	detectPeriod    time.Duration
	threshold       float64
	debounceSamples int
	detectTimeout   time.Duration

	cameraIndex  int
	cameraWidth  int
	cameraHeight int
	cascade      string
	analysisURL  string
	analysisWait time.Duration
	recordEmpty  bool
	faceSelect   detect.Selection
	attributes   bool
	historySize  int

	broker    string
	clientID  string
	heartbeat time.Duration
	httpAddr  string
	deviceID  string
	location  string

	chip       string
	pinLED     int
	pinTrigger int
	pinEcho    int
	pwmFreq    int

	printDistance bool
}

func main() {
	var o options
	flag.DurationVar(&o.presencePeriod, "presence-period", 500*time.Millisecond, "Distance sampling interval")
	flag.DurationVar(&o.detectPeriod, "detect-period", 500*time.Millisecond, "Face detection interval")
	flag.Float64Var(&o.threshold, "threshold", logic.DefaultThresholdCm, "Presence threshold in cm")
	flag.IntVar(&o.debounceSamples, "debounce-samples", 1, "Consecutive samples needed to change presence")
	flag.DurationVar(&o.detectTimeout, "detect-timeout", 2*time.Second, "Soft timeout for one detection cycle")
	flag.IntVar(&o.cameraIndex, "camera", 0, "Camera device index (/dev/videoN)")
	flag.IntVar(&o.cameraWidth, "camera-width", 640, "Capture width")
	flag.IntVar(&o.cameraHeight, "camera-height", 480, "Capture height")
	flag.StringVar(&o.cascade, "cascade", camera.DefaultCascade, "Haar cascade model for face detection")
	flag.StringVar(&o.analysisURL, "analysis-url", "", "Face attribute service base URL, serving /analyze and /health (empty disables attributes)")
	flag.DurationVar(&o.analysisWait, "analysis-timeout", 1500*time.Millisecond, "Attribute service request timeout")
	flag.BoolVar(&o.recordEmpty, "record-empty", false, "Record detection cycles that found no face")
	faceSelect := flag.String("face-select", string(detect.SelectFirst), `Face used for attributes ("first" or "largest")`)
	flag.BoolVar(&o.attributes, "attributes", true, "Infer attributes for one face per cycle")
	flag.IntVar(&o.historySize, "history-size", state.DefaultHistorySize, "Detections kept in memory")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.clientID, "client-id", "", `MQTT client id (default "kiosk-agent-<device-id>")`)
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", ":5000", "HTTP address (empty to disable)")
	flag.StringVar(&o.deviceID, "device-id", "pi5_imx500_001", "Device id stamped on detections")
	flag.StringVar(&o.location, "location", "Kiosk Main Display", "Location stamped on detections")
	flag.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO character device")
	flag.IntVar(&o.pinLED, "pin-led", gpio.DefaultPinLED, "BCM pin number for the LED strip")
	flag.IntVar(&o.pinTrigger, "pin-trigger", gpio.DefaultPinTrigger, "BCM pin number for the sensor trigger")
	flag.IntVar(&o.pinEcho, "pin-echo", gpio.DefaultPinEcho, "BCM pin number for the sensor echo")
	flag.IntVar(&o.pwmFreq, "pwm-freq", 200, "LED PWM frequency in Hz")
	flag.BoolVar(&o.printDistance, "print-distance", false, "Print one distance reading and exit")

	flag.Parse()

	sel, err := detect.ParseSelection(*faceSelect)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	o.faceSelect = sel
	if o.clientID == "" {
		o.clientID = "kiosk-agent-" + o.deviceID
	}

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	if o.printDistance {
		return printDistance(o)
	}

	hw := openHardware(o)
	defer hw.Close()

	cache := state.NewCache(time.Now(), o.historySize, stateConfig(o))
	if net := readNetworkInfo(); net != nil {
		cache.SetNetwork(net)
	}

	// Initialize MQTT
	topics := mqtt.NewTopics(o.deviceID)
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   o.broker,
		ClientID: o.clientID,
		Topics:   topics,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	mirror := mqtt.NewMirror(publisher, topics)

	deps := hw.deps()
	deps.Cache = cache
	deps.Sink = mirror
	deps.Background = []func(context.Context) error{mirror.Run}
	ag := agent.New(agentConfig(o), deps)

	// Publish startup event with full status snapshot
	cache.SetMQTTConnected(publisher.IsConnected())
	if err := mirror.PublishSystem(mqtt.EventStartup, "", cache.Snapshot()); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, ag)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("http shutdown: %v, closing", err)
				srv.Close()
			}
		}()
		log.Printf("http server listening on %s", o.httpAddr)
	}

	log.Printf("started: presence=%v detect=%v threshold=%.0fcm broker=%s heartbeat=%v",
		o.presencePeriod, o.detectPeriod, o.threshold, o.broker, o.heartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	agentErr := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		agentErr <- ag.Run(ctx)
		close(stopped)
	}()

	var heartbeat <-chan time.Time
	if o.heartbeat > 0 {
		hb := time.NewTicker(o.heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}
	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(cache, mirror, publisher, heartbeat, refresh.C, sigCh, agentErr)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		log.Printf("agent did not stop within 5s")
	}
	if n := publisher.Buffered(); n > 0 {
		log.Printf("mqtt: %d messages still buffered at shutdown", n)
	}
	return err
}

// systemPublisher publishes lifecycle events.
type systemPublisher interface {
	PublishSystem(event, reason string, s state.Snapshot) error
}

// runLoop handles signals, heartbeats and connection status until a signal
// arrives or the agent stops on its own.
func runLoop(cache *state.Cache, sys systemPublisher, conn mqtt.ConnectionStatus, heartbeat, refresh <-chan time.Time, sig <-chan os.Signal, agentErr <-chan error) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			name := signalName(s)
			cache.SetMQTTConnected(conn.IsConnected())
			if err := sys.PublishSystem(mqtt.EventShutdown, name, cache.Snapshot()); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case err := <-agentErr:
			if err == nil {
				return fmt.Errorf("agent stopped unexpectedly")
			}
			return fmt.Errorf("agent stopped: %w", err)

		case <-heartbeat:
			cache.SetMQTTConnected(conn.IsConnected())
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				cache.SetNetwork(net)
			}
			snap := cache.Snapshot()
			log.Printf("heartbeat: uptime=%v present=%d absent=%d detections=%d failed=%d",
				snap.Uptime().Round(time.Second), snap.Counts.PresentTransitions, snap.Counts.AbsentTransitions,
				snap.Counts.Detections, snap.Counts.FailedCycles)
			if err := sys.PublishSystem(mqtt.EventHeartbeat, "", snap); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}

		case <-refresh:
			cache.SetMQTTConnected(conn.IsConnected())
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func printDistance(o options) error {
	s, err := gpio.NewRealSensor(o.chip, o.pinTrigger, o.pinEcho)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer s.Close()

	sample := sensor.New(s, s).Measure()
	if !sample.Valid {
		fmt.Println("distance: invalid (no echo)")
		return nil
	}
	fmt.Printf("distance: %.2f cm\n", sample.DistanceCm)
	return nil
}

func stateConfig(o options) state.Config {
	return state.Config{
		PresencePeriodMs: o.presencePeriod.Milliseconds(),
		DetectPeriodMs:   o.detectPeriod.Milliseconds(),
		ThresholdCm:      o.threshold,
		DebounceSamples:  o.debounceSamples,
		HistorySize:      o.historySize,
		HeartbeatMs:      o.heartbeat.Milliseconds(),
		Broker:           o.broker,
		HTTPAddr:         o.httpAddr,
		DeviceID:         o.deviceID,
		Location:         o.location,
		RecordEmpty:      o.recordEmpty,
		FaceSelection:    string(o.faceSelect),
		Attributes:       o.attributes && o.analysisURL != "",
	}
}

func agentConfig(o options) agent.Config {
	pc := presence.DefaultConfig()
	pc.Period = o.presencePeriod
	pc.ThresholdCm = o.threshold
	pc.DebounceSamples = o.debounceSamples

	dc := detect.DefaultConfig()
	dc.DeviceID = o.deviceID
	dc.Location = o.location
	dc.Timeout = o.detectTimeout
	dc.Period = o.detectPeriod
	dc.Attributes = o.attributes && o.analysisURL != ""
	dc.FaceSelection = o.faceSelect
	dc.RecordEmpty = o.recordEmpty

	return agent.Config{Presence: pc, Detect: dc}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *state.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &state.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
