package main

import (
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sweeney/kiosk-agent/internal/detect"
	"github.com/sweeney/kiosk-agent/internal/mqtt"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := &state.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("network info (-want +got):\n%s", diff)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if diff := cmp.Diff(&state.NetworkInfo{Status: "connected"}, info); diff != "" {
		t.Errorf("network info (-want +got):\n%s", diff)
	}
}

// --- runLoop tests ---

type loopFixture struct {
	cache     *state.Cache
	pub       *mqtt.FakePublisher
	topics    mqtt.Topics
	heartbeat chan time.Time
	refresh   chan time.Time
	sig       chan os.Signal
	agentErr  chan error
	errCh     chan error
}

func startLoop(t *testing.T) *loopFixture {
	t.Helper()
	f := &loopFixture{
		cache:     state.NewCache(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10, state.Config{DeviceID: "kiosk-test"}),
		pub:       mqtt.NewFakePublisher(),
		topics:    mqtt.NewTopics("kiosk-test"),
		heartbeat: make(chan time.Time),
		refresh:   make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		agentErr:  make(chan error, 1),
		errCh:     make(chan error, 1),
	}
	mirror := mqtt.NewMirror(f.pub, f.topics)
	go func() {
		f.errCh <- runLoop(f.cache, mirror, f.pub, f.heartbeat, f.refresh, f.sig, f.agentErr)
	}()
	return f
}

func (f *loopFixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

// systemEvents decodes the status payloads published on the system topic.
func (f *loopFixture) systemEvents(t *testing.T) []state.StatusInner {
	t.Helper()
	var out []state.StatusInner
	for _, m := range f.pub.OnTopic(f.topics.System) {
		var sj state.StatusJSON
		if err := json.Unmarshal(m.Payload, &sj); err != nil {
			t.Fatalf("decode system payload: %v", err)
		}
		out = append(out, sj.Status)
	}
	return out
}

func TestRunLoopShutdownOnSignal(t *testing.T) {
	tests := []struct {
		sig    os.Signal
		reason string
	}{
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGINT, "SIGINT"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			f := startLoop(t)
			f.sig <- tt.sig
			if err := f.wait(t); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			events := f.systemEvents(t)
			if len(events) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(events))
			}
			if events[0].Event != "SHUTDOWN" || events[0].Reason != tt.reason {
				t.Errorf("got event=%q reason=%q", events[0].Event, events[0].Reason)
			}
			msgs := f.pub.OnTopic(f.topics.System)
			if msgs[0].Retained {
				t.Error("SHUTDOWN should not be retained")
			}
		})
	}
}

func TestRunLoopShutdownPublishError(t *testing.T) {
	f := startLoop(t)
	f.pub.SetError(errors.New("broker gone"))

	f.sig <- syscall.SIGTERM
	if err := f.wait(t); err != nil {
		t.Fatalf("publish failure must not fail shutdown: %v", err)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.7")

	f := startLoop(t)
	f.pub.SetConnected(true)
	f.heartbeat <- time.Time{}
	f.heartbeat <- time.Time{}
	f.sig <- syscall.SIGTERM
	if err := f.wait(t); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var got []string
	for _, e := range f.systemEvents(t) {
		got = append(got, e.Event)
	}
	if diff := cmp.Diff([]string{"HEARTBEAT", "HEARTBEAT", "SHUTDOWN"}, got); diff != "" {
		t.Errorf("system events (-want +got):\n%s", diff)
	}

	hb := f.systemEvents(t)[0]
	if !hb.MQTT.Connected {
		t.Error("heartbeat should report MQTT connected")
	}
	if hb.Network == nil || hb.Network.IP != "10.0.0.7" {
		t.Errorf("heartbeat network: got %+v", hb.Network)
	}
}

func TestRunLoopRefreshesConnection(t *testing.T) {
	f := startLoop(t)

	f.pub.SetConnected(true)
	f.refresh <- time.Time{}
	// The loop handles one event at a time, so once the next send is
	// accepted the previous refresh has been applied.
	f.refresh <- time.Time{}
	if !f.cache.Snapshot().MQTTConnected {
		t.Error("expected connected after refresh")
	}

	f.pub.SetConnected(false)
	f.refresh <- time.Time{}
	f.refresh <- time.Time{}
	if f.cache.Snapshot().MQTTConnected {
		t.Error("expected disconnected after refresh")
	}

	f.sig <- syscall.SIGTERM
	f.wait(t)
}

func TestRunLoopAgentStopped(t *testing.T) {
	f := startLoop(t)
	f.agentErr <- errors.New("camera loop exploded")

	err := f.wait(t)
	if err == nil {
		t.Fatal("expected error when the agent stops")
	}
	if len(f.systemEvents(t)) != 0 {
		t.Error("no SHUTDOWN expected without a signal")
	}
}

func TestRunLoopAgentStoppedCleanly(t *testing.T) {
	f := startLoop(t)
	f.agentErr <- nil

	if err := f.wait(t); err == nil {
		t.Fatal("an agent that stops on its own is an error")
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func testOptions() options {
	return options{
		presencePeriod:  250 * time.Millisecond,
		detectPeriod:    time.Second,
		threshold:       80,
		debounceSamples: 3,
		detectTimeout:   1500 * time.Millisecond,
		recordEmpty:     true,
		faceSelect:      detect.SelectLargest,
		attributes:      true,
		historySize:     20,
		broker:          "tcp://broker:1883",
		heartbeat:       time.Minute,
		httpAddr:        ":8080",
		deviceID:        "kiosk-7",
		location:        "Lobby",
	}
}

func TestAgentConfig(t *testing.T) {
	o := testOptions()
	o.analysisURL = "http://127.0.0.1:5001"

	cfg := agentConfig(o)

	p := cfg.Presence
	if p.Period != 250*time.Millisecond || p.ThresholdCm != 80 || p.DebounceSamples != 3 {
		t.Errorf("presence config: %+v", p)
	}
	if p.Backoff <= 0 {
		t.Errorf("presence backoff should keep its default, got %v", p.Backoff)
	}

	d := cfg.Detect
	if d.DeviceID != "kiosk-7" || d.Location != "Lobby" {
		t.Errorf("detect identity: %q %q", d.DeviceID, d.Location)
	}
	if d.Timeout != 1500*time.Millisecond || d.Period != time.Second {
		t.Errorf("detect timing: timeout=%v period=%v", d.Timeout, d.Period)
	}
	if !d.Attributes || !d.RecordEmpty || d.FaceSelection != detect.SelectLargest {
		t.Errorf("detect policy: %+v", d)
	}
}

func TestAttributesNeedService(t *testing.T) {
	o := testOptions()
	o.analysisURL = ""

	if agentConfig(o).Detect.Attributes {
		t.Error("attributes enabled without a service URL")
	}
	if stateConfig(o).Attributes {
		t.Error("status reports attributes without a service URL")
	}
}

func TestStateConfig(t *testing.T) {
	got := stateConfig(testOptions())
	want := state.Config{
		PresencePeriodMs: 250,
		DetectPeriodMs:   1000,
		ThresholdCm:      80,
		DebounceSamples:  3,
		HistorySize:      20,
		HeartbeatMs:      60000,
		Broker:           "tcp://broker:1883",
		HTTPAddr:         ":8080",
		DeviceID:         "kiosk-7",
		Location:         "Lobby",
		RecordEmpty:      true,
		FaceSelection:    "largest",
		Attributes:       false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state config (-want +got):\n%s", diff)
	}
}

func TestNoHardwareLeavesNilDeps(t *testing.T) {
	d := (&hardware{}).deps()

	if d.Sampler != nil {
		t.Error("Sampler should be a nil interface")
	}
	if d.PWM != nil {
		t.Error("PWM should be a nil interface")
	}
	if d.Camera != nil {
		t.Error("Camera should be a nil interface")
	}
	if d.Detector != nil {
		t.Error("Detector should be a nil interface")
	}
	if d.Inferer != nil {
		t.Error("Inferer should be a nil interface")
	}
}
