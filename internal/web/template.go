package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/kiosk-agent/internal/state"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ts": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Kiosk Agent</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
img { max-width: 100%; border: 1px solid #ddd; }
button { font-family: monospace; margin-right: 0.5em; }
</style>
</head>
<body>
<h1>Kiosk Agent <small>{{.Config.DeviceID}}</small></h1>
<p>{{.Config.Location}}</p>

<h2>Presence</h2>
<table>
<tr><th>User</th><td id="presence" class="{{if eq .Presence.State "PRESENT"}}on{{else}}off{{end}}">{{.Presence.State}}</td></tr>
<tr><th>Since</th><td id="since">{{ts .Presence.Since}}</td></tr>
<tr><th>Threshold</th><td>{{printf "%.0f" .Config.ThresholdCm}} cm</td></tr>
</table>

<h2>Light</h2>
<table>
<tr><th>State</th><td id="led" class="{{if .Actuator.Command.Enabled}}on{{else}}off{{end}}">{{if .Actuator.Command.Enabled}}ON {{.Actuator.Command.Level}}%{{else}}OFF{{end}}</td></tr>
<tr><th>Mode</th><td id="mode">{{if .Actuator.Manual}}manual{{else}}auto{{end}}</td></tr>
<tr><th>Applied</th><td>{{if .Actuator.Applied}}yes{{else}}no{{end}}</td></tr>
</table>
<p>
<button onclick="led({enabled: true, brightness: 100})">On</button>
<button onclick="led({enabled: false})">Off</button>
<button onclick="auto()">Auto</button>
</p>

<h2>Camera</h2>
<table>
<tr><th>Status</th><td class="{{if .CameraReady}}connected{{else}}disconnected{{end}}">{{if .CameraReady}}online{{else}}offline{{end}}</td></tr>
<tr><th>History</th><td>{{len .History}} / {{.Config.HistorySize}}</td></tr>
{{with .LatestDetection}}<tr><th>Latest</th><td>{{len .Faces}} face(s) at {{ts .CapturedAt}}</td></tr>
{{with .Attributes}}<tr><th>Attributes</th><td>{{.Gender}}, {{.Age}}, {{.DominantEmotion}}</td></tr>{{end}}{{end}}
</table>
{{if .CameraReady}}<p><img src="/api/camera/snapshot" alt="snapshot"></p>
<p><a href="/api/camera/stream">Live view</a></p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Present</th><td>{{.Counts.PresentTransitions}}</td></tr>
<tr><th>Absent</th><td>{{.Counts.AbsentTransitions}}</td></tr>
<tr><th>Invalid samples</th><td>{{.Counts.InvalidSamples}}</td></tr>
<tr><th>Detections</th><td>{{.Counts.Detections}}</td></tr>
<tr><th>Failed cycles</th><td>{{.Counts.FailedCycles}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
<tr><th>Presence period</th><td>{{.Config.PresencePeriodMs}}ms</td></tr>
<tr><th>Detection period</th><td>{{.Config.DetectPeriodMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/api/status">JSON</a> | <a href="/api/face/history">History</a></p>
<script>
function led(body) {
  fetch("/api/led", {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body)})
    .then(function() { location.reload(); });
}
function auto() {
  fetch("/api/led/auto", {method: "POST"}).then(function() { location.reload(); });
}
setInterval(function() {
  fetch("/api/status").then(function(r) { return r.json(); }).then(function(s) {
    var p = document.getElementById("presence");
    p.textContent = s.status.presence.state;
    p.className = s.status.presence.user_present ? "on" : "off";
    document.getElementById("since").textContent = s.status.presence.since;
    var l = document.getElementById("led");
    l.textContent = s.status.led.enabled ? "ON " + s.status.led.brightness + "%" : "OFF";
    l.className = s.status.led.enabled ? "on" : "off";
    document.getElementById("mode").textContent = s.status.led.mode;
  }).catch(function() {});
}, 2000);
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap state.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		state.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
