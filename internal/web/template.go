package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/buttond/internal/button"
	"github.com/sweeney/buttond/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"hex": func(m button.Mask) string {
		return fmt.Sprintf("%#x", uint64(m))
	},
}).Parse(indexHTML))

// formatUptime renders d as "1d 2h 3m 4s", omitting leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		size   int64
		suffix string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}}

	out := ""
	for _, u := range units {
		if n := secs / u.size; n > 0 || out != "" {
			out += fmt.Sprintf("%d%s ", n, u.suffix)
		}
		secs %= u.size
	}
	return out + fmt.Sprintf("%ds", secs)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Buttons</title>
<style>
body { font: 14px monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
h2 { font-size: 1.1em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 8px; border-bottom: 1px solid #e4e4e4; }
th { width: 45%; font-weight: normal; color: #555; }
.on, .connected { color: #1a7f37; font-weight: bold; }
.off { color: #999; }
.disconnected { color: #c62828; }
#live-dot { display: inline-block; width: 9px; height: 9px; border-radius: 50%; margin-left: 8px; background: orange; }
#live-dot.ok { background: #1a7f37; }
#live-dot.err { background: #c62828; }
</style>
</head>
<body>
<h1>Buttons<span id="live-dot" title="connecting"></span></h1>

<h2>Buttons</h2>
<table>
{{range .Buttons}}<tr><th>{{.Name}} (pin {{.Pin}})</th><td class="{{if .Active}}on{{else}}off{{end}}">{{if .Active}}ACTIVE{{else}}idle{{end}}</td></tr>
{{end}}<tr><th>Mask</th><td>{{hex .Mask}}</td></tr>
<tr><th>Screen</th><td id="screen">{{.Screen}} / {{.Config.Screens}}</td></tr>
<tr><th>Last gesture</th><td id="last-gesture">-</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Gesture Counts</h2>
<table>
<tr><th>PRESS</th><td>{{.Counts.Press}}</td></tr>
<tr><th>HELD</th><td>{{.Counts.Held}}</td></tr>
<tr><th>RELEASE</th><td>{{.Counts.Release}}</td></tr>
<tr><th>Dropped edges</th><td>{{.DroppedEdges}}</td></tr>
<tr><th>Dropped gestures</th><td>{{.DroppedGestures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Chip</th><td>{{.Config.Chip}}</td></tr>
<tr><th>Queue</th><td>{{.Config.QueueSize}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
<tr><th>Config</th><td>{{if .Config.ConfigPath}}{{.Config.ConfigPath}}{{else}}built-in{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var last = document.getElementById("last-gesture");
  var screen = document.getElementById("screen");
  var screens = {{.Config.Screens}};

  function setDot(cls, title) {
    dot.className = cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/live");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onerror = function() { setDot("err", "error"); };
    ws.onclose = function() {
      setDot("pending", "reconnecting");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(m) {
      try {
        var g = JSON.parse(m.data).gesture;
        if (!g) return;
        last.textContent = g.combo + " " + g.event;
        if (g.screen !== undefined) screen.textContent = g.screen + " / " + screens;
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
