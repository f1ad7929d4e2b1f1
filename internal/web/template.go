package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/safeshutdown/internal/status"
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
	"patternOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Safe Shutdown</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.shutdown { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Safe Shutdown</h1>

<h2>State</h2>
<table>
<tr><th>LED pattern</th><td id="pattern"{{if .ShuttingDown}} class="shutdown"{{end}}>{{patternOrUnknown (printf "%s" .Pattern)}}</td></tr>
<tr><th>Load (1m)</th><td>{{printf "%.2f" .Metrics.Load1}}</td></tr>
<tr><th>CPU temperature</th><td>{{printf "%.1f" .Metrics.TempC}} &deg;C</td></tr>
<tr><th>Shutting down</th><td>{{if .ShuttingDown}}yes{{else}}no{{end}}</td></tr>
{{if .LastEvent}}<tr><th>Last event</th><td>{{.LastEvent.Type}}{{if .LastEvent.Source}} ({{.LastEvent.Source}}){{end}} at {{.LastEvent.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Buttons</h2>
<table>
<tr><th>Power presses</th><td>{{.Counts.PowerPresses}}</td></tr>
<tr><th>Reset presses</th><td>{{.Counts.ResetPresses}}</td></tr>
<tr><th>Bounces ignored</th><td>{{.Counts.Bounces}}</td></tr>
<tr><th>Repeat shutdowns ignored</th><td>{{.Counts.ShutdownsIgnored}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Strobe</th><td>{{.Config.StrobeMs}}ms</td></tr>
<tr><th>Settle</th><td>{{.Config.SettleMs}}ms</td></tr>
<tr><th>Grace</th><td>{{.Config.GraceMs}}ms</td></tr>
<tr><th>Workload</th><td>{{.Config.Workload}}</td></tr>
<tr><th>Reboot</th><td>{{.Config.Reboot}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">metrics</a></p>
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
