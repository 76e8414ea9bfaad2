package remote

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"

	"handover-sim/internal/config"
	"handover-sim/internal/probe"
)

// ScriptData parameterizes the device control script.
type ScriptData struct {
	Scenario         string
	RunID            string
	Interface        string
	SerialPort       string
	BaudRate         int
	Target           string
	PingTimeout      int
	SamplingInterval float64
	Settle           float64
	LogFile          string
	Stations         []config.Station
}

// ScriptDataFromScenario fills script parameters from a scenario.
func ScriptDataFromScenario(sc *config.Scenario, runID, logFile string) ScriptData {
	d := ScriptData{
		Scenario:         sc.Name,
		RunID:            runID,
		Interface:        "wlan0",
		SerialPort:       "/dev/ttyUSB0",
		BaudRate:         9600,
		Target:           "8.8.8.8",
		PingTimeout:      2,
		SamplingInterval: sc.Mobility.SamplingInterval,
		Settle:           sc.WaitSeconds(),
		LogFile:          logFile,
		Stations:         sc.Stations,
	}
	if sc.Probe.SerialPort != "" {
		d.SerialPort = sc.Probe.SerialPort
	}
	if len(sc.Probe.Targets) > 0 {
		d.Target = sc.Probe.Targets[len(sc.Probe.Targets)-1]
	}
	if sc.Probe.PingTimeout > 0 {
		d.PingTimeout = int(sc.Probe.PingTimeout + 0.999)
	}
	if len(sc.Stations) > 0 {
		if ifc := sc.Probe.Interfaces[sc.Stations[0].Name]; ifc != "" {
			d.Interface = ifc
		}
	}
	return d
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

const scriptTemplate = `#!/bin/sh
# Control script for scenario {{q .Scenario}}, run {{.RunID}}.
# Moves the robot along each station trajectory and logs wireless readings.
set -u

IFACE={{q .Interface}}
PORT={{q .SerialPort}}
LOG={{q .LogFile}}
prev=""

stty -F "$PORT" {{.BaudRate}} cs8 -cstopb -parenb raw 2>/dev/null

move() {
	printf 'MOVE %s %s\n' "$1" "$2" > "$PORT"
}

sample() {
	link=$(iw dev "$IFACE" link 2>/dev/null)
	rssi=$(printf '%s\n' "$link" | sed -n 's/.*signal: *\(-\{0,1\}[0-9]*\).*/\1/p' | head -n 1)
	[ -n "$rssi" ] || rssi=-100
	ssid=$(printf '%s\n' "$link" | sed -n 's/.*SSID: *//p' | head -n 1)
	[ -n "$ssid" ] || ssid=unattached
	lat=$(ping -c 1 -W {{.PingTimeout}} {{q .Target}} 2>/dev/null | sed -n 's/.*time[=<]\([0-9.]*\).*/\1/p' | head -n 1)
	[ -n "$lat" ] || lat=9999
	handover=false
	if [ -n "$prev" ] && [ "$ssid" != "$prev" ]; then
		handover=true
	fi
	prev=$ssid
	echo "$(date '+%Y-%m-%dT%H:%M:%S'),$1,$2,$3,$rssi,$lat,$ssid,$handover" >> "$LOG"
}

echo "timestamp,station,x,y,rssi,latency,ssid,handover" > "$LOG"
{{range $st := .Stations}}
# station {{$st.Name}}
prev=""
move {{num $st.StartX}} {{num $st.StartY}}
sleep {{num $.Settle}}
sample {{q $st.Name}} {{num $st.StartX}} {{num $st.StartY}}
{{- range $st.Trajectory}}
move {{num (index . 0)}} {{num (index . 1)}}
sleep {{num $.SamplingInterval}}
sample {{q $st.Name}} {{num (index . 0)}} {{num (index . 1)}}
{{- end}}
{{end}}
echo "done: $LOG"
`

var scriptTmpl = template.Must(template.New("control.sh").Funcs(template.FuncMap{
	"q":   probe.ShellQuote,
	"num": num,
}).Parse(scriptTemplate))

// RenderScript renders the shell control script for the companion device.
func RenderScript(data ScriptData) ([]byte, error) {
	for _, st := range data.Stations {
		for i, p := range st.Trajectory {
			if len(p) != 2 {
				return nil, fmt.Errorf("station %s: trajectory[%d] must have 2 coordinates", st.Name, i)
			}
		}
	}
	var buf bytes.Buffer
	if err := scriptTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render control script: %w", err)
	}
	return buf.Bytes(), nil
}
