package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	linkSignalRe   = regexp.MustCompile(`signal:\s*([-\d]+)`)
	linkSSIDRe     = regexp.MustCompile(`(?m)^\s*SSID:\s*(.+?)\s*$`)
	linkBSSIDRe    = regexp.MustCompile(`Connected to ([0-9a-fA-F:]{17})`)
	iwconfigSigRe  = regexp.MustCompile(`Signal level[=:]\s*([-\d]+)`)
	iwconfigSSIDRe = regexp.MustCompile(`ESSID:"([^"]*)"`)
	pingTimeRe     = regexp.MustCompile(`time[=<]([\d.]+)`)
)

// LinkStatus is the parsed form of `iw dev <if> link`.
type LinkStatus struct {
	Connected bool
	SSID      string
	BSSID     string
	Signal    int
	HasSignal bool
}

// ParseLinkStatus parses link status output. Output without a connected
// block yields a zero LinkStatus.
func ParseLinkStatus(out string) LinkStatus {
	var ls LinkStatus
	if out == "" || strings.Contains(out, "Not connected") {
		return ls
	}
	if m := linkSSIDRe.FindStringSubmatch(out); m != nil {
		ls.SSID = m[1]
		ls.Connected = true
	}
	if m := linkBSSIDRe.FindStringSubmatch(out); m != nil {
		ls.BSSID = strings.ToLower(m[1])
		ls.Connected = true
	}
	if m := linkSignalRe.FindStringSubmatch(out); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			ls.Signal = v
			ls.HasSignal = true
		}
	}
	return ls
}

// ParseWirelessConfig extracts the signal level and ESSID from `iwconfig`.
func ParseWirelessConfig(out string) (signal int, ssid string, ok bool) {
	if m := iwconfigSSIDRe.FindStringSubmatch(out); m != nil {
		ssid = m[1]
	}
	m := iwconfigSigRe.FindStringSubmatch(out)
	if m == nil {
		return 0, ssid, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ssid, false
	}
	return v, ssid, true
}

// ParseScan parses `iw dev <if> scan` output. A record is emitted only when a
// block supplies BSSID, signal and SSID; a new BSS line drops any partial
// block.
func ParseScan(out string) []ScanEntry {
	var (
		entries []ScanEntry
		cur     ScanEntry
		haveSig bool
	)
	reset := func(bssid string) {
		cur = ScanEntry{BSSID: bssid}
		haveSig = false
	}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "BSS "):
			fields := strings.Fields(line)
			id := ""
			if len(fields) > 1 {
				id = fields[1]
				if i := strings.Index(id, "("); i >= 0 {
					id = id[:i]
				}
			}
			reset(strings.ToLower(id))
		case strings.HasPrefix(line, "signal:"):
			fields := strings.Fields(strings.TrimPrefix(line, "signal:"))
			if len(fields) == 0 {
				continue
			}
			f, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				continue
			}
			cur.Signal = int(f)
			haveSig = true
		case strings.HasPrefix(line, "SSID:"):
			if ssid := strings.TrimSpace(strings.TrimPrefix(line, "SSID:")); ssid != "" {
				cur.SSID = ssid
			}
		}
		if cur.BSSID != "" && haveSig && cur.SSID != "" {
			entries = append(entries, cur)
			reset("")
		}
	}
	return entries
}

// ParsePing extracts the round-trip time in milliseconds from ping output.
func ParsePing(out string) (float64, bool) {
	m := pingTimeRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type iperfReport struct {
	End struct {
		SumReceived *struct {
			BitsPerSecond float64 `json:"bits_per_second"`
		} `json:"sum_received"`
		Streams []struct {
			Receiver struct {
				BitsPerSecond float64 `json:"bits_per_second"`
			} `json:"receiver"`
		} `json:"streams"`
	} `json:"end"`
	Error string `json:"error"`
}

// ErrNoThroughput is returned when an iperf3 report carries no receiver rate.
var ErrNoThroughput = errors.New("iperf3 report has no receiver throughput")

// ParseIperf returns the received throughput in Mbps from an iperf3 -J report.
func ParseIperf(out string) (float64, error) {
	var rep iperfReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		return 0, err
	}
	if rep.Error != "" {
		return 0, errors.New(rep.Error)
	}
	if rep.End.SumReceived != nil && rep.End.SumReceived.BitsPerSecond > 0 {
		return rep.End.SumReceived.BitsPerSecond / 1e6, nil
	}
	if len(rep.End.Streams) > 0 {
		return rep.End.Streams[0].Receiver.BitsPerSecond / 1e6, nil
	}
	return 0, ErrNoThroughput
}

// ScanSummary renders a scan as "ssid:signal;ssid:signal".
func ScanSummary(scan []ScanEntry) string {
	parts := make([]string, 0, len(scan))
	for _, e := range scan {
		parts = append(parts, e.SSID+":"+strconv.Itoa(e.Signal))
	}
	return strings.Join(parts, ";")
}
