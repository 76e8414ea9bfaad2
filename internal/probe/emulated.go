package probe

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// AccessPoint is an emulated access point.
type AccessPoint struct {
	Name    string
	SSID    string
	X       float64
	Y       float64
	Range   float64
	Channel int
}

// EmulatedOptions tune the emulated radio model.
type EmulatedOptions struct {
	// RefSignal is the received signal in dBm at one metre.
	RefSignal float64
	// PathLossExp is the log-distance path loss exponent.
	PathLossExp float64
	// NoiseDB adds uniform noise in [-NoiseDB, +NoiseDB] to every reading.
	NoiseDB float64
	// AutoAssociate attaches an unattached station to the strongest visible AP
	// whenever it moves, as a stock supplicant would.
	AutoAssociate bool
	// Seed seeds the noise source; zero uses the current time.
	Seed int64
}

// DefaultEmulatedOptions returns the model used by scenario runs.
func DefaultEmulatedOptions() EmulatedOptions {
	return EmulatedOptions{RefSignal: -40, PathLossExp: 3.0, AutoAssociate: true}
}

type emuStation struct {
	x, y     float64
	attached string
}

// Emulated is an in-memory backend producing iw/ping formatted output from
// access point geometry with a log-distance attenuation model.
type Emulated struct {
	mu       sync.Mutex
	aps      []AccessPoint
	stations map[string]*emuStation
	opts     EmulatedOptions
	rng      *rand.Rand

	// FailDetach and FailAttach make the next Linker call fail; used to
	// rehearse handover failures.
	FailDetach bool
	FailAttach bool
}

// NewEmulated creates an emulated backend for the given access points.
func NewEmulated(aps []AccessPoint, opts EmulatedOptions) *Emulated {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.PathLossExp <= 0 {
		opts.PathLossExp = 3.0
	}
	if opts.RefSignal == 0 {
		opts.RefSignal = -40
	}
	return &Emulated{
		aps:      aps,
		stations: make(map[string]*emuStation),
		opts:     opts,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// AddStation registers a station at a position, unattached.
func (e *Emulated) AddStation(name string, x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &emuStation{x: x, y: y}
	e.stations[name] = st
	e.autoAssociate(st)
}

// Attached reports the SSID a station is attached to, or "" when unattached.
func (e *Emulated) Attached(station string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.stations[station]; ok {
		return st.attached
	}
	return ""
}

func (e *Emulated) station(name string) (*emuStation, error) {
	st, ok := e.stations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, name)
	}
	return st, nil
}

// signalAt returns the received signal from ap at (x, y) and whether the AP
// is within range.
func (e *Emulated) signalAt(ap AccessPoint, x, y float64) (float64, bool) {
	d := math.Hypot(ap.X-x, ap.Y-y)
	if ap.Range > 0 && d > ap.Range {
		return 0, false
	}
	s := e.opts.RefSignal - 10*e.opts.PathLossExp*math.Log10(math.Max(d, 1))
	if e.opts.NoiseDB > 0 {
		s += (e.rng.Float64()*2 - 1) * e.opts.NoiseDB
	}
	return s, true
}

func (e *Emulated) apBySSID(ssid string) (AccessPoint, bool) {
	for _, ap := range e.aps {
		if ap.SSID == ssid {
			return ap, true
		}
	}
	return AccessPoint{}, false
}

func (e *Emulated) autoAssociate(st *emuStation) {
	if st.attached != "" {
		if ap, ok := e.apBySSID(st.attached); ok {
			if _, inRange := e.signalAt(ap, st.x, st.y); inRange {
				return
			}
		}
		st.attached = ""
	}
	if !e.opts.AutoAssociate {
		return
	}
	best, bestSig := "", math.Inf(-1)
	for _, ap := range e.aps {
		if s, ok := e.signalAt(ap, st.x, st.y); ok && s > bestSig {
			best, bestSig = ap.SSID, s
		}
	}
	st.attached = best
}

func bssid(i int) string {
	return fmt.Sprintf("02:00:00:00:%02x:00", i+1)
}

// ReadLinkStatus renders `iw dev <if> link` output.
func (e *Emulated) ReadLinkStatus(ctx context.Context, station string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return "", err
	}
	if st.attached == "" {
		return "Not connected.\n", nil
	}
	for i, ap := range e.aps {
		if ap.SSID != st.attached {
			continue
		}
		s, ok := e.signalAt(ap, st.x, st.y)
		if !ok {
			st.attached = ""
			return "Not connected.\n", nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Connected to %s (on %s-wlan0)\n", bssid(i), station)
		fmt.Fprintf(&b, "\tSSID: %s\n", ap.SSID)
		fmt.Fprintf(&b, "\tfreq: %d\n", channelFreq(ap.Channel))
		fmt.Fprintf(&b, "\tsignal: %d dBm\n", int(math.Round(s)))
		b.WriteString("\ttx bitrate: 54.0 MBit/s\n")
		return b.String(), nil
	}
	return "Not connected.\n", nil
}

// ReadWirelessConfig renders `iwconfig <if>` output.
func (e *Emulated) ReadWirelessConfig(ctx context.Context, station string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return "", err
	}
	if st.attached == "" {
		return fmt.Sprintf("%s-wlan0  IEEE 802.11  ESSID:off/any\n", station), nil
	}
	ap, _ := e.apBySSID(st.attached)
	s, _ := e.signalAt(ap, st.x, st.y)
	return fmt.Sprintf("%s-wlan0  IEEE 802.11  ESSID:\"%s\"\n          Link Quality=50/70  Signal level=%d dBm\n",
		station, ap.SSID, int(math.Round(s))), nil
}

// ScanVisibleNetworks renders `iw dev <if> scan` output, strongest first.
func (e *Emulated) ScanVisibleNetworks(ctx context.Context, station string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return "", err
	}
	type seen struct {
		idx int
		ap  AccessPoint
		sig float64
	}
	var visible []seen
	for i, ap := range e.aps {
		if s, ok := e.signalAt(ap, st.x, st.y); ok {
			visible = append(visible, seen{idx: i, ap: ap, sig: s})
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].sig > visible[j].sig })
	var b strings.Builder
	for _, v := range visible {
		assoc := ""
		if v.ap.SSID == st.attached {
			assoc = " -- associated"
		}
		fmt.Fprintf(&b, "BSS %s(on %s-wlan0)%s\n", bssid(v.idx), station, assoc)
		fmt.Fprintf(&b, "\tfreq: %d\n", channelFreq(v.ap.Channel))
		fmt.Fprintf(&b, "\tsignal: %.2f dBm\n", v.sig)
		fmt.Fprintf(&b, "\tSSID: %s\n", v.ap.SSID)
	}
	return b.String(), nil
}

// PingProbe renders single-echo ping output. Unattached stations time out.
func (e *Emulated) PingProbe(ctx context.Context, station, target string, timeout time.Duration) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return "", err
	}
	header := fmt.Sprintf("PING %s (%s) 56(84) bytes of data.\n", target, target)
	if st.attached == "" {
		return header + "\n1 packets transmitted, 0 received, 100% packet loss\n", fmt.Errorf("ping %s: exit status 1", target)
	}
	ap, _ := e.apBySSID(st.attached)
	d := math.Hypot(ap.X-st.x, ap.Y-st.y)
	rtt := 1 + d*0.05
	if e.opts.NoiseDB > 0 {
		rtt += e.rng.Float64()
	}
	if time.Duration(rtt*float64(time.Millisecond)) > timeout {
		return header + "\n1 packets transmitted, 0 received, 100% packet loss\n", fmt.Errorf("ping %s: exit status 1", target)
	}
	return header + fmt.Sprintf("64 bytes from %s: icmp_seq=1 ttl=64 time=%.3f ms\n", target, rtt), nil
}

// MeasureThroughput renders an iperf3 JSON report scaled by signal strength.
func (e *Emulated) MeasureThroughput(ctx context.Context, station, server string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return "", err
	}
	if st.attached == "" {
		return `{"error":"unable to connect to server"}`, fmt.Errorf("iperf3 %s: exit status 1", server)
	}
	ap, _ := e.apBySSID(st.attached)
	s, _ := e.signalAt(ap, st.x, st.y)
	mbps := math.Max(1, 54*math.Min(1, (s+90)/50))
	return fmt.Sprintf(`{"end":{"sum_received":{"bits_per_second":%.1f},"streams":[{"receiver":{"bits_per_second":%.1f}}]}}`,
		mbps*1e6, mbps*1e6), nil
}

// SetPosition moves a station and re-evaluates its association.
func (e *Emulated) SetPosition(ctx context.Context, station string, x, y float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return err
	}
	st.x, st.y = x, y
	e.autoAssociate(st)
	return nil
}

// Detach disconnects a station from its AP.
func (e *Emulated) Detach(ctx context.Context, station string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return err
	}
	if e.FailDetach {
		e.FailDetach = false
		return fmt.Errorf("iw dev %s-wlan0 disconnect: device busy", station)
	}
	st.attached = ""
	return nil
}

// Attach connects a station to the AP advertising ssid, which must be in range.
func (e *Emulated) Attach(ctx context.Context, station, ssid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.station(station)
	if err != nil {
		return err
	}
	if e.FailAttach {
		e.FailAttach = false
		return fmt.Errorf("iw dev %s-wlan0 connect %s: operation not permitted", station, ssid)
	}
	ap, ok := e.apBySSID(ssid)
	if !ok {
		return fmt.Errorf("connect %s: no such network", ssid)
	}
	if _, inRange := e.signalAt(ap, st.x, st.y); !inRange {
		return fmt.Errorf("connect %s: out of range", ssid)
	}
	st.attached = ssid
	return nil
}

func channelFreq(ch int) int {
	if ch <= 0 {
		ch = 1
	}
	if ch == 14 {
		return 2484
	}
	if ch < 14 {
		return 2407 + 5*ch
	}
	return 5000 + 5*ch
}
