package telemetry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLinkStatus(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want LinkStatus
	}{
		{
			name: "connected",
			out: "Connected to 02:00:00:00:01:00 (on sta1-wlan0)\n\tSSID: ap1\n\tfreq: 2412\n\tsignal: -57 dBm\n",
			want: LinkStatus{Connected: true, SSID: "ap1", BSSID: "02:00:00:00:01:00", Signal: -57, HasSignal: true},
		},
		{
			name: "not connected",
			out:  "Not connected.\n",
			want: LinkStatus{},
		},
		{
			name: "empty",
			out:  "",
			want: LinkStatus{},
		},
		{
			name: "missing signal",
			out:  "Connected to 02:00:00:00:02:00 (on wlan0)\n\tSSID: ap2\n",
			want: LinkStatus{Connected: true, SSID: "ap2", BSSID: "02:00:00:00:02:00"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseLinkStatus(tc.out)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("link status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseWirelessConfig(t *testing.T) {
	sig, ssid, ok := ParseWirelessConfig("wlan0  IEEE 802.11  ESSID:\"meshNet\"\n  Link Quality=50/70  Signal level=-63 dBm\n")
	if !ok || sig != -63 || ssid != "meshNet" {
		t.Fatalf("got %d %q %v", sig, ssid, ok)
	}
	if _, _, ok := ParseWirelessConfig("wlan0  IEEE 802.11  ESSID:off/any\n"); ok {
		t.Fatalf("expected no signal for disassociated interface")
	}
}

func TestParseScan(t *testing.T) {
	out := `BSS 02:00:00:00:01:00(on sta1-wlan0) -- associated
	freq: 2412
	signal: -48.00 dBm
	SSID: ap1
BSS 02:00:00:00:02:00(on sta1-wlan0)
	freq: 2437
	signal: -71.50 dBm
BSS 02:00:00:00:03:00(on sta1-wlan0)
	signal: -80.00 dBm
	SSID:
BSS 02:00:00:00:04:00(on sta1-wlan0)
	SSID: ap4
	signal: -66.00 dBm
`
	want := []ScanEntry{
		{SSID: "ap1", BSSID: "02:00:00:00:01:00", Signal: -48},
		{SSID: "ap4", BSSID: "02:00:00:00:04:00", Signal: -66},
	}
	if diff := cmp.Diff(want, ParseScan(out)); diff != "" {
		t.Fatalf("scan mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScanTruncatesTowardZero(t *testing.T) {
	got := ParseScan("BSS aa:bb:cc:dd:ee:ff\n\tsignal: -59.99 dBm\n\tSSID: x\n")
	if len(got) != 1 || got[0].Signal != -59 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestParsePing(t *testing.T) {
	ms, ok := ParsePing("64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time=0.482 ms")
	if !ok || ms != 0.482 {
		t.Fatalf("got %v %v", ms, ok)
	}
	if _, ok := ParsePing("1 packets transmitted, 0 received, 100% packet loss"); ok {
		t.Fatalf("expected no match")
	}
}

func TestParseIperf(t *testing.T) {
	cases := []struct {
		name    string
		out     string
		want    float64
		wantErr bool
	}{
		{name: "sum", out: `{"end":{"sum_received":{"bits_per_second":12500000}}}`, want: 12.5},
		{name: "stream", out: `{"end":{"streams":[{"receiver":{"bits_per_second":3000000}}]}}`, want: 3},
		{name: "error", out: `{"error":"unable to connect"}`, wantErr: true},
		{name: "empty", out: `{"end":{}}`, wantErr: true},
		{name: "garbage", out: `nope`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseIperf(tc.out)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %v, %v", got, err)
			}
		})
	}
}

func TestQualityLabels(t *testing.T) {
	if SignalQuality(-50) != "excellent" || SignalQuality(-65) != "good" || SignalQuality(-100) != "poor" {
		t.Fatalf("unexpected signal labels")
	}
	if LatencyQuality(10) != "excellent" || LatencyQuality(LatencyTimeout) != "critical" {
		t.Fatalf("unexpected latency labels")
	}
}

func TestScanSummary(t *testing.T) {
	got := ScanSummary([]ScanEntry{{SSID: "ap1", Signal: -50}, {SSID: "ap2", Signal: -70}})
	if got != "ap1:-50;ap2:-70" {
		t.Fatalf("got %q", got)
	}
}
