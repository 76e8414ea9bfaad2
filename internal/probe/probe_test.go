package probe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lineAPs() []AccessPoint {
	return []AccessPoint{
		{Name: "ap1", SSID: "ap1", X: 0, Y: 0, Range: 40, Channel: 1},
		{Name: "ap2", SSID: "ap2", X: 50, Y: 0, Range: 40, Channel: 6},
	}
}

func TestEmulatedAutoAssociatesStrongest(t *testing.T) {
	e := NewEmulated(lineAPs(), EmulatedOptions{AutoAssociate: true, Seed: 1})
	e.AddStation("sta1", 5, 0)
	if got := e.Attached("sta1"); got != "ap1" {
		t.Fatalf("expected ap1, got %q", got)
	}
	link, err := e.ReadLinkStatus(context.Background(), "sta1")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !strings.Contains(link, "SSID: ap1") || !strings.Contains(link, "signal: -61 dBm") {
		t.Fatalf("unexpected link output:\n%s", link)
	}
}

func TestEmulatedScanOrdersBySignal(t *testing.T) {
	e := NewEmulated(lineAPs(), EmulatedOptions{Seed: 1})
	e.AddStation("sta1", 30, 0)
	out, err := e.ScanVisibleNetworks(context.Background(), "sta1")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	first := strings.Index(out, "SSID: ap2")
	second := strings.Index(out, "SSID: ap1")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected ap2 before ap1:\n%s", out)
	}
}

func TestEmulatedUnattachedPingFails(t *testing.T) {
	e := NewEmulated(lineAPs(), EmulatedOptions{Seed: 1})
	e.AddStation("sta1", 200, 0)
	if _, err := e.PingProbe(context.Background(), "sta1", "10.0.0.1", 2*time.Second); err == nil {
		t.Fatalf("expected ping failure for unattached station")
	}
	link, _ := e.ReadLinkStatus(context.Background(), "sta1")
	if !strings.HasPrefix(link, "Not connected.") {
		t.Fatalf("expected not connected, got %q", link)
	}
}

func TestEmulatedAttachOutOfRange(t *testing.T) {
	e := NewEmulated(lineAPs(), EmulatedOptions{AutoAssociate: true, Seed: 1})
	e.AddStation("sta1", 0, 0)
	if err := e.Attach(context.Background(), "sta1", "ap2"); err == nil {
		t.Fatalf("expected out of range error")
	}
	if got := e.Attached("sta1"); got != "ap1" {
		t.Fatalf("attachment changed on failed attach: %q", got)
	}
}

func TestEmulatedFailDetachIsOneShot(t *testing.T) {
	e := NewEmulated(lineAPs(), EmulatedOptions{AutoAssociate: true, Seed: 1})
	e.AddStation("sta1", 0, 0)
	e.FailDetach = true
	if err := e.Detach(context.Background(), "sta1"); err == nil {
		t.Fatalf("expected detach failure")
	}
	if err := e.Detach(context.Background(), "sta1"); err != nil {
		t.Fatalf("second detach: %v", err)
	}
	if got := e.Attached("sta1"); got != "" {
		t.Fatalf("expected unattached, got %q", got)
	}
}

func TestEmulatedUnknownStation(t *testing.T) {
	e := NewEmulated(lineAPs(), EmulatedOptions{Seed: 1})
	err := e.SetPosition(context.Background(), "ghost", 1, 1)
	if !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation, got %v", err)
	}
}

func TestShellCommands(t *testing.T) {
	var got []string
	runner := RunnerFunc(func(ctx context.Context, cmd string) (string, error) {
		got = append(got, cmd)
		return "", nil
	})
	s := &Shell{
		Interfaces: map[string]string{"sta1": "sta1-wlan0"},
		Prefix:     map[string]string{"sta1": "mnexec -a 42"},
		Runner:     runner,
	}
	ctx := context.Background()
	_, _ = s.ReadLinkStatus(ctx, "sta1")
	_, _ = s.ScanVisibleNetworks(ctx, "sta1")
	_, _ = s.PingProbe(ctx, "sta1", "10.0.0.1", 1500*time.Millisecond)
	_ = s.Detach(ctx, "sta1")
	_ = s.Attach(ctx, "sta1", "ap2")
	want := []string{
		"mnexec -a 42 iw dev 'sta1-wlan0' link",
		"mnexec -a 42 iw dev 'sta1-wlan0' scan",
		"mnexec -a 42 ping -c 1 -W 2 '10.0.0.1'",
		"mnexec -a 42 iw dev 'sta1-wlan0' disconnect",
		"mnexec -a 42 iw dev 'sta1-wlan0' connect 'ap2'",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d: want %q got %q", i, want[i], got[i])
		}
	}
	if _, err := s.ReadLinkStatus(ctx, "sta9"); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation, got %v", err)
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"ap1":         `'ap1'`,
		"":            `''`,
		"it's":        `'it'\''s'`,
		"x; rm -rf /": `'x; rm -rf /'`,
	}
	for in, want := range cases {
		if got := ShellQuote(in); got != want {
			t.Fatalf("ShellQuote(%q)=%s want %s", in, got, want)
		}
	}
}

func TestShellAttachQuotesHostileSSID(t *testing.T) {
	var got string
	s := &Shell{
		Interfaces: map[string]string{"sta1": "wlan0"},
		Runner: RunnerFunc(func(ctx context.Context, cmd string) (string, error) {
			got = cmd
			return "", nil
		}),
	}
	ssid := "x; it's $(reboot)"
	if err := s.Attach(context.Background(), "sta1", ssid); err != nil {
		t.Fatalf("attach: %v", err)
	}
	want := `iw dev 'wlan0' connect 'x; it'\''s $(reboot)'`
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestShellAttachDoesNotRunSSID(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "marker")
	s := &Shell{
		Interfaces: map[string]string{"sta1": "wlan0"},
		// The interface command is replaced by a no-op so only the SSID
		// argument matters.
		Prefix: map[string]string{"sta1": "true"},
		Runner: ExecRunner{},
	}
	_ = s.Attach(context.Background(), "sta1", "x; touch "+marker)
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("SSID was executed by the shell (stat err=%v)", err)
	}
}

func TestShellAttachWrapsRunnerError(t *testing.T) {
	s := &Shell{
		Interfaces: map[string]string{"sta1": "wlan0"},
		Runner: RunnerFunc(func(ctx context.Context, cmd string) (string, error) {
			return "command failed: -16", errors.New("exit status 240")
		}),
	}
	err := s.Attach(context.Background(), "sta1", "ap1")
	if err == nil || !strings.Contains(err.Error(), "exit status 240") {
		t.Fatalf("unexpected error: %v", err)
	}
}

type fakePort struct {
	in  *bytes.Buffer
	out bytes.Buffer
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { return nil }

func TestSerialMover(t *testing.T) {
	port := &fakePort{in: bytes.NewBufferString("OK\nERR blocked\n")}
	m := NewSerialMover(port)
	if err := m.Move(context.Background(), "sta1", 1.5, 2); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := port.out.String(); got != "MOVE 1.50 2.00\n" {
		t.Fatalf("unexpected command %q", got)
	}
	if err := m.Move(context.Background(), "sta1", 3, 4); err == nil {
		t.Fatalf("expected error reply to surface")
	}
}
