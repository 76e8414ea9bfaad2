package probe

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"
)

// ShellQuote wraps s in single quotes for POSIX sh so that it reaches the
// command as one literal argument.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Runner executes a shell command line and returns its combined output.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd string) (string, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd string) (string, error) { return f(ctx, cmd) }

// ExecRunner runs commands through the local shell.
type ExecRunner struct {
	Shell string
}

// Run executes cmd with `sh -c`.
func (r ExecRunner) Run(ctx context.Context, cmd string) (string, error) {
	sh := r.Shell
	if sh == "" {
		sh = "/bin/sh"
	}
	out, err := exec.CommandContext(ctx, sh, "-c", cmd).CombinedOutput()
	return string(out), err
}

// Shell is a backend issuing the real wireless tooling commands for each
// station through a Runner. Interface names, SSIDs and targets are quoted;
// Prefix is passed through as written.
type Shell struct {
	// Interfaces maps station names to wireless interface names.
	Interfaces map[string]string
	// Prefix maps station names to a command prefix, e.g. a namespace exec
	// wrapper. Optional.
	Prefix map[string]string
	Runner Runner
	Mover  Mover
	// IperfSeconds is the iperf3 test duration.
	IperfSeconds int
}

func (s *Shell) iface(station string) (string, error) {
	ifc, ok := s.Interfaces[station]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownStation, station)
	}
	return ifc, nil
}

func (s *Shell) run(ctx context.Context, station, cmd string) (string, error) {
	if p := s.Prefix[station]; p != "" {
		cmd = p + " " + cmd
	}
	return s.Runner.Run(ctx, cmd)
}

// ReadLinkStatus runs `iw dev <if> link`.
func (s *Shell) ReadLinkStatus(ctx context.Context, station string) (string, error) {
	ifc, err := s.iface(station)
	if err != nil {
		return "", err
	}
	return s.run(ctx, station, "iw dev "+ShellQuote(ifc)+" link")
}

// ReadWirelessConfig runs `iwconfig <if>`.
func (s *Shell) ReadWirelessConfig(ctx context.Context, station string) (string, error) {
	ifc, err := s.iface(station)
	if err != nil {
		return "", err
	}
	return s.run(ctx, station, "iwconfig "+ShellQuote(ifc))
}

// ScanVisibleNetworks runs `iw dev <if> scan`.
func (s *Shell) ScanVisibleNetworks(ctx context.Context, station string) (string, error) {
	ifc, err := s.iface(station)
	if err != nil {
		return "", err
	}
	return s.run(ctx, station, "iw dev "+ShellQuote(ifc)+" scan")
}

// PingProbe sends a single echo with a deadline rounded up to whole seconds.
func (s *Shell) PingProbe(ctx context.Context, station, target string, timeout time.Duration) (string, error) {
	if _, err := s.iface(station); err != nil {
		return "", err
	}
	return s.run(ctx, station, PingCommand(target, timeout))
}

// PingCommand formats the single-echo ping command line.
func PingCommand(target string, timeout time.Duration) string {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("ping -c 1 -W %d %s", secs, ShellQuote(target))
}

// MeasureThroughput runs an iperf3 client against server.
func (s *Shell) MeasureThroughput(ctx context.Context, station, server string) (string, error) {
	if _, err := s.iface(station); err != nil {
		return "", err
	}
	secs := s.IperfSeconds
	if secs <= 0 {
		secs = 5
	}
	return s.run(ctx, station, fmt.Sprintf("iperf3 -c %s -t %d -J", ShellQuote(server), secs))
}

// SetPosition delegates to the Mover when one is configured.
func (s *Shell) SetPosition(ctx context.Context, station string, x, y float64) error {
	if _, err := s.iface(station); err != nil {
		return err
	}
	if s.Mover == nil {
		return nil
	}
	return s.Mover.Move(ctx, station, x, y)
}

// Detach runs `iw dev <if> disconnect`.
func (s *Shell) Detach(ctx context.Context, station string) error {
	ifc, err := s.iface(station)
	if err != nil {
		return err
	}
	if out, err := s.run(ctx, station, "iw dev "+ShellQuote(ifc)+" disconnect"); err != nil {
		return fmt.Errorf("disconnect %s: %w: %s", ifc, err, out)
	}
	return nil
}

// Attach runs `iw dev <if> connect <ssid>`.
func (s *Shell) Attach(ctx context.Context, station, ssid string) error {
	ifc, err := s.iface(station)
	if err != nil {
		return err
	}
	if out, err := s.run(ctx, station, "iw dev "+ShellQuote(ifc)+" connect "+ShellQuote(ssid)); err != nil {
		return fmt.Errorf("connect %s to %s: %w: %s", ifc, ssid, err, out)
	}
	return nil
}
