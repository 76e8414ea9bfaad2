package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"handover-sim/internal/config"
	"handover-sim/internal/probe"
	"handover-sim/internal/remote"
)

// newBackend builds the measurement backend selected by the scenario. ch is
// required for the remote backend and ignored otherwise.
func newBackend(sc *config.Scenario, ch *remote.Channel) (probe.Backend, func(), error) {
	switch sc.Probe.Backend {
	case config.BackendEmulated:
		aps := make([]probe.AccessPoint, len(sc.APs))
		for i, ap := range sc.APs {
			aps[i] = probe.AccessPoint{Name: ap.Name, SSID: ap.SSID, X: ap.X, Y: ap.Y, Range: ap.Range, Channel: ap.Channel}
		}
		opts := probe.DefaultEmulatedOptions()
		opts.NoiseDB = sc.Probe.NoiseDB
		opts.Seed = sc.Probe.Seed
		emu := probe.NewEmulated(aps, opts)
		for _, st := range sc.Stations {
			emu.AddStation(st.Name, st.StartX, st.StartY)
		}
		return emu, func() {}, nil

	case config.BackendShell, config.BackendRemote:
		sh := &probe.Shell{
			Interfaces: sc.Probe.Interfaces,
			Prefix:     sc.Probe.Prefix,
			Runner:     probe.ExecRunner{},
		}
		if sh.Interfaces == nil {
			sh.Interfaces = make(map[string]string)
		}
		for _, st := range sc.Stations {
			if _, ok := sh.Interfaces[st.Name]; !ok {
				sh.Interfaces[st.Name] = st.Name + "-wlan0"
			}
		}
		if sc.Probe.Backend == config.BackendRemote {
			if ch == nil {
				return nil, nil, fmt.Errorf("backend %q needs a remote device", config.BackendRemote)
			}
			sh.Runner = ch
		}
		cleanup := func() {}
		if sc.Probe.SerialPort != "" {
			m, err := probe.OpenSerialMover(sc.Probe.SerialPort)
			if err != nil {
				return nil, nil, err
			}
			sh.Mover = m
			cleanup = func() { m.Close() }
		}
		return sh, cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown probe backend %q", sc.Probe.Backend)
}

// newChannel builds a remote channel for the scenario's device, prompting
// for a password on the terminal when no credentials are configured.
func newChannel(cfg *config.RemoteConfig) (*remote.Channel, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("no remote device configured (set remote.host or REMOTE_HOST)")
	}
	if cfg.Password == "" && cfg.KeyFile == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "%s@%s password: ", cfg.User, cfg.Host)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		cfg.Password = string(pw)
	}
	dialer, err := remote.NewSSHDialer(cfg)
	if err != nil {
		return nil, err
	}
	return remote.New(remote.OptionsFromConfig(cfg), dialer), nil
}

// connectChannel opens the session and starts the liveness loop.
func connectChannel(ctx context.Context, ch *remote.Channel) error {
	if err := ch.Connect(ctx); err != nil {
		return err
	}
	ch.Start(ctx)
	return nil
}
