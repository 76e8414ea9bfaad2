// Package remote keeps a long-lived authenticated shell and file-transfer
// session with a companion device and ships generated control scripts to it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"handover-sim/internal/config"
	"handover-sim/internal/logging"
)

// State of the channel's transport.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

const (
	canaryCommand    = "echo ok"
	keepAliveCommand = "echo keep-alive"
)

// CommandResult is the outcome of a remote command. A non-zero exit status
// is reported here and is not an error.
type CommandResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Session is one authenticated transport with shell and file-transfer
// capabilities.
type Session interface {
	Run(ctx context.Context, cmd string) (CommandResult, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	Close() error
}

// Dialer opens new sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// ConnectionError is returned when a session cannot be established or
// verified.
type ConnectionError struct {
	Host string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("remote %s: %s: %v", e.Host, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Options tune timeouts of a Channel.
type Options struct {
	Host            string
	User            string
	ConnectTimeout  time.Duration
	CommandTimeout  time.Duration
	CanaryTimeout   time.Duration
	// TransferTimeout bounds one file upload or download.
	TransferTimeout time.Duration
	KeepAlive       time.Duration
}

// DefaultOptions returns the standard timeouts.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  10 * time.Second,
		CommandTimeout:  30 * time.Second,
		CanaryTimeout:   3 * time.Second,
		TransferTimeout: 5 * time.Minute,
		KeepAlive:       60 * time.Second,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// OptionsFromConfig builds channel options for a remote device.
func OptionsFromConfig(cfg *config.RemoteConfig) Options {
	opts := DefaultOptions()
	opts.Host = cfg.Host
	opts.User = cfg.User
	if cfg.ConnectTimeout > 0 {
		opts.ConnectTimeout = seconds(cfg.ConnectTimeout)
	}
	if cfg.CommandTimeout > 0 {
		opts.CommandTimeout = seconds(cfg.CommandTimeout)
	}
	if cfg.TransferTimeout > 0 {
		opts.TransferTimeout = seconds(cfg.TransferTimeout)
	}
	if cfg.KeepAlive > 0 {
		opts.KeepAlive = seconds(cfg.KeepAlive)
	}
	return opts
}

// Status is a snapshot of the channel.
type Status struct {
	Host        string    `json:"host"`
	User        string    `json:"user"`
	State       State     `json:"state"`
	Connected   bool      `json:"connected"`
	LastChecked time.Time `json:"last_checked"`
	Reconnects  int       `json:"reconnects"`
}

// Channel is a persistent, self-healing remote session. The transport is
// guarded by a single mutex shared by callers and the liveness loop. The
// fields reported by Status are also written under smu so that Status never
// waits for an operation in flight.
type Channel struct {
	mu       sync.Mutex
	opts     Options
	dialer   Dialer
	session  Session
	connects int
	now      func() time.Time

	smu         sync.Mutex
	state       State
	lastChecked time.Time
	reconnects  int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a disconnected channel.
func New(opts Options, dialer Dialer) *Channel {
	def := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = def.CommandTimeout
	}
	if opts.CanaryTimeout <= 0 {
		opts.CanaryTimeout = def.CanaryTimeout
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = def.TransferTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = def.KeepAlive
	}
	return &Channel{opts: opts, dialer: dialer, state: Disconnected, now: time.Now}
}

// Connect establishes the session unless one is already up.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Channel) setState(st State) {
	c.smu.Lock()
	c.state = st
	c.smu.Unlock()
}

func (c *Channel) markChecked() {
	c.smu.Lock()
	c.lastChecked = c.now()
	c.smu.Unlock()
}

func (c *Channel) connectLocked(ctx context.Context) error {
	if c.state == Connected && c.session != nil {
		return nil
	}
	log := logging.FromContext(ctx)
	c.setState(Connecting)
	log.Info("connecting to remote device", "host", c.opts.Host, "user", c.opts.User)

	dctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	sess, err := c.dialer.Dial(dctx)
	if err != nil {
		c.setState(Disconnected)
		log.Warn("remote connection failed", "host", c.opts.Host, "err", err)
		return &ConnectionError{Host: c.opts.Host, Op: "dial", Err: err}
	}

	if err := c.canary(ctx, sess, canaryCommand); err != nil {
		sess.Close()
		c.setState(Disconnected)
		log.Warn("remote connection check failed", "host", c.opts.Host, "err", err)
		return &ConnectionError{Host: c.opts.Host, Op: "verify", Err: err}
	}

	c.session = sess
	c.connects++
	c.smu.Lock()
	c.state = Connected
	c.lastChecked = c.now()
	if c.connects > 1 {
		c.reconnects++
	}
	c.smu.Unlock()
	log.Info("remote connection established", "host", c.opts.Host)
	return nil
}

func (c *Channel) canary(ctx context.Context, sess Session, cmd string) error {
	cctx, cancel := context.WithTimeout(ctx, c.opts.CanaryTimeout)
	defer cancel()
	res, err := sess.Run(cctx, cmd)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%q exited with status %d", cmd, res.ExitCode)
	}
	return nil
}

// dropLocked closes the transport and marks the channel disconnected.
func (c *Channel) dropLocked() error {
	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}
	c.setState(Disconnected)
	return err
}

// EnsureConnection checks a live session with one short canary and
// reconnects once when the check fails or no session exists.
func (c *Channel) EnsureConnection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(ctx)
}

func (c *Channel) ensureLocked(ctx context.Context) error {
	if c.state == Connected && c.session != nil {
		err := c.canary(ctx, c.session, canaryCommand)
		if err == nil {
			c.markChecked()
			return nil
		}
		logging.FromContext(ctx).Warn("remote session lost, reconnecting", "host", c.opts.Host, "err", err)
		c.dropLocked()
	}
	return c.connectLocked(ctx)
}

// ExecuteCommand runs cmd on the device. A zero timeout uses the channel's
// command timeout. Transport failures and timeouts drop the session.
func (c *Channel) ExecuteCommand(ctx context.Context, cmd string, timeout time.Duration) (CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx); err != nil {
		return CommandResult{}, err
	}
	return c.runLocked(ctx, cmd, timeout)
}

func (c *Channel) runLocked(ctx context.Context, cmd string, timeout time.Duration) (CommandResult, error) {
	if timeout <= 0 {
		timeout = c.opts.CommandTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := c.session.Run(cctx, cmd)
	if err != nil {
		c.dropLocked()
		logging.FromContext(ctx).Warn("remote command failed", "host", c.opts.Host, "cmd", cmd, "err", err)
		return res, fmt.Errorf("execute %q: %w", cmd, err)
	}
	c.markChecked()
	return res, nil
}

// Run executes cmd and returns its combined output, failing on a non-zero
// exit status. It lets the channel serve as a probe.Runner.
func (c *Channel) Run(ctx context.Context, cmd string) (string, error) {
	res, err := c.ExecuteCommand(ctx, cmd, 0)
	if err != nil {
		return "", err
	}
	out := res.Stdout + res.Stderr
	if !res.Success {
		return out, fmt.Errorf("remote command exited with status %d", res.ExitCode)
	}
	return out, nil
}

// UploadFile copies a local file to the device.
func (c *Channel) UploadFile(ctx context.Context, localPath, remotePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx); err != nil {
		return err
	}
	if err := c.transferLocked(ctx, func(tctx context.Context) error {
		return c.session.Upload(tctx, localPath, remotePath)
	}); err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	logging.FromContext(ctx).Info("uploaded file", "local", localPath, "remote", remotePath)
	return nil
}

// DownloadFile copies a file from the device.
func (c *Channel) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx); err != nil {
		return err
	}
	if err := c.transferLocked(ctx, func(tctx context.Context) error {
		return c.session.Download(tctx, remotePath, localPath)
	}); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	logging.FromContext(ctx).Info("downloaded file", "remote", remotePath, "local", localPath)
	return nil
}

// transferLocked runs one file transfer bounded by the transfer timeout. A
// transfer cut short by the deadline leaves the transport in an unknown
// state, so the session is dropped.
func (c *Channel) transferLocked(ctx context.Context, fn func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, c.opts.TransferTimeout)
	defer cancel()
	err := fn(tctx)
	if err != nil && tctx.Err() != nil {
		c.dropLocked()
		logging.FromContext(ctx).Warn("remote transfer aborted", "host", c.opts.Host, "err", err)
		if !errors.Is(err, tctx.Err()) {
			err = errors.Join(err, tctx.Err())
		}
		return err
	}
	if err == nil {
		c.markChecked()
	}
	return err
}

// Start launches the liveness loop. It is a no-op when already running.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	lctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(lctx, c.done)
}

func (c *Channel) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick runs one liveness check. Failures are logged and swallowed.
func (c *Channel) tick(ctx context.Context) {
	log := logging.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error("liveness check panicked", "host", c.opts.Host, "panic", r)
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if c.state != Connected || c.session == nil {
		if err := c.connectLocked(ctx); err != nil {
			log.Warn("reconnect failed", "host", c.opts.Host, "err", err)
		}
		return
	}
	if err := c.canary(ctx, c.session, keepAliveCommand); err != nil {
		log.Warn("keep-alive failed", "host", c.opts.Host, "err", err)
		c.dropLocked()
		return
	}
	c.markChecked()
}

// Stop cancels the liveness loop, waits for it and closes the transport.
// It is safe to call more than once.
func (c *Channel) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dropLocked(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close remote session: %w", err)
	}
	return nil
}

// Disconnect is an alias for Stop.
func (c *Channel) Disconnect() error { return c.Stop() }

// Status returns a snapshot without touching the network.
func (c *Channel) Status() Status {
	c.smu.Lock()
	defer c.smu.Unlock()
	return Status{
		Host:        c.opts.Host,
		User:        c.opts.User,
		State:       c.state,
		Connected:   c.state == Connected,
		LastChecked: c.lastChecked,
		Reconnects:  c.reconnects,
	}
}
