package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"handover-sim/internal/config"
)

// SSHDialer opens SSH sessions with an SFTP subsystem.
type SSHDialer struct {
	Addr   string
	Config *ssh.ClientConfig
}

// NewSSHDialer builds a dialer from the device settings. A key file takes
// precedence over a password; both are offered when set.
func NewSSHDialer(cfg *config.RemoteConfig) (*SSHDialer, error) {
	if cfg.Host == "" {
		return nil, errors.New("remote host not set")
	}
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("remote: no key file or password configured")
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &SSHDialer{
		Addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Config: &ssh.ClientConfig{
			User: cfg.User,
			Auth: auth,
			// Lab devices are re-imaged often; host keys are accepted as offered.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         seconds(cfg.ConnectTimeout),
		},
	}, nil
}

// Dial connects, authenticates and opens the SFTP subsystem.
func (d *SSHDialer) Dial(ctx context.Context) (Session, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, d.Addr, d.Config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(cc, chans, reqs)
	fs, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open sftp: %w", err)
	}
	return &sshSession{client: client, sftp: fs}, nil
}

type sshSession struct {
	client *ssh.Client
	sftp   *sftp.Client
}

func (s *sshSession) Run(ctx context.Context, cmd string) (CommandResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return CommandResult{}, err
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return CommandResult{}, ctx.Err()
	case err := <-done:
		res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitStatus()
				return res, nil
			}
			return res, err
		}
		res.Success = true
		return res, nil
	}
}

// bounded runs a file transfer and aborts it when ctx is done by closing the
// SFTP client, which fails any request in progress.
func (s *sshSession) bounded(ctx context.Context, fn func() error) error {
	stop := context.AfterFunc(ctx, func() { s.sftp.Close() })
	err := fn()
	if !stop() && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *sshSession) Upload(ctx context.Context, localPath, remotePath string) error {
	return s.bounded(ctx, func() error {
		src, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := s.sftp.Create(remotePath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	})
}

func (s *sshSession) Download(ctx context.Context, remotePath, localPath string) error {
	return s.bounded(ctx, func() error {
		src, err := s.sftp.Open(remotePath)
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := os.Create(localPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	})
}

func (s *sshSession) Close() error {
	return errors.Join(s.sftp.Close(), s.client.Close())
}
