package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"handover-sim/internal/logging"
	"handover-sim/internal/probe"
)

// Deployment step names in execution order.
const (
	StepConnect  = "connect"
	StepUpload   = "upload"
	StepVerify   = "verify"
	StepExecute  = "execute"
	StepDownload = "download"
)

// Step is one entry of a deployment trail.
type Step struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Trail records the steps a deployment went through.
type Trail struct {
	Steps []Step `json:"steps"`
}

// OK reports whether every recorded step succeeded.
func (t Trail) OK() bool {
	for _, s := range t.Steps {
		if !s.OK {
			return false
		}
	}
	return len(t.Steps) > 0
}

func (t Trail) String() string {
	parts := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		mark := "ok"
		if !s.OK {
			mark = "failed"
		}
		parts[i] = s.Name + ":" + mark
	}
	return strings.Join(parts, " -> ")
}

// Deployer ships a control script to the device, runs it and retrieves the
// log it produced.
type Deployer struct {
	Channel *Channel
	WorkDir string
	// Timeout bounds the script execution. Zero uses the channel default.
	Timeout time.Duration
}

// Job describes one deployment.
type Job struct {
	Script     []byte
	ScriptName string
	LogName    string
	LocalDir   string
}

// Deploy runs connect, upload, verify, execute and download in order and
// stops at the first failing step. The trail is returned in every case.
func (d *Deployer) Deploy(ctx context.Context, job Job) (Trail, error) {
	log := logging.FromContext(ctx)
	var trail Trail
	step := func(name string, fn func() (string, error)) error {
		start := time.Now()
		detail, err := fn()
		s := Step{Name: name, OK: err == nil, Detail: detail, Duration: time.Since(start)}
		if err != nil {
			s.Error = err.Error()
			log.Warn("deployment step failed", "step", name, "err", err)
		} else {
			log.Info("deployment step done", "step", name, "detail", detail)
		}
		trail.Steps = append(trail.Steps, s)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	if err := os.MkdirAll(job.LocalDir, 0o755); err != nil {
		return trail, err
	}
	localScript := filepath.Join(job.LocalDir, job.ScriptName)
	remoteScript := path.Join(d.WorkDir, job.ScriptName)
	remoteLog := path.Join(d.WorkDir, job.LogName)
	localLog := filepath.Join(job.LocalDir, job.LogName)

	if err := step(StepConnect, func() (string, error) {
		return d.Channel.Status().Host, d.Channel.Connect(ctx)
	}); err != nil {
		return trail, err
	}
	if err := step(StepUpload, func() (string, error) {
		if err := os.WriteFile(localScript, job.Script, 0o755); err != nil {
			return "", err
		}
		return remoteScript, d.Channel.UploadFile(ctx, localScript, remoteScript)
	}); err != nil {
		return trail, err
	}
	if err := step(StepVerify, func() (string, error) {
		res, err := d.Channel.ExecuteCommand(ctx, "test -s "+probe.ShellQuote(remoteScript), 0)
		if err != nil {
			return "", err
		}
		if !res.Success {
			return "", fmt.Errorf("script missing on device")
		}
		return remoteScript, nil
	}); err != nil {
		return trail, err
	}
	if err := step(StepExecute, func() (string, error) {
		cmd := fmt.Sprintf("cd %s && sh %s", probe.ShellQuote(d.WorkDir), probe.ShellQuote(remoteScript))
		res, err := d.Channel.ExecuteCommand(ctx, cmd, d.Timeout)
		if err != nil {
			return "", err
		}
		if !res.Success {
			return strings.TrimSpace(res.Stdout), fmt.Errorf("exit status %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return strings.TrimSpace(res.Stdout), nil
	}); err != nil {
		return trail, err
	}
	if err := step(StepDownload, func() (string, error) {
		return localLog, d.Channel.DownloadFile(ctx, remoteLog, localLog)
	}); err != nil {
		return trail, err
	}
	return trail, nil
}
