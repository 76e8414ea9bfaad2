package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handover-sim/internal/config"
)

func scriptScenario() *config.Scenario {
	sc := &config.Scenario{
		Name: "auto handover",
		APs:  []config.AP{{Name: "ap1", X: 10, Y: 20, Range: 25}},
		Stations: []config.Station{{
			Name: "sta1", StartX: 5, StartY: 20,
			Trajectory: [][]float64{{15, 20}, {25, 20}},
		}},
	}
	sc.ApplyDefaults()
	return sc
}

func TestRenderScript(t *testing.T) {
	data := ScriptDataFromScenario(scriptScenario(), "run-1", "robot_log_run-1.csv")
	out, err := RenderScript(data)
	require.NoError(t, err)
	script := string(out)

	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	assert.Contains(t, script, "# Control script for scenario 'auto handover', run run-1.")
	assert.Contains(t, script, "LOG='robot_log_run-1.csv'")
	assert.Contains(t, script, "stty -F \"$PORT\" 9600 cs8")
	assert.Contains(t, script, "ping -c 1 -W 2 '8.8.8.8'")
	assert.Contains(t, script, "move 5.00 20.00\nsleep 2.00\nsample 'sta1' 5.00 20.00\n")
	assert.Contains(t, script, "move 25.00 20.00\nsleep 1.00\nsample 'sta1' 25.00 20.00\n")
	assert.Equal(t, 3, strings.Count(script, "\nmove "))
}

func TestRenderScriptRejectsBadPoint(t *testing.T) {
	sc := scriptScenario()
	sc.Stations[0].Trajectory = append(sc.Stations[0].Trajectory, []float64{1})
	_, err := RenderScript(ScriptDataFromScenario(sc, "run-1", "log.csv"))
	assert.ErrorContains(t, err, "trajectory[2]")
}

func TestDeploySuccessTrail(t *testing.T) {
	d := newFakeDialer()
	// The device produces its log when the script runs.
	d.files["/home/pi/robot.csv"] = []byte("timestamp,station\n")
	c := New(testOptions(), d)
	dep := &Deployer{Channel: c, WorkDir: "/home/pi"}
	dir := t.TempDir()

	trail, err := dep.Deploy(context.Background(), Job{
		Script: []byte("#!/bin/sh\n"), ScriptName: "control.sh", LogName: "robot.csv", LocalDir: dir,
	})
	require.NoError(t, err)
	assert.True(t, trail.OK())
	assert.Equal(t, "connect:ok -> upload:ok -> verify:ok -> execute:ok -> download:ok", trail.String())
	assert.Equal(t, []byte("#!/bin/sh\n"), d.files["/home/pi/control.sh"])
	assert.Contains(t, d.commands(), "cd '/home/pi' && sh '/home/pi/control.sh'")

	data, err := os.ReadFile(filepath.Join(dir, "robot.csv"))
	require.NoError(t, err)
	assert.Equal(t, "timestamp,station\n", string(data))
}

func TestDeployStopsAtFailingStep(t *testing.T) {
	d := newFakeDialer()
	d.exit["cd "] = 2
	c := New(testOptions(), d)
	dep := &Deployer{Channel: c, WorkDir: "/home/pi"}

	trail, err := dep.Deploy(context.Background(), Job{
		Script: []byte("x"), ScriptName: "control.sh", LogName: "robot.csv", LocalDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.False(t, trail.OK())
	require.Len(t, trail.Steps, 4)
	assert.Equal(t, StepExecute, trail.Steps[3].Name)
	assert.Contains(t, trail.Steps[3].Error, "exit status 2")
}

func TestDeployConnectFailure(t *testing.T) {
	d := newFakeDialer()
	d.failDials = 1
	dep := &Deployer{Channel: New(testOptions(), d), WorkDir: "/home/pi"}

	trail, err := dep.Deploy(context.Background(), Job{ScriptName: "c.sh", LogName: "l.csv", LocalDir: t.TempDir()})
	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, trail.Steps, 1)
	assert.Equal(t, StepConnect, trail.Steps[0].Name)
}
