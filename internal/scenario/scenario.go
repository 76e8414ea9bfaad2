// Package scenario provides the built-in experiment layouts and resolves
// scenario names or files into validated configurations.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"handover-sim/internal/config"
)

// Builtin is a named, ready-made scenario.
type Builtin struct {
	Name        string
	Description string
	build       func() *config.Scenario
}

// Scenario returns a fresh copy of the built-in configuration with defaults
// applied.
func (b Builtin) Scenario() *config.Scenario {
	sc := b.build()
	sc.Name = b.Name
	sc.ApplyDefaults()
	return sc
}

func boolPtr(b bool) *bool         { return &b }
func intPtr(i int) *int            { return &i }
func floatPtr(f float64) *float64 { return &f }

func ap(name string, x, y, rng float64) config.AP {
	return config.AP{Name: name, X: x, Y: y, Range: rng, Channel: 1}
}

var builtins = []Builtin{
	{
		Name:        "handover-line",
		Description: "three access points on a line, one station crossing all of them",
		build: func() *config.Scenario {
			return &config.Scenario{
				Wait:     floatPtr(3),
				Handover: config.HandoverConfig{Enabled: boolPtr(true), Threshold: intPtr(-65), Hysteresis: intPtr(5)},
				APs:      []config.AP{ap("ap1", 10, 20, 25), ap("ap2", 30, 20, 25), ap("ap3", 50, 20, 25)},
				Stations: []config.Station{{
					Name: "sta1", StartX: 5, StartY: 20,
					Trajectory: [][]float64{{15, 20}, {25, 20}, {35, 20}, {45, 20}, {55, 20}},
				}},
			}
		},
	},
	{
		Name:        "forced-pair",
		Description: "two access points, station pushed across the midpoint at x=20",
		build: func() *config.Scenario {
			return &config.Scenario{
				Handover: config.HandoverConfig{Enabled: boolPtr(true), Threshold: intPtr(-60), Hysteresis: intPtr(3)},
				APs:      []config.AP{ap("ap1", 10, 20, 25), ap("ap2", 30, 20, 25)},
				Stations: []config.Station{{
					Name: "sta1", StartX: 5, StartY: 20,
					Trajectory: [][]float64{{10, 20}, {15, 20}, {20, 20}, {25, 20}, {30, 20}, {35, 20}},
				}},
			}
		},
	},
	{
		Name:        "line",
		Description: "simple straight line between two access points",
		build: func() *config.Scenario {
			return &config.Scenario{
				APs: []config.AP{ap("ap1", 10, 20, 25), ap("ap2", 30, 20, 25)},
				Stations: []config.Station{{
					Name: "sta1", StartX: 5, StartY: 20,
					Trajectory: [][]float64{{15, 20}, {25, 20}, {35, 20}},
				}},
			}
		},
	},
	{
		Name:        "triangle",
		Description: "three access points in a triangle, station loops inside it",
		build: func() *config.Scenario {
			return &config.Scenario{
				APs: []config.AP{ap("ap1", 10, 10, 25), ap("ap2", 30, 10, 25), ap("ap3", 20, 30, 25)},
				Stations: []config.Station{{
					Name: "sta1", StartX: 15, StartY: 15,
					Trajectory: [][]float64{{25, 15}, {20, 25}, {15, 15}},
				}},
			}
		},
	},
	{
		Name:        "square-mesh",
		Description: "four access points in a square, two stations on independent loops",
		build: func() *config.Scenario {
			return &config.Scenario{
				APs: []config.AP{ap("ap1", 10, 10, 25), ap("ap2", 30, 10, 25), ap("ap3", 30, 30, 25), ap("ap4", 10, 30, 25)},
				Stations: []config.Station{
					{Name: "sta1", StartX: 5, StartY: 5, Trajectory: [][]float64{{35, 5}, {35, 35}, {5, 35}, {5, 5}}},
					{Name: "sta2", StartX: 20, StartY: 20, Trajectory: [][]float64{{25, 25}, {15, 25}, {15, 15}, {25, 15}, {25, 25}}},
				},
			}
		},
	},
}

// Builtins lists the built-in scenarios sorted by name.
func Builtins() []Builtin {
	out := append([]Builtin(nil), builtins...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns a built-in scenario by name.
func Lookup(name string) (*config.Scenario, bool) {
	for _, b := range builtins {
		if b.Name == name {
			return b.Scenario(), true
		}
	}
	return nil, false
}

// Resolve returns the built-in scenario called nameOrPath, or loads it as a
// file validated against cueSchemaPath. Remote device environment
// overrides apply in both cases.
func Resolve(nameOrPath, cueSchemaPath string) (*config.Scenario, error) {
	if sc, ok := Lookup(nameOrPath); ok {
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		sc.ApplyEnv(os.Getenv)
		return sc, nil
	}
	if _, err := os.Stat(nameOrPath); err != nil {
		return nil, fmt.Errorf("scenario %q is neither a built-in nor a readable file: %w", nameOrPath, err)
	}
	return config.Load(nameOrPath, cueSchemaPath)
}

// ConnectivityLimit builds a two-AP scenario with a station moving in a
// straight line from startX to endX at the APs' height, sampled at steps
// evenly spaced points.
func ConnectivityLimit(ap1X, ap2X, startX, endX float64, steps int) (*config.Scenario, error) {
	if steps < 2 {
		return nil, fmt.Errorf("connectivity limit needs at least 2 steps, got %d", steps)
	}
	const y = 20.0
	stepSize := (endX - startX) / float64(steps-1)
	traj := make([][]float64, steps)
	for i := range traj {
		traj[i] = []float64{startX + float64(i)*stepSize, y}
	}
	sc := &config.Scenario{
		Name:     fmt.Sprintf("limit-%g-%g", ap1X, ap2X),
		Handover: config.HandoverConfig{Enabled: boolPtr(true), Threshold: intPtr(-65), Hysteresis: intPtr(5)},
		APs:      []config.AP{ap("ap1", ap1X, y, 25), ap("ap2", ap2X, y, 25)},
		Stations: []config.Station{{Name: "sta1", StartX: startX, StartY: y, Trajectory: traj}},
	}
	sc.ApplyDefaults()
	return sc, nil
}

// LimitSuite returns the connectivity-limit series with access point
// separations of 5, 10, 15 and 20 metres.
func LimitSuite() []*config.Scenario {
	specs := []struct{ ap1, ap2, start, end float64 }{
		{10, 15, 5, 20},
		{10, 20, 5, 25},
		{10, 25, 5, 30},
		{10, 30, 5, 35},
	}
	out := make([]*config.Scenario, 0, len(specs))
	for _, s := range specs {
		sc, _ := ConnectivityLimit(s.ap1, s.ap2, s.start, s.end, 10)
		out = append(out, sc)
	}
	return out
}

// Marshal renders a scenario as YAML.
func Marshal(sc *config.Scenario) ([]byte, error) {
	return yaml.Marshal(sc)
}
