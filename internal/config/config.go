// Scenario loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Mobility kinds.
const (
	MobilityDiscrete   = "discrete"
	MobilityContinuous = "continuous"
	MobilityRandomWalk = "random_walk"
)

// Probe backends.
const (
	BackendEmulated = "emulated"
	BackendShell    = "shell"
	// BackendRemote issues the shell commands on the remote device.
	BackendRemote = "remote"
)

// AP defines an access point of the testbed.
type AP struct {
	Name    string  `yaml:"name" json:"name"`
	SSID    string  `yaml:"ssid,omitempty" json:"ssid,omitempty"`
	X       float64 `yaml:"x" json:"x"`
	Y       float64 `yaml:"y" json:"y"`
	Range   float64 `yaml:"range" json:"range"`
	Channel int     `yaml:"channel,omitempty" json:"channel,omitempty"`
}

// Station defines a mobile station and the waypoints it visits.
type Station struct {
	Name       string      `yaml:"name" json:"name"`
	StartX     float64     `yaml:"start_x" json:"start_x"`
	StartY     float64     `yaml:"start_y" json:"start_y"`
	Trajectory [][]float64 `yaml:"trajectory" json:"trajectory"`
}

// HandoverConfig holds the handover policy of a scenario.
type HandoverConfig struct {
	Enabled    *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Threshold  *int     `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Hysteresis *int     `yaml:"hysteresis,omitempty" json:"hysteresis,omitempty"`
	Mode       string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	SwitchWait *float64 `yaml:"switch_wait,omitempty" json:"switch_wait,omitempty"`
	SettleWait *float64 `yaml:"settle_wait,omitempty" json:"settle_wait,omitempty"`
}

// Defaults of the optional handover and pause settings.
const (
	DefaultThreshold  = -65
	DefaultWait       = 2.0
	DefaultSwitchWait = 1.0
	DefaultSettleWait = 2.0
)

func orInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func orFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// ThresholdDBm returns the candidate threshold; unset means -65 dBm.
func (h HandoverConfig) ThresholdDBm() int { return orInt(h.Threshold, DefaultThreshold) }

// SwitchWaitSeconds returns the pause between detach and attach.
func (h HandoverConfig) SwitchWaitSeconds() float64 {
	return orFloat(h.SwitchWait, DefaultSwitchWait)
}

// SettleWaitSeconds returns the pause after attaching.
func (h HandoverConfig) SettleWaitSeconds() float64 {
	return orFloat(h.SettleWait, DefaultSettleWait)
}

// HysteresisDB returns the hysteresis margin; unset means 5 dB.
func (h HandoverConfig) HysteresisDB() int { return orInt(h.Hysteresis, 5) }

// IsEnabled reports whether handover is enabled; unset means enabled.
func (h HandoverConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// MobilityConfig holds how stations advance between waypoints.
type MobilityConfig struct {
	Kind             string  `yaml:"kind" json:"kind"`
	Speed            float64 `yaml:"speed" json:"speed"`
	SamplingInterval float64 `yaml:"sampling_interval" json:"sampling_interval"`
	Jitter           float64 `yaml:"jitter,omitempty" json:"jitter,omitempty"`
	Seed             int64   `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// ProbeConfig selects and tunes the measurement backend.
type ProbeConfig struct {
	Backend          string            `yaml:"backend,omitempty" json:"backend,omitempty"`
	Targets          []string          `yaml:"targets,omitempty" json:"targets,omitempty"`
	PingTimeout      float64           `yaml:"ping_timeout,omitempty" json:"ping_timeout,omitempty"`
	Throughput       bool              `yaml:"throughput,omitempty" json:"throughput,omitempty"`
	ThroughputServer string            `yaml:"throughput_server,omitempty" json:"throughput_server,omitempty"`
	Interfaces       map[string]string `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
	Prefix           map[string]string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	SerialPort       string            `yaml:"serial_port,omitempty" json:"serial_port,omitempty"`
	NoiseDB          float64           `yaml:"noise_db,omitempty" json:"noise_db,omitempty"`
	Seed             int64             `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// ExportConfig controls end-of-run files.
type ExportConfig struct {
	Dir      string  `yaml:"dir,omitempty" json:"dir,omitempty"`
	AnomalyK float64 `yaml:"anomaly_k,omitempty" json:"anomaly_k,omitempty"`
}

// RemoteConfig describes the companion device reached over SSH.
type RemoteConfig struct {
	Host            string  `yaml:"host" json:"host"`
	Port            int     `yaml:"port,omitempty" json:"port,omitempty"`
	User            string  `yaml:"user" json:"user"`
	Password        string  `yaml:"password,omitempty" json:"-"`
	KeyFile         string  `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	WorkDir         string  `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
	ConnectTimeout  float64 `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"`
	CommandTimeout  float64 `yaml:"command_timeout,omitempty" json:"command_timeout,omitempty"`
	TransferTimeout float64 `yaml:"transfer_timeout,omitempty" json:"transfer_timeout,omitempty"`
	KeepAlive       float64 `yaml:"keep_alive,omitempty" json:"keep_alive,omitempty"`
}

// MQTTConfig enables live publishing of samples and events.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	ClientID string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	Topic    string `yaml:"topic,omitempty" json:"topic,omitempty"`
	QoS      int    `yaml:"qos,omitempty" json:"qos,omitempty"`
}

// Scenario is the root configuration of a mobility experiment.
type Scenario struct {
	Name     string         `yaml:"name,omitempty" json:"name,omitempty"`
	SSID     string         `yaml:"ssid,omitempty" json:"ssid,omitempty"`
	Channel  int            `yaml:"channel,omitempty" json:"channel,omitempty"`
	Wait     *float64       `yaml:"wait,omitempty" json:"wait,omitempty"`
	Handover HandoverConfig `yaml:"handover,omitempty" json:"handover"`
	Mobility MobilityConfig `yaml:"mobility,omitempty" json:"mobility"`
	Probe    ProbeConfig    `yaml:"probe,omitempty" json:"probe"`
	Export   ExportConfig   `yaml:"export,omitempty" json:"export"`
	APs      []AP           `yaml:"aps" json:"aps"`
	Stations []Station      `yaml:"stations" json:"stations"`
	Remote   *RemoteConfig  `yaml:"remote,omitempty" json:"remote,omitempty"`
	MQTT     *MQTTConfig    `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`

	// Flat mobility keys used by older scenario files.
	LegacyMobilityType     string  `yaml:"mobility_type,omitempty" json:"-"`
	LegacyMobilitySpeed    float64 `yaml:"mobility_speed,omitempty" json:"-"`
	LegacySamplingInterval float64 `yaml:"sampling_interval,omitempty" json:"-"`
}

// Load reads a YAML or JSON scenario, validates it against a CUE schema when
// cueSchemaPath is set, and applies defaults and environment overrides.
func Load(configPath, cueSchemaPath string) (*Scenario, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, data, cueSchemaPath); err != nil {
			return nil, err
		}
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	sc.ApplyEnv(os.Getenv)
	return sc, nil
}

// Parse decodes scenario bytes, applies defaults and validates structure.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

// WaitSeconds returns the pause at each discrete waypoint.
func (s *Scenario) WaitSeconds() float64 { return orFloat(s.Wait, DefaultWait) }

// ApplyDefaults fills unset fields with the testbed defaults.
func (s *Scenario) ApplyDefaults() {
	if s.SSID == "" {
		s.SSID = "meshNet"
	}
	if s.Channel == 0 {
		s.Channel = 1
	}
	if s.Wait == nil {
		s.Wait = floatPtr(DefaultWait)
	}
	if s.Handover.Threshold == nil {
		s.Handover.Threshold = intPtr(DefaultThreshold)
	}
	if s.Handover.Mode == "" {
		s.Handover.Mode = "threshold"
	}
	if s.Handover.SwitchWait == nil {
		s.Handover.SwitchWait = floatPtr(DefaultSwitchWait)
	}
	if s.Handover.SettleWait == nil {
		s.Handover.SettleWait = floatPtr(DefaultSettleWait)
	}
	if s.Mobility.Kind == "" {
		s.Mobility.Kind = s.LegacyMobilityType
	}
	if s.Mobility.Speed == 0 {
		s.Mobility.Speed = s.LegacyMobilitySpeed
	}
	if s.Mobility.SamplingInterval == 0 {
		s.Mobility.SamplingInterval = s.LegacySamplingInterval
	}
	if s.Mobility.Kind == "" {
		s.Mobility.Kind = MobilityDiscrete
	}
	if s.Mobility.Speed == 0 {
		s.Mobility.Speed = 2.0
	}
	if s.Mobility.SamplingInterval == 0 {
		s.Mobility.SamplingInterval = 1.0
	}
	if s.Mobility.Jitter == 0 {
		s.Mobility.Jitter = 2.0
	}
	if s.Probe.Backend == "" {
		s.Probe.Backend = BackendEmulated
	}
	if len(s.Probe.Targets) == 0 {
		s.Probe.Targets = []string{"10.0.0.1", "8.8.8.8"}
	}
	if s.Probe.PingTimeout == 0 {
		s.Probe.PingTimeout = 2
	}
	if s.Export.Dir == "" {
		s.Export.Dir = "results"
	}
	if s.Export.AnomalyK == 0 {
		s.Export.AnomalyK = 2.0
	}
	for i := range s.APs {
		if s.APs[i].SSID == "" {
			s.APs[i].SSID = s.APs[i].Name
		}
		if s.APs[i].Channel == 0 {
			s.APs[i].Channel = s.Channel
		}
	}
	if r := s.Remote; r != nil {
		if r.Port == 0 {
			r.Port = 22
		}
		if r.WorkDir == "" {
			r.WorkDir = "/home/" + r.User
		}
		if r.ConnectTimeout == 0 {
			r.ConnectTimeout = 10
		}
		if r.CommandTimeout == 0 {
			r.CommandTimeout = 30
		}
		if r.KeepAlive == 0 {
			r.KeepAlive = 60
		}
	}
	if m := s.MQTT; m != nil {
		if m.Port == 0 {
			m.Port = 1883
		}
		if m.ClientID == "" {
			m.ClientID = "handover-sim"
		}
		if m.Topic == "" {
			m.Topic = "handover-sim"
		}
	}
}

// Validate checks scenario-wide structure. Per-station problems such as an
// empty trajectory are left to the driver so sibling stations still run.
func (s *Scenario) Validate() error {
	if len(s.APs) == 0 {
		return fmt.Errorf("scenario: at least one access point is required")
	}
	seen := make(map[string]bool)
	for _, ap := range s.APs {
		if ap.Name == "" {
			return fmt.Errorf("scenario: access point without name")
		}
		if seen[ap.Name] {
			return fmt.Errorf("scenario: duplicate access point %q", ap.Name)
		}
		seen[ap.Name] = true
	}
	names := make(map[string]bool)
	for _, st := range s.Stations {
		if st.Name == "" {
			return fmt.Errorf("scenario: station without name")
		}
		if names[st.Name] {
			return fmt.Errorf("scenario: duplicate station %q", st.Name)
		}
		names[st.Name] = true
	}
	switch s.Mobility.Kind {
	case MobilityDiscrete, MobilityContinuous, MobilityRandomWalk:
	default:
		return fmt.Errorf("scenario: unknown mobility kind %q", s.Mobility.Kind)
	}
	switch s.Handover.Mode {
	case "threshold", "relative":
	default:
		return fmt.Errorf("scenario: unknown handover mode %q", s.Handover.Mode)
	}
	switch s.Probe.Backend {
	case BackendEmulated, BackendShell, BackendRemote:
	default:
		return fmt.Errorf("scenario: unknown probe backend %q", s.Probe.Backend)
	}
	return nil
}

// ApplyEnv overrides remote device settings from REMOTE_HOST, REMOTE_PORT,
// REMOTE_USER, REMOTE_PASSWORD and REMOTE_KEY.
func (s *Scenario) ApplyEnv(getenv func(string) string) {
	host := getenv("REMOTE_HOST")
	if host == "" && s.Remote == nil {
		return
	}
	if s.Remote == nil {
		s.Remote = &RemoteConfig{}
	}
	r := s.Remote
	if host != "" {
		r.Host = host
	}
	if v := getenv("REMOTE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			r.Port = p
		}
	}
	if v := getenv("REMOTE_USER"); v != "" {
		r.User = v
	}
	if v := getenv("REMOTE_PASSWORD"); v != "" {
		r.Password = v
	}
	if v := getenv("REMOTE_KEY"); v != "" {
		r.KeyFile = v
	}
	if r.Port == 0 {
		r.Port = 22
	}
	if r.WorkDir == "" && r.User != "" {
		r.WorkDir = "/home/" + r.User
	}
	if r.ConnectTimeout == 0 {
		r.ConnectTimeout = 10
	}
	if r.CommandTimeout == 0 {
		r.CommandTimeout = 30
	}
	if r.KeepAlive == 0 {
		r.KeepAlive = 60
	}
}
