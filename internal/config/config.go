package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSteps        = 2000
	DefaultTrials       = 5
	DefaultNoiseScale   = 20.0
	DefaultReportEvery  = 25
	DefaultInitialScore = -100.0
	DefaultGroup        = "Echelon 0"
	DefaultIntegrator   = "rk4"
)

// DefaultGains are the hand-tuned starting gains {KpPos, KdPos, KpAng, KdAng}.
var DefaultGains = []float64{59.44565422926854, -12.944531289628515, -35.49561212000705, 2.779539138292493}

// Config holds the tuning run settings. Environment parameters live in
// Groups and are selected by Group.
type Config struct {
	Group        string    `yaml:"group"`
	Steps        int       `yaml:"steps"`
	Trials       int       `yaml:"trials"`
	NoiseScale   float64   `yaml:"noise_scale"`
	ReportEvery  int       `yaml:"report_every"`
	InitialGains []float64 `yaml:"initial_gains"`
	InitialScore float64   `yaml:"initial_score"`
	Seed         uint64    `yaml:"seed"`
	Parallel     bool      `yaml:"parallel"`
	Integrator   string    `yaml:"integrator"`
	Groups       Groups    `yaml:"groups,omitempty"`
}

func DefaultConfig() *Config {
	gains := make([]float64, len(DefaultGains))
	copy(gains, DefaultGains)
	return &Config{
		Group:        DefaultGroup,
		Steps:        DefaultSteps,
		Trials:       DefaultTrials,
		NoiseScale:   DefaultNoiseScale,
		ReportEvery:  DefaultReportEvery,
		InitialGains: gains,
		InitialScore: DefaultInitialScore,
		Integrator:   DefaultIntegrator,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Steps)
	}
	if c.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", c.Trials)
	}
	if c.NoiseScale < 0 {
		return fmt.Errorf("noise_scale must be non-negative, got %f", c.NoiseScale)
	}
	if len(c.InitialGains) != 4 {
		return fmt.Errorf("initial_gains needs 4 values, got %d", len(c.InitialGains))
	}
	return nil
}

// EnvGroup resolves the environment parameters for c.Group, preferring
// groups declared in the file over the built-in presets.
func (c *Config) EnvGroup() (EnvConfig, error) {
	if len(c.Groups) > 0 {
		if env, _, err := c.Groups.Find(c.Group); err == nil {
			return env, nil
		}
	}
	env, _, err := Presets.Find(c.Group)
	return env, err
}
