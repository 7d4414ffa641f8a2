package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Recognised environment parameter keys.
const (
	KeyID              = "id"
	KeyRenderMode      = "render_mode"
	KeyContinuous      = "continuous"
	KeyGravity         = "gravity"
	KeyEnableWind      = "enable_wind"
	KeyWindPower       = "wind_power"
	KeyTurbulencePower = "turbulence_power"
	KeyMaxEpisodeSteps = "max_episode_steps"
	KeyIntegrator      = "integrator"
)

const (
	DefaultEnvID = "LunarLander-v2"

	RenderNone  = ""
	RenderHuman = "human"
	RenderRGB   = "rgb_array"
)

// EnvConfig is a named set of environment parameters.
type EnvConfig map[string]any

// Groups maps a configuration group name to its environment parameters.
type Groups map[string]EnvConfig

// LoadGroups reads environment groups from a YAML or JSON file.
func LoadGroups(path string) (Groups, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var groups Groups
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return groups, nil
}

// Names returns the group names in sorted order.
func (g Groups) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Find returns the group named exactly name, or else the first group (in
// sorted order) whose name starts with name.
func (g Groups) Find(name string) (EnvConfig, string, error) {
	if env, ok := g[name]; ok {
		return env.Clone(), name, nil
	}
	for _, key := range g.Names() {
		if strings.HasPrefix(key, name) {
			return g[key].Clone(), key, nil
		}
	}
	return nil, "", fmt.Errorf("unknown config group: %s (available: %v)", name, g.Names())
}

func (c EnvConfig) Clone() EnvConfig {
	out := make(EnvConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// WithDefaults returns a copy with render_mode and id filled in.
func (c EnvConfig) WithDefaults() EnvConfig {
	out := c.Clone()
	if _, ok := out[KeyRenderMode]; !ok {
		out[KeyRenderMode] = nil
	}
	if _, ok := out[KeyID]; !ok {
		out[KeyID] = DefaultEnvID
	}
	return out
}

// Coerced returns a copy where every string value that parses as a number
// is replaced by its float64. id and render_mode are left untouched.
func (c EnvConfig) Coerced() EnvConfig {
	out := c.Clone()
	for k, v := range out {
		if k == KeyID || k == KeyRenderMode {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			out[k] = f
		}
	}
	return out
}

func (c EnvConfig) ID() string {
	if s, ok := c[KeyID].(string); ok && s != "" {
		return s
	}
	return DefaultEnvID
}

// RenderMode normalises the render mode; nil, "" and "None" mean no rendering.
func (c EnvConfig) RenderMode() string {
	s, ok := c[KeyRenderMode].(string)
	if !ok {
		return RenderNone
	}
	switch strings.ToLower(s) {
	case "", "none", "null":
		return RenderNone
	}
	return s
}

// WithRenderMode returns a copy with render_mode set.
func (c EnvConfig) WithRenderMode(mode string) EnvConfig {
	out := c.Clone()
	if mode == RenderNone {
		out[KeyRenderMode] = nil
	} else {
		out[KeyRenderMode] = mode
	}
	return out
}

// Float reads a numeric parameter, accepting ints, floats and numeric strings.
func (c EnvConfig) Float(key string, def float64) (float64, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// Bool reads a boolean parameter, accepting bools, numbers and strings.
func (c EnvConfig) Bool(key string, def bool) (bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%s: %q is not a boolean", key, b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func (c EnvConfig) String(key, def string) string {
	if s, ok := c[key].(string); ok && s != "" {
		return s
	}
	return def
}
