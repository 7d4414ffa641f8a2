// Package env provides the simulated environments the controller flies.
//
// Environments are created from a configuration group with [Make]. Every
// environment owns its simulation state and must be closed after use;
// instances are not safe for concurrent use.
package env

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/san-kum/pdlander/internal/config"
	"github.com/san-kum/pdlander/internal/dynamo"
)

// ObservationKind tells consumers what Reset and Step observe.
type ObservationKind int

const (
	PhysicalState ObservationKind = iota
	RawImage
)

func (k ObservationKind) String() string {
	switch k {
	case PhysicalState:
		return "physical_state"
	case RawImage:
		return "raw_image"
	default:
		return fmt.Sprintf("ObservationKind(%d)", int(k))
	}
}

// Info carries diagnostic values alongside an observation.
type Info map[string]any

// StepResult is the outcome of one environment step.
type StepResult struct {
	Observation dynamo.State
	Reward      float64
	Done        bool
	Truncated   bool
	Info        Info
}

// Terminal reports whether the episode ended.
func (r StepResult) Terminal() bool {
	return r.Done || r.Truncated
}

// ActionSpace describes and samples the actions an environment accepts.
type ActionSpace interface {
	Kind() dynamo.ActionKind
	Sample() dynamo.Action
	Contains(a dynamo.Action) bool
	Seed(seed uint64)
}

// Environment is a resettable episodic simulation.
type Environment interface {
	// Reset starts a new episode. A nil seed draws a fresh one.
	Reset(seed *uint64) (dynamo.State, Info, error)
	Step(a dynamo.Action) (StepResult, error)
	Render() (image.Image, error)
	ActionSpace() ActionSpace
	ObservationKind() ObservationKind
	Close() error
}

// Factory builds an environment from a coerced configuration.
type Factory func(cfg config.EnvConfig) (Environment, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a factory available to Make under id. Registering the same
// id twice replaces the earlier factory.
func Register(id string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = f
}

// Registered returns the registered ids in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Make fills in defaults, coerces numeric strings and builds the environment
// registered under the config's id.
func Make(cfg config.EnvConfig) (Environment, error) {
	cfg = cfg.WithDefaults().Coerced()
	id := cfg.ID()

	registryMu.RLock()
	f, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownEnvironment, id)
	}
	return f(cfg)
}

func init() {
	Register("LunarLander-v2", newLunarLanderFromConfig(false))
	Register("LunarLander-v3", newLunarLanderFromConfig(false))
	Register("LunarLanderContinuous-v2", newLunarLanderFromConfig(true))
}
