// Package storage keeps recorded lander runs on disk, one directory per run
// holding metadata.json and states.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/experiment"
)

var ErrRunNotFound = errors.New("storage: run not found")

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

var obsColumns = []string{"x", "altitude", "vx", "vy", "angle", "omega", "left_leg", "right_leg"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	EnvID     string             `json:"env_id"`
	Group     string             `json:"group,omitempty"`
	Mode      string             `json:"mode"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      *uint64            `json:"seed,omitempty"`
	Gains     []float64          `json:"gains"`
	Return    float64            `json:"return"`
	Steps     int                `json:"steps"`
	Done      bool               `json:"done"`
	Truncated bool               `json:"truncated"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Trajectory is a recorded episode: Observations has one more entry than
// Actions and Rewards.
type Trajectory struct {
	Observations []dynamo.State
	Actions      []dynamo.Action
	Rewards      []float64
}

// Save writes a recorded result and returns the new run id. meta's ID,
// Timestamp and outcome fields are filled from the result.
func (s *Store) Save(meta RunMetadata, result *experiment.Result) (string, error) {
	meta.ID = uuid.NewString()
	meta.Timestamp = time.Now().UTC()
	meta.Seed = result.Seed
	meta.Return = result.Return
	meta.Steps = result.Steps
	meta.Done = result.Done
	meta.Truncated = result.Truncated
	meta.Metrics = result.Metrics
	if meta.Mode == "" && len(result.Actions) > 0 {
		meta.Mode = result.Actions[0].Kind.String()
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := writeStates(filepath.Join(runDir, statesFile), result); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeStates(path string, result *experiment.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"step"}, obsColumns...)
	header = append(header, "a0", "a1", "reward")
	if err := w.Write(header); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i, obs := range result.Observations {
		row := []string{strconv.Itoa(i)}
		for j := 0; j < len(obsColumns); j++ {
			if j < len(obs) {
				row = append(row, format(obs[j]))
			} else {
				row = append(row, "")
			}
		}
		if i < len(result.Actions) {
			vals := result.Actions[i].Values()
			a1 := ""
			if len(vals) > 1 {
				a1 = format(vals[1])
			}
			row = append(row, format(vals[0]), a1)
		} else {
			row = append(row, "", "")
		}
		if i < len(result.Rewards) {
			row = append(row, format(result.Rewards[i]))
		} else {
			row = append(row, "")
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns all readable runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

// Resolve expands a unique id prefix to the full run id.
func (s *Store) Resolve(prefix string) (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range runs {
		if r.ID == prefix {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous run id %q", prefix)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	}
	return match, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTrajectory reads the observations, actions and rewards of a run.
func (s *Store) LoadTrajectory(runID string) (*Trajectory, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	kind, err := dynamo.ParseActionKind(meta.Mode)
	if err != nil {
		kind = dynamo.Discrete
	}

	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	traj := &Trajectory{}
	if len(records) < 2 {
		return traj, nil
	}

	nObs := len(obsColumns)
	for _, record := range records[1:] {
		if len(record) < 1+nObs {
			continue
		}
		obs := make(dynamo.State, 0, nObs)
		for _, field := range record[1 : 1+nObs] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad observation value %q", runID, field)
			}
			obs = append(obs, v)
		}
		traj.Observations = append(traj.Observations, obs)

		rest := record[1+nObs:]
		if len(rest) < 3 || rest[0] == "" {
			continue
		}
		a0, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad action value %q", runID, rest[0])
		}
		if kind == dynamo.Discrete {
			traj.Actions = append(traj.Actions, dynamo.DiscreteAction(int(a0)))
		} else {
			a1, _ := strconv.ParseFloat(rest[1], 64)
			traj.Actions = append(traj.Actions, dynamo.ContinuousAction(a0, a1))
		}
		reward, err := strconv.ParseFloat(rest[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad reward value %q", runID, rest[2])
		}
		traj.Rewards = append(traj.Rewards, reward)
	}
	return traj, nil
}
