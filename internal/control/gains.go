package control

import "fmt"

// GainSet holds the four PD gains.
type GainSet struct {
	KpPos float64
	KdPos float64
	KpAng float64
	KdAng float64
}

var defaultGains = GainSet{
	KpPos: 59.44565422926854,
	KdPos: -12.944531289628515,
	KpAng: -35.49561212000705,
	KdAng: 2.779539138292493,
}

func DefaultGains() GainSet {
	return defaultGains
}

// GainsFromSlice builds a GainSet from {KpPos, KdPos, KpAng, KdAng}.
func GainsFromSlice(v []float64) (GainSet, error) {
	if len(v) != 4 {
		return GainSet{}, fmt.Errorf("gain set needs 4 values, got %d", len(v))
	}
	return GainSet{KpPos: v[0], KdPos: v[1], KpAng: v[2], KdAng: v[3]}, nil
}

func (g GainSet) Slice() []float64 {
	return []float64{g.KpPos, g.KdPos, g.KpAng, g.KdAng}
}

// Perturbed returns g with noise[i] added to the i-th gain.
func (g GainSet) Perturbed(noise [4]float64) GainSet {
	return GainSet{
		KpPos: g.KpPos + noise[0],
		KdPos: g.KdPos + noise[1],
		KpAng: g.KpAng + noise[2],
		KdAng: g.KdAng + noise[3],
	}
}

func (g GainSet) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f %.4f]", g.KpPos, g.KdPos, g.KpAng, g.KdAng)
}

// GetParams returns the gains keyed by name for display and overrides.
func (g GainSet) GetParams() map[string]float64 {
	return map[string]float64{
		"kp_pos": g.KpPos,
		"kd_pos": g.KdPos,
		"kp_ang": g.KpAng,
		"kd_ang": g.KdAng,
	}
}

// SetParam adjusts a single gain by name.
func (g *GainSet) SetParam(name string, value float64) error {
	switch name {
	case "kp_pos":
		g.KpPos = value
	case "kd_pos":
		g.KdPos = value
	case "kp_ang":
		g.KpAng = value
	case "kd_ang":
		g.KdAng = value
	default:
		return fmt.Errorf("unknown gain: %s", name)
	}
	return nil
}
