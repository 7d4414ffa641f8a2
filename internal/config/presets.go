package config

// Presets are the built-in environment groups. Numeric values are given as
// strings in some groups, as they are in hand-written config files.
var Presets = Groups{
	"Echelon 0 - calm": {
		KeyID:         DefaultEnvID,
		KeyRenderMode: nil,
		KeyContinuous: true,
		KeyGravity:    "-10.0",
		KeyEnableWind: false,
		KeyIntegrator: "rk4",
	},
	"Echelon 1 - discrete": {
		KeyID:         DefaultEnvID,
		KeyRenderMode: nil,
		KeyContinuous: false,
		KeyGravity:    "-10.0",
		KeyEnableWind: false,
	},
	"Echelon 2 - wind": {
		KeyID:              DefaultEnvID,
		KeyRenderMode:      nil,
		KeyContinuous:      true,
		KeyGravity:         "-10.0",
		KeyEnableWind:      true,
		KeyWindPower:       "15.0",
		KeyTurbulencePower: "1.5",
	},
	"Echelon 3 - low gravity": {
		KeyID:              "LunarLanderContinuous-v2",
		KeyRenderMode:      nil,
		KeyGravity:         "-5.0",
		KeyEnableWind:      true,
		KeyWindPower:       "5.0",
		KeyTurbulencePower: "0.5",
		KeyMaxEpisodeSteps: "600",
	},
}

// ListPresets returns the built-in group names in sorted order.
func ListPresets() []string {
	return Presets.Names()
}
