// Package viz draws lander episodes in the terminal.
//
// [Run] plays an episode live on a braille [Canvas] using Bubble Tea, one
// environment step per frame:
//
//	Space - Pause/Resume
//	G     - Toggle GIF recording of rendered frames
//	Q     - Quit
//
// [Plot] and [TrajectoryPlots] render recorded runs with asciigraph.
package viz
