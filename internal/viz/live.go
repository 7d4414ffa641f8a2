package viz

import (
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/env"
	"github.com/san-kum/pdlander/internal/experiment"
	"github.com/san-kum/pdlander/internal/physics"
)

const (
	width           = 80
	height          = 22
	historyCapacity = 600
	maxGIFFrames    = 500
)

// DefaultGIFPath is where recordings are written.
var DefaultGIFPath = "trajectory.gif"

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(env.FPS), func(t time.Time) tea.Msg { return TickMsg(t) })
}

// landerView is what the viewer needs to draw a lander scene.
type landerView interface {
	RawState() dynamo.State
	Terrain() *env.Terrain
	Engines() (main, side float64)
}

// Model steps an episode on every tick and draws it on a braille canvas.
type Model struct {
	episode   *experiment.Episode
	title     string
	canvas    *Canvas
	proj      projection
	geom      *physics.Lander
	running   bool
	ended     bool
	history   []float64
	last      env.StepResult
	err       error
	recording bool
	frames    []*image.Paletted
	gifPath   string
}

func NewModel(ep *experiment.Episode, title string) Model {
	c := NewCanvas(width, height)
	return Model{
		episode: ep,
		title:   title,
		canvas:  c,
		proj:    newProjection(c, env.WorldW, env.WorldH),
		geom:    physics.NewLander(),
		running: true,
		history: make([]float64, 0, historyCapacity),
		gifPath: DefaultGIFPath,
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles keys and advances the episode.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.flushGIF()
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "g":
			if m.recording {
				m.flushGIF()
			} else {
				m.recording = true
				m.frames = m.frames[:0]
			}
		}
	case TickMsg:
		if m.running && !m.episode.Finished() {
			if err := m.step(); err != nil {
				m.err = err
				m.flushGIF()
				return m, tea.Quit
			}
		}
		if m.episode.Finished() {
			m.ended = true
			m.flushGIF()
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() error {
	sr, err := m.episode.Step()
	if err != nil {
		return err
	}
	m.last = sr
	m.history = append(m.history, m.episode.Result().Return)
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
	if m.recording {
		m.captureFrame()
	}
	return nil
}

// Return is the cumulative reward so far.
func (m Model) Return() float64 {
	return m.episode.Result().Return
}

func (m Model) Err() error {
	return m.err
}

func (m Model) View() string {
	m.draw()
	canvasView := canvasStyle.Render(m.canvas.String())

	res := m.episode.Result()
	obs := m.episode.Observation()

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Step", fmt.Sprintf("%d", res.Steps))
	row("Reward", fmt.Sprintf("%+.2f", m.last.Reward))
	row("Return", fmt.Sprintf("%.2f", res.Return))
	if len(obs) == dynamo.ObservationDim {
		row("Position", fmt.Sprintf("%+.2f %+.2f", obs[dynamo.ObsX], obs[dynamo.ObsAltitude]))
		row("Velocity", fmt.Sprintf("%+.2f %+.2f", obs[dynamo.ObsVX], obs[dynamo.ObsVY]))
		row("Angle", fmt.Sprintf("%+.3f", obs[dynamo.ObsAngle]))
		row("Legs", fmt.Sprintf("%.0f %.0f", obs[dynamo.ObsLeftContact], obs[dynamo.ObsRightContact]))
	}
	if lv, ok := m.episode.Env().(landerView); ok {
		main, side := lv.Engines()
		row("Main", engineBar(main, 12))
		row("Side", engineBar(abs(side), 12))
	}
	if len(m.history) > 1 {
		s.WriteString(graphStyle.Render(Plot(m.history, "return", 4, 30)) + "\n")
	}
	if m.recording {
		s.WriteString(statusCrashed.Render(fmt.Sprintf("● REC %d", len(m.frames))) + "\n")
	}
	s.WriteString(helpStyle.Render("SP:Pause G:Record Q:Quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return statusCrashed.Render("ERROR: " + m.err.Error())
	case m.ended && m.last.Truncated:
		return statusPaused.Render("TIME LIMIT")
	case m.ended && m.last.Reward > 0:
		return statusLanded.Render("LANDED")
	case m.ended:
		return statusCrashed.Render("CRASHED")
	case !m.running:
		return statusPaused.Render("PAUSED")
	default:
		return statusRunning.Render("RUNNING")
	}
}

// draw renders terrain, helipad flags and the craft.
func (m *Model) draw() {
	m.canvas.Clear()
	lv, ok := m.episode.Env().(landerView)
	if !ok {
		return
	}

	if t := lv.Terrain(); t != nil {
		for i := 1; i < len(t.X); i++ {
			x0, y0 := m.proj.apply(t.X[i-1], t.Y[i-1])
			x1, y1 := m.proj.apply(t.X[i], t.Y[i])
			m.canvas.DrawLine(x0, y0, x1, y1)
		}
		for _, fx := range []float64{t.PadLeft, t.PadRight} {
			x0, y0 := m.proj.apply(fx, t.HelipadY)
			x1, y1 := m.proj.apply(fx, t.HelipadY+50/physics.Scale)
			m.canvas.DrawLine(x0, y0, x1, y1)
		}
	}

	x := lv.RawState()
	if len(x) < m.geom.StateDim() {
		return
	}
	hull := m.geom.Hull(x)
	pts := make([][2]int, len(hull))
	for i, p := range hull {
		px, py := m.proj.apply(p[0], p[1])
		pts[i] = [2]int{px, py}
	}
	m.canvas.DrawPolygon(pts)

	for i, foot := range m.geom.Feet(x) {
		side := float64(2*i - 1)
		ax, ay := physics.ToWorld(x, side*physics.LegAway/2, 0)
		x0, y0 := m.proj.apply(ax, ay)
		x1, y1 := m.proj.apply(foot[0], foot[1])
		m.canvas.DrawLine(x0, y0, x1, y1)
	}

	main, _ := lv.Engines()
	if main > 0 {
		bx, by := physics.ToWorld(x, 0, -10/physics.Scale)
		fx, fy := physics.ToWorld(x, 0, -10/physics.Scale-main)
		x0, y0 := m.proj.apply(bx, by)
		x1, y1 := m.proj.apply(fx, fy)
		m.canvas.DrawLine(x0, y0, x1, y1)
	}
}

// captureFrame appends the environment's rendered frame to the recording.
func (m *Model) captureFrame() {
	if len(m.frames) >= maxGIFFrames {
		return
	}
	img, err := m.episode.Env().Render()
	if err != nil || img == nil {
		return
	}
	b := img.Bounds()
	frame := image.NewPaletted(b, palette.Plan9)
	draw.FloydSteinberg.Draw(frame, b, img, b.Min)
	m.frames = append(m.frames, frame)
}

func (m *Model) flushGIF() {
	if !m.recording {
		return
	}
	m.recording = false
	if len(m.frames) == 0 {
		return
	}
	if err := writeGIF(m.gifPath, m.frames); err != nil && m.err == nil {
		m.err = err
	}
	m.frames = nil
}

func writeGIF(path string, frames []*image.Paletted) error {
	anim := gif.GIF{LoopCount: 0}
	for _, frame := range frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 2)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gif.EncodeAll(f, &anim)
}

// Run shows ep in the terminal until it ends or the user quits, and returns
// the cumulative reward collected.
func Run(ctx context.Context, ep *experiment.Episode, title string) (float64, error) {
	p := tea.NewProgram(NewModel(ep, title), tea.WithContext(ctx), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return ep.Result().Return, err
	}
	m := final.(Model)
	return m.Return(), m.Err()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
