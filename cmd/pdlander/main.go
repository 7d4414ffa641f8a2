package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/fogleman/gg"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/pdlander/internal/agent"
	"github.com/san-kum/pdlander/internal/config"
	"github.com/san-kum/pdlander/internal/control"
	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/env"
	"github.com/san-kum/pdlander/internal/experiment"
	"github.com/san-kum/pdlander/internal/optim"
	"github.com/san-kum/pdlander/internal/storage"
	"github.com/san-kum/pdlander/internal/viz"
)

var (
	dataDir     string
	verbose     bool
	configFile  string
	envFile     string
	group       string
	renderMode  string
	seed        uint64
	gains       []float64
	plot        bool
	live        bool
	save        bool
	steps       int
	trials      int
	noiseScale  float64
	reportEvery int
	parallel    bool
	frameSteps  int
	frameOut    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pdlander",
		Short:         "PD lander controller and gain tuner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".pdlander", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "fly one episode with the PD controller",
		RunE:  runEpisode,
	}
	addEnvFlags(runCmd)
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "episode seed (random if unset)")
	runCmd.Flags().Float64SliceVar(&gains, "gains", nil, "gains kp_pos,kd_pos,kp_ang,kd_ang")
	runCmd.Flags().BoolVar(&plot, "plot", false, "show the episode live in the terminal")
	runCmd.Flags().BoolVar(&save, "save", false, "store the trajectory in the data directory")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "tune the gains by random search",
		RunE:  tuneGains,
	}
	addEnvFlags(tuneCmd)
	tuneCmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "optimizer steps")
	tuneCmd.Flags().IntVar(&trials, "trials", config.DefaultTrials, "rollouts per step")
	tuneCmd.Flags().Float64Var(&noiseScale, "noise", config.DefaultNoiseScale, "noise scale (sigma at step 1)")
	tuneCmd.Flags().IntVar(&reportEvery, "report-every", config.DefaultReportEvery, "report interval in steps")
	tuneCmd.Flags().BoolVar(&parallel, "parallel", false, "run the trials of a step concurrently")
	tuneCmd.Flags().Uint64Var(&seed, "seed", 0, "seed for noise and episodes (random if unset)")
	tuneCmd.Flags().BoolVar(&plot, "plot", false, "plot the best-score history")
	tuneCmd.Flags().BoolVar(&live, "live", false, "show the final trajectory live")
	tuneCmd.Flags().BoolVar(&save, "save", false, "store the final trajectory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in environment groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Println(name)
			}
			return nil
		},
	}

	envsCmd := &cobra.Command{
		Use:   "envs",
		Short: "list registered environment ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range env.Registered() {
				fmt.Println(id)
			}
			return nil
		},
	}

	frameCmd := &cobra.Command{
		Use:   "frame",
		Short: "render a PNG frame after flying a number of steps",
		RunE:  renderFrame,
	}
	addEnvFlags(frameCmd)
	frameCmd.Flags().Uint64Var(&seed, "seed", 0, "episode seed")
	frameCmd.Flags().IntVar(&frameSteps, "after", 60, "steps to fly before rendering")
	frameCmd.Flags().StringVarP(&frameOut, "out", "o", "frame.png", "output file")

	rootCmd.AddCommand(runCmd, tuneCmd, listCmd, plotCmd, exportCmd, presetsCmd, envsCmd, frameCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addEnvFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "tuning config file (yaml)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "environment groups file (yaml or json)")
	cmd.Flags().StringVarP(&group, "group", "g", config.DefaultGroup, "environment group name or prefix")
	cmd.Flags().StringVar(&renderMode, "render", "", "render mode override (human, rgb_array)")
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewNop(), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// loadSettings merges the config file, the groups file and the flags that
// were set explicitly.
func loadSettings(cmd *cobra.Command) (*config.Config, config.EnvConfig, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if envFile != "" {
		groups, err := config.LoadGroups(envFile)
		if err != nil {
			return nil, nil, err
		}
		cfg.Groups = groups
	}

	flags := cmd.Flags()
	if flags.Changed("group") || configFile == "" {
		cfg.Group = group
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("trials") {
		cfg.Trials = trials
	}
	if flags.Changed("noise") {
		cfg.NoiseScale = noiseScale
	}
	if flags.Changed("report-every") {
		cfg.ReportEvery = reportEvery
	}
	if flags.Changed("parallel") {
		cfg.Parallel = parallel
	}
	if flags.Changed("gains") {
		cfg.InitialGains = gains
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	envCfg, err := cfg.EnvGroup()
	if err != nil {
		return nil, nil, err
	}
	if _, ok := envCfg[config.KeyIntegrator]; !ok && cfg.Integrator != "" {
		envCfg[config.KeyIntegrator] = cfg.Integrator
	}
	if flags.Changed("render") {
		envCfg = envCfg.WithRenderMode(renderMode)
	}
	return cfg, envCfg, nil
}

func newAgent(cfg *config.Config, envCfg config.EnvConfig, logger *zap.Logger) (*agent.Agent, error) {
	initial, err := control.GainsFromSlice(cfg.InitialGains)
	if err != nil {
		return nil, err
	}

	searchOpts := []optim.Option{
		optim.WithTrials(cfg.Trials),
		optim.WithNoiseScale(cfg.NoiseScale),
		optim.WithParallelTrials(cfg.Parallel),
	}
	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithState(optim.NewState(initial, cfg.InitialScore)),
		agent.WithRecording(),
	}
	if cfg.Seed != 0 {
		searchOpts = append(searchOpts, optim.WithSeed(cfg.Seed))
		opts = append(opts, agent.WithEpisodeSeed(cfg.Seed))
	}
	opts = append(opts, agent.WithSearchOptions(searchOpts...))
	return agent.New(envCfg, opts...)
}

func runEpisode(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, envCfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, envCfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var episodeSeed *uint64
	if cmd.Flags().Changed("seed") || cfg.Seed != 0 {
		episodeSeed = &cfg.Seed
	}
	res, err := a.VisualiseTrajectory(ctx, episodeSeed, plot)
	if err != nil {
		return err
	}

	fmt.Printf("Cumulative reward: %.2f\n", res.Return)
	if verbose {
		names := make([]string, 0, len(res.Metrics))
		for name := range res.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-16s %.4f\n", name, res.Metrics[name])
		}
	}
	if save {
		return saveRun(cfg, envCfg, a, res)
	}
	return nil
}

func tuneGains(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, envCfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, envCfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	history := make([]float64, 0, cfg.Steps)
	err = a.Tune(ctx, cfg.Steps, func(r optim.Report) {
		history = append(history, r.BestScore)
		if cfg.ReportEvery > 0 && r.Step%cfg.ReportEvery == 0 {
			fmt.Printf("step %5d  best score %8.2f  gains %s\n", r.Step, r.BestScore, r.Best)
		}
	})
	if err != nil {
		return err
	}

	st := a.State()
	fmt.Printf("\nBest score: %.2f\nBest gains: %s\n", st.BestScore, st.Best)
	if plot {
		fmt.Println()
		fmt.Println(viz.Plot(history, "best score", 12, 80))
	}

	res, err := a.VisualiseTrajectory(ctx, nil, live)
	if err != nil {
		return err
	}
	fmt.Printf("Cumulative reward: %.2f\n", res.Return)
	if save {
		return saveRun(cfg, envCfg, a, res)
	}
	return nil
}

func saveRun(cfg *config.Config, envCfg config.EnvConfig, a *agent.Agent, res *experiment.Result) error {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		EnvID: envCfg.WithDefaults().ID(),
		Group: cfg.Group,
		Mode:  a.Mode().String(),
		Gains: a.State().ActiveGains().Slice(),
	}, res)
	if err != nil {
		return err
	}
	fmt.Printf("saved: %s\n", runID)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENV\tMODE\tTIME\tSTEPS\tRETURN")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\n",
			run.ID[:8],
			run.EnvID,
			run.Mode,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Return,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s  return %.2f over %d steps\n\n", meta.ID, meta.EnvID, meta.Return, meta.Steps)
	fmt.Println(viz.TrajectoryPlots(traj.Observations, traj.Rewards))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func renderFrame(cmd *cobra.Command, args []string) error {
	cfg, envCfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, envCfg, zap.NewNop())
	if err != nil {
		return err
	}

	e, err := env.Make(envCfg)
	if err != nil {
		return err
	}
	defer e.Close()
	if e.ObservationKind() != env.PhysicalState {
		return fmt.Errorf("%w: %s", dynamo.ErrUnsupportedObservationKind, e.ObservationKind())
	}

	obs, _, err := e.Reset(&cfg.Seed)
	if err != nil {
		return err
	}
	for i := 0; i < frameSteps; i++ {
		act, err := a.Action(obs)
		if err != nil {
			return err
		}
		sr, err := e.Step(act)
		if err != nil {
			return err
		}
		obs = sr.Observation
		if sr.Terminal() {
			break
		}
	}

	img, err := e.Render()
	if err != nil {
		return err
	}
	if err := gg.SavePNG(frameOut, img); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", frameOut)
	return nil
}
