package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/audition/internal/engine"
	"github.com/desertthunder/audition/internal/formatter"
	"github.com/desertthunder/audition/internal/ingest"
	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/shared"
	"github.com/desertthunder/audition/internal/store"
	"github.com/desertthunder/audition/internal/transport"
	"github.com/desertthunder/audition/internal/tui"
	"github.com/desertthunder/audition/internal/watcher"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		playCommand, watchCommand, probeCommand, initCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig swaps in the config named by the command's --config flag when
// the file exists.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	path := cmd.String("config")
	if path == "" {
		return r.config
	}
	if _, err := os.Stat(path); err != nil {
		return r.config
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("ignoring unreadable config", "path", path, "err", err)
		return r.config
	}
	return config
}

// assemble builds the playback graph: store, engine, coordinator, ingest
// pool and optional watch folders. The returned teardown stops the pieces
// in dependency order: watcher first, then the pool (so nothing can reach
// the store afterwards), then the coordinator.
func (r *Runner) assemble(config *shared.Config, workers int, dirs []string) (*store.Store, *transport.Coordinator, *ingest.Pool, func(), error) {
	st := store.New(r.logger)

	player := engine.NewPlayer(time.Duration(config.Player.PositionInterval)*time.Millisecond, r.logger)
	coord := transport.New(player, transport.Options{
		SeekStep:   config.Player.SeekStep,
		LoadOffset: config.Player.LoadOffset,
		Library:    st,
		Logger:     r.logger,
	})
	st.AddListener(coord)

	if workers <= 0 {
		workers = config.Ingest.Workers
	}
	pool := ingest.NewPool(st, ingest.Options{Workers: workers, Logger: r.logger})

	var watch *watcher.Watcher
	if len(dirs) > 0 {
		var err error
		watch, err = watcher.New(pool, dirs, r.logger)
		if err != nil {
			pool.Close()
			coord.Close()
			return nil, nil, nil, nil, err
		}
	}

	teardown := func() {
		if watch != nil {
			if err := watch.Close(); err != nil {
				r.logger.Warn("watcher close failed", "err", err)
			}
		}
		pool.Close()
		coord.Close()
	}
	return st, coord, pool, teardown, nil
}

// Play runs the interactive player.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	st, coord, pool, teardown, err := r.assemble(config, int(cmd.Int("workers")), config.Library.WatchDirs)
	if err != nil {
		return fmt.Errorf("failed to assemble player: %w", err)
	}
	defer teardown()

	for _, path := range cmd.Args().Slice() {
		if err := pool.Submit(path, store.Append()); err != nil {
			r.logger.Warn("submission failed", "path", path, "err", err)
		}
	}

	model := tui.New(st, coord)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

// Watch runs headless watch-folder ingestion until interrupted.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	dirs := cmd.StringSlice("dir")
	if len(dirs) == 0 {
		dirs = config.Library.WatchDirs
	}
	if len(dirs) == 0 {
		return fmt.Errorf("%w: no watch directories configured", shared.ErrMissingArgument)
	}

	st, _, _, teardown, err := r.assemble(config, 0, dirs)
	if err != nil {
		return fmt.Errorf("failed to assemble watcher: %w", err)
	}
	defer teardown()

	st.AddListener(&ingestLogger{logger: shared.WithLogger(r.logger, "component", "watch"), store: st})
	r.logger.Info("watching", "dirs", dirs)

	<-ctx.Done()
	return nil
}

// ingestLogger reports appended tracks and the running loudness aggregate.
type ingestLogger struct {
	store.NopListener
	logger *log.Logger
	store  *store.Store
}

func (l *ingestLogger) TrackAdded(_ store.Handle, track *models.Track) {
	l.logger.Info("track added",
		"name", track.Name,
		"loudness", formatter.FormatLoudness(track.Loudness),
		"min", formatter.FormatLoudness(l.store.MinLoudness()),
	)
}

// Probe validates each argument and prints the resulting track metadata.
func (r *Runner) Probe(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: no files given", shared.ErrMissingArgument)
	}

	var tracks []*models.Track
	for _, path := range paths {
		track, err := ingest.Probe(path)
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrNotAudio):
				r.logger.Warn("not an audio file", "path", path)
			case errors.Is(err, shared.ErrUnreadable):
				r.logger.Warn("unreadable", "path", path, "err", err)
			default:
				r.logger.Warn("rejected", "path", path, "err", err)
			}
			continue
		}
		tracks = append(tracks, track)
	}

	switch cmd.String("format") {
	case "csv":
		data, err := formatter.ExportToCSV(tracks)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	case "text":
		_, err := r.output.Write(formatter.ExportToText(tracks))
		return err
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, cmd.String("format"))
	}
}

// Init writes the example config to the path named by --config.
func (r *Runner) Init(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	fmt.Fprintf(r.output, "wrote %s\n", path)
	return nil
}
