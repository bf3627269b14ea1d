// Package transport owns playback state and drives the external playback
// engine.
//
// The [Coordinator] is a state machine over play state, loop region, marker
// and return mode. Callers issue commands (toggle, stop, seek, load, loop)
// which translate into engine command vectors; the engine answers with an
// asynchronous event stream (position, idle, length, shutdown) that a single
// goroutine folds back into the state machine. Both directions go through
// the coordinator's lock, so a position update can never interleave with a
// concurrent load.
//
// Engine command failures are logged and leave the state machine in its last
// consistent state. After the engine shuts down every command returns
// [shared.ErrEngineShutdown].
package transport

import (
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/shared"
	"github.com/desertthunder/audition/internal/store"
	"golang.org/x/time/rate"
)

// PlayState enumerates the coordinator's primary states.
type PlayState int

const (
	Stopped PlayState = iota
	Playing
	Paused
)

func (s PlayState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// DefaultLoadOffset is the forward compensation, in seconds, added to
// non-zero start positions to absorb the engine's startup latency.
const DefaultLoadOffset = 0.05

// statusRate caps position-driven status fan-out per second. State changes
// bypass the limiter.
const statusRate = 30

// Status is a snapshot of transport state for display consumers.
type Status struct {
	Track         *models.Track // nil when nothing is loaded
	State         PlayState
	Position      float64
	Length        float64 // engine-reported duration, 0 until known
	LoopStart     float64 // 0 when no loop start is marked
	LoopStop      float64 // 0 when no loop stop is marked
	Marker        float64 // 0 when no marker is set
	ReturnToStart bool
	EngineDown    bool
}

// StatusListener receives transport snapshots. Listeners run on the
// coordinator's goroutines and must not block or call back into the
// coordinator.
type StatusListener func(Status)

// Library receives measured-field updates for the track the coordinator is
// playing. [store.Store] satisfies this; the store is the single writer for
// track fields, so length reports are routed through it rather than written
// to the shared record directly.
type Library interface {
	SetLength(h store.Handle, secs float64)
}

// Options configures a Coordinator.
type Options struct {
	SeekStep   float64 // Seconds per relative seek; defaults to 1
	LoadOffset float64 // Startup compensation; defaults to DefaultLoadOffset
	Library    Library // Optional sink for engine-reported track lengths
	Logger     *log.Logger
}

// Coordinator drives the playback engine and owns transport state. Use
// [New]; the zero value is not usable.
type Coordinator struct {
	store.NopListener

	logger  *log.Logger
	engine  Engine
	library Library
	limiter *rate.Limiter

	seekStep   float64
	loadOffset float64

	mu            sync.Mutex
	current       *models.Track // non-owning: cleared when the store removes the track
	currentHandle store.Handle
	state         PlayState
	position      float64
	length        float64
	loopStart     float64
	loopStop      float64
	marker        float64
	returnToStart bool
	down          bool
	listeners     []StatusListener

	done chan struct{}
}

// New creates a Coordinator over the given engine, subscribes to the
// properties it needs, and starts the event intake goroutine.
func New(engine Engine, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.SeekStep <= 0 {
		opts.SeekStep = 1
	}
	if opts.LoadOffset <= 0 {
		opts.LoadOffset = DefaultLoadOffset
	}

	c := &Coordinator{
		logger:     opts.Logger.With("component", "transport"),
		engine:     engine,
		library:    opts.Library,
		limiter:    rate.NewLimiter(rate.Limit(statusRate), 1),
		seekStep:   opts.SeekStep,
		loadOffset: opts.LoadOffset,
		done:       make(chan struct{}),
	}

	for _, prop := range []string{PropTimePos, PropCoreIdle, PropLength} {
		if err := engine.ObserveProperty(prop); err != nil {
			c.logger.Warn("property observation failed", "property", prop, "err", err)
		}
	}

	go c.intake()
	return c
}

// AddStatusListener registers a status listener. Register during
// composition, before events start flowing.
func (c *Coordinator) AddStatusListener(l StatusListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Close terminates the engine and waits for the event intake goroutine to
// observe the shutdown.
func (c *Coordinator) Close() {
	c.engine.Terminate()
	<-c.done
}

// Toggle flips between Playing and Paused. The state itself follows from
// the engine's core-idle event, not from the command.
func (c *Coordinator) Toggle() error {
	return c.command("cycle", "pause")
}

// Stop halts playback and clears the current track. Only an explicit stop
// clears the track; pausing keeps it.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return shared.ErrEngineShutdown
	}
	issuePause := c.state == Playing
	c.current = nil
	c.currentHandle = store.NoHandle
	c.state = Stopped
	c.position = 0
	c.length = 0
	c.mu.Unlock()

	if issuePause {
		if err := c.engine.Command("cycle", "pause"); err != nil {
			c.logger.Warn("engine command failed", "cmd", "cycle pause", "err", err)
		}
	}
	c.notify(false)
	return nil
}

// Seek moves the playback position by delta seconds.
func (c *Coordinator) Seek(delta float64) error {
	return c.command("seek", secs(delta))
}

// SeekForward and SeekBackward move by the configured seek step.
func (c *Coordinator) SeekForward() error  { return c.Seek(c.seekStep) }
func (c *Coordinator) SeekBackward() error { return c.Seek(-c.seekStep) }

// SeekTo jumps to an absolute position, clamped to [0, length] when the
// track length is known. The engine call is asynchronous.
func (c *Coordinator) SeekTo(position float64) error {
	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return shared.ErrEngineShutdown
	}
	if position < 0 {
		position = 0
	}
	if c.length > 0 && position > c.length {
		position = c.length
	}
	c.mu.Unlock()

	if err := c.engine.CommandAsync("seek", secs(position), "absolute+keyframes"); err != nil {
		c.logger.Warn("engine command failed", "cmd", "seek absolute", "err", err)
		return shared.ErrEngineCommand
	}
	return nil
}

// Load replaces the engine's current file with track, starting at start
// seconds. Negative starts clamp to 0; non-zero starts get the configured
// forward compensation added. The coordinator records a non-owning
// reference to the track.
func (c *Coordinator) Load(track *models.Track, h store.Handle, start float64) error {
	if track == nil {
		return shared.ErrInvalidInput
	}

	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return shared.ErrEngineShutdown
	}
	if start < 0 {
		start = 0
	}
	if start > 0 {
		start += c.loadOffset
	}
	c.current = track
	c.currentHandle = h
	c.position = start
	// Unknown until the engine reports it for the new file.
	c.length = 0
	c.mu.Unlock()

	// strconv always renders the decimal point as '.' regardless of locale,
	// which the engine requires.
	if err := c.engine.CommandAsync("loadfile", track.Path, "replace", "start="+secs(start)); err != nil {
		c.logger.Warn("engine command failed", "cmd", "loadfile", "err", err)
		c.notify(false)
		return shared.ErrEngineCommand
	}
	c.notify(false)
	return nil
}

// MarkLoop advances the loop cycle using the current position: no loop ->
// loop start armed -> loop region set -> cleared. Each call issues one
// ab-loop toggle to the engine regardless of the transition taken.
func (c *Coordinator) MarkLoop() error {
	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return shared.ErrEngineShutdown
	}
	switch {
	case c.loopStart != 0 && c.loopStop != 0:
		c.loopStart = 0
		c.loopStop = 0
	case c.loopStart != 0:
		c.loopStop = c.position
	default:
		c.loopStop = 0
		c.loopStart = c.position
	}
	c.mu.Unlock()

	if err := c.engine.Command("ab-loop"); err != nil {
		c.logger.Warn("engine command failed", "cmd", "ab-loop", "err", err)
	}
	c.notify(false)
	return nil
}

// SetMarker records the current position as the resume marker.
func (c *Coordinator) SetMarker() {
	c.mu.Lock()
	c.marker = c.position
	c.mu.Unlock()
	c.notify(false)
}

// ToggleReturnMode flips return-to-start semantics. Marker precedence: while
// a marker is set the toggle only clears the marker and leaves the return
// flag untouched; with no marker it flips the flag. Clearing a marker never
// implicitly enables return mode.
func (c *Coordinator) ToggleReturnMode() {
	c.mu.Lock()
	if c.marker != 0 {
		c.marker = 0
	} else {
		c.returnToStart = !c.returnToStart
	}
	c.mu.Unlock()
	c.notify(false)
}

// Current returns the non-owning reference to the loaded track, or nil.
func (c *Coordinator) Current() *models.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Snapshot returns the current transport status.
func (c *Coordinator) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// SelectionChanged implements [store.Listener]: selecting a track loads it,
// resuming at the marker when set, at the last known position when return
// mode is off, and at the start otherwise. A cleared selection stops
// playback.
func (c *Coordinator) SelectionChanged(h store.Handle, track *models.Track) {
	if track == nil {
		if err := c.Stop(); err != nil {
			c.logger.Warn("stop on empty selection failed", "err", err)
		}
		return
	}

	c.mu.Lock()
	var start float64
	switch {
	case c.marker != 0:
		start = c.marker
	case !c.returnToStart:
		start = c.position
	}
	c.mu.Unlock()

	if err := c.Load(track, h, start); err != nil {
		c.logger.Warn("load on selection failed", "path", track.Path, "err", err)
	}
}

// TrackRemoved implements [store.Listener]: removal of the playing track
// invalidates the coordinator's reference so the record can be disposed of.
func (c *Coordinator) TrackRemoved(h store.Handle, _ *models.Track) {
	c.mu.Lock()
	if c.currentHandle != h {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.currentHandle = store.NoHandle
	c.length = 0
	c.mu.Unlock()
	c.notify(false)
}

// command dispatches a synchronous engine command with the shutdown guard
// and failure logging shared by the simple transport commands.
func (c *Coordinator) command(args ...string) error {
	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return shared.ErrEngineShutdown
	}
	c.mu.Unlock()

	if err := c.engine.Command(args...); err != nil {
		c.logger.Warn("engine command failed", "cmd", args[0], "err", err)
		return shared.ErrEngineCommand
	}
	return nil
}

// intake consumes engine events one at a time, in order. It is the only
// goroutine that folds engine state into the coordinator.
func (c *Coordinator) intake() {
	defer close(c.done)
	for ev := range c.engine.Events() {
		switch ev := ev.(type) {
		case PositionChanged:
			c.mu.Lock()
			c.position = ev.Value
			c.mu.Unlock()
			c.notify(true)
		case IdleChanged:
			c.mu.Lock()
			if c.current == nil {
				// Nothing loaded: idle flapping must not leave Stopped.
				c.mu.Unlock()
				continue
			}
			if ev.Idle {
				c.state = Paused
			} else {
				c.state = Playing
			}
			c.mu.Unlock()
			c.notify(false)
		case LengthChanged:
			c.mu.Lock()
			h := c.currentHandle
			if h == store.NoHandle {
				// The track may have been unloaded before the report landed.
				c.mu.Unlock()
				continue
			}
			c.length = ev.Value
			c.mu.Unlock()
			if c.library != nil {
				c.library.SetLength(h, ev.Value)
			}
			c.notify(false)
		case Shutdown:
			c.mu.Lock()
			c.down = true
			c.state = Stopped
			c.mu.Unlock()
			c.logger.Info("engine shut down")
			c.notify(false)
			return
		}
	}
}

// notify fans a status snapshot out to listeners. Position-driven updates
// are throttled; everything else passes through.
func (c *Coordinator) notify(throttled bool) {
	if throttled && !c.limiter.Allow() {
		return
	}
	c.mu.Lock()
	status := c.statusLocked()
	listeners := c.listeners
	c.mu.Unlock()

	for _, l := range listeners {
		l(status)
	}
}

func (c *Coordinator) statusLocked() Status {
	return Status{
		Track:         c.current,
		State:         c.state,
		Position:      c.position,
		Length:        c.length,
		LoopStart:     c.loopStart,
		LoopStop:      c.loopStop,
		Marker:        c.marker,
		ReturnToStart: c.returnToStart,
		EngineDown:    c.down,
	}
}

// secs renders a seconds value for an engine command argument. FormatFloat
// never uses a locale-dependent separator.
func secs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
