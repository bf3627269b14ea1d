// Package engine provides an in-process playback engine backed by the beep
// audio library.
//
// [Player] implements the transport engine boundary: it interprets the
// mpv-style command vectors issued by the transport coordinator (cycle
// pause, seek, ab-loop, loadfile) and reports playback progress through the
// event stream the coordinator consumes. Decoding is chosen by file
// extension (mp3, wav, flac); the speaker is initialized once, on the first
// load.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"

	"github.com/desertthunder/audition/internal/shared"
	"github.com/desertthunder/audition/internal/transport"
)

// DefaultInterval is the position event interval used when none is configured.
const DefaultInterval = 200 * time.Millisecond

// Player is a beep-backed playback engine. Use [NewPlayer]; the zero value
// is not usable.
type Player struct {
	logger   *log.Logger
	interval time.Duration
	events   chan transport.Event

	mu          sync.Mutex
	observed    map[string]bool
	streamer    beep.StreamSeekCloser
	format      beep.Format
	ctrl        *beep.Ctrl
	paused      bool
	initialized bool
	loopStart   int // sample index, -1 when unset
	loopStop    int
	terminated  bool

	finished chan struct{}
	stop     chan struct{}
	tick     sync.WaitGroup
}

// NewPlayer creates a Player emitting position events at the given interval.
func NewPlayer(interval time.Duration, logger *log.Logger) *Player {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	p := &Player{
		logger:    logger.With("component", "engine"),
		interval:  interval,
		events:    make(chan transport.Event, 64),
		observed:  make(map[string]bool),
		loopStart: -1,
		loopStop:  -1,
		finished:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	p.tick.Add(1)
	go p.run()
	return p
}

// ObserveProperty implements [transport.Engine].
func (p *Player) ObserveProperty(name string) error {
	switch name {
	case transport.PropTimePos, transport.PropCoreIdle, transport.PropLength:
		p.mu.Lock()
		p.observed[name] = true
		p.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("%w: unknown property %q", shared.ErrEngineCommand, name)
	}
}

// Command implements [transport.Engine].
func (p *Player) Command(args ...string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: empty command", shared.ErrEngineCommand)
	}

	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return shared.ErrEngineShutdown
	}
	p.mu.Unlock()

	switch args[0] {
	case "cycle":
		if len(args) == 2 && args[1] == "pause" {
			return p.togglePause()
		}
	case "seek":
		if len(args) == 2 {
			return p.seekRelative(args[1])
		}
		if len(args) == 3 && args[2] == "absolute+keyframes" {
			return p.seekAbsolute(args[1])
		}
	case "ab-loop":
		return p.cycleLoop()
	case "loadfile":
		if len(args) == 4 && args[2] == "replace" {
			return p.load(args[1], args[3])
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrEngineCommand, strings.Join(args, " "))
}

// CommandAsync implements [transport.Engine]: the command runs on its own
// goroutine and failures surface in the log rather than to the caller.
func (p *Player) CommandAsync(args ...string) error {
	go func() {
		if err := p.Command(args...); err != nil {
			p.logger.Warn("async command failed", "cmd", strings.Join(args, " "), "err", err)
		}
	}()
	return nil
}

// Events implements [transport.Engine].
func (p *Player) Events() <-chan transport.Event {
	return p.events
}

// Terminate implements [transport.Engine]: playback stops, a Shutdown event
// is delivered, and the event channel closes.
func (p *Player) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	p.unloadLocked()
	p.mu.Unlock()

	close(p.stop)
	p.tick.Wait()
	p.events <- transport.Shutdown{}
	close(p.events)
}

func (p *Player) togglePause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return fmt.Errorf("%w: cycle pause", shared.ErrNoTrackLoaded)
	}
	speaker.Lock()
	p.paused = !p.paused
	p.ctrl.Paused = p.paused
	speaker.Unlock()
	p.emitIdleLocked()
	return nil
}

func (p *Player) seekRelative(arg string) error {
	delta, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("%w: seek %q", shared.ErrEngineCommand, arg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return fmt.Errorf("%w: seek", shared.ErrNoTrackLoaded)
	}
	speaker.Lock()
	target := p.streamer.Position() + p.format.SampleRate.N(time.Duration(delta*float64(time.Second)))
	err = p.seekSampleLocked(target)
	speaker.Unlock()
	return err
}

func (p *Player) seekAbsolute(arg string) error {
	pos, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("%w: seek %q", shared.ErrEngineCommand, arg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return fmt.Errorf("%w: seek", shared.ErrNoTrackLoaded)
	}
	speaker.Lock()
	err = p.seekSampleLocked(p.format.SampleRate.N(time.Duration(pos * float64(time.Second))))
	speaker.Unlock()
	return err
}

// seekSampleLocked clamps and seeks. Callers hold both the player mutex and
// the speaker lock.
func (p *Player) seekSampleLocked(sample int) error {
	if sample < 0 {
		sample = 0
	}
	if max := p.streamer.Len() - 1; sample > max {
		sample = max
	}
	if err := p.streamer.Seek(sample); err != nil {
		return fmt.Errorf("%w: seek: %v", shared.ErrEngineCommand, err)
	}
	return nil
}

// cycleLoop mirrors the engine's ab-loop toggle: first call marks the loop
// start at the current position, the second marks the stop, the third
// clears the region.
func (p *Player) cycleLoop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return fmt.Errorf("%w: ab-loop", shared.ErrNoTrackLoaded)
	}
	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()

	switch {
	case p.loopStart >= 0 && p.loopStop >= 0:
		p.loopStart = -1
		p.loopStop = -1
	case p.loopStart >= 0:
		p.loopStop = pos
	default:
		p.loopStop = -1
		p.loopStart = pos
	}
	return nil
}

func (p *Player) load(uri, startArg string) error {
	start, err := strconv.ParseFloat(strings.TrimPrefix(startArg, "start="), 64)
	if err != nil {
		return fmt.Errorf("%w: loadfile %q", shared.ErrEngineCommand, startArg)
	}

	f, err := os.Open(uri)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", shared.ErrEngineCommand, uri, err)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch strings.ToLower(filepath.Ext(uri)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	default:
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: decode %s: %v", shared.ErrEngineCommand, uri, err)
	}

	p.mu.Lock()
	p.unloadLocked()

	if !p.initialized {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/5)); err != nil {
			p.mu.Unlock()
			streamer.Close()
			return fmt.Errorf("%w: speaker init: %v", shared.ErrEngineCommand, err)
		}
		p.initialized = true
	}

	p.streamer = streamer
	p.format = format
	p.loopStart = -1
	p.loopStop = -1
	p.paused = false
	p.ctrl = &beep.Ctrl{Streamer: streamer}

	if start > 0 {
		speaker.Lock()
		if err := p.seekSampleLocked(format.SampleRate.N(time.Duration(start * float64(time.Second)))); err != nil {
			p.logger.Warn("start seek failed", "uri", uri, "err", err)
		}
		speaker.Unlock()
	}

	// Stream callbacks run with the speaker mutex held, and every command
	// path takes p.mu before the speaker mutex. Taking p.mu here would
	// invert that order, so the callback only signals; run() folds the
	// completion into player state.
	speaker.Play(beep.Seq(p.ctrl, beep.Callback(p.signalFinished)))

	length := format.SampleRate.D(streamer.Len()).Seconds()
	if p.observed[transport.PropLength] {
		p.emit(transport.LengthChanged{Value: length})
	}
	p.emitIdleLocked()
	p.mu.Unlock()
	return nil
}

// unloadLocked tears down the active stream. Callers hold the mutex.
func (p *Player) unloadLocked() {
	if p.ctrl != nil {
		speaker.Clear()
		p.ctrl = nil
	}
	if p.streamer != nil {
		p.streamer.Close()
		p.streamer = nil
	}
	p.paused = false
}

// run emits position events and enforces the loop region.
func (p *Player) run() {
	defer p.tick.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-p.finished:
			p.mu.Lock()
			p.paused = true
			p.emitIdleLocked()
			p.mu.Unlock()
		case <-ticker.C:
			p.mu.Lock()
			if p.streamer == nil || p.paused {
				p.mu.Unlock()
				continue
			}
			speaker.Lock()
			pos := p.streamer.Position()
			if p.loopStart >= 0 && p.loopStop > p.loopStart && pos >= p.loopStop {
				if err := p.streamer.Seek(p.loopStart); err == nil {
					pos = p.loopStart
				}
			}
			speaker.Unlock()
			observed := p.observed[transport.PropTimePos]
			secs := p.format.SampleRate.D(pos).Seconds()
			p.mu.Unlock()

			if observed {
				p.emit(transport.PositionChanged{Value: secs})
			}
		}
	}
}

// signalFinished marks end of stream without blocking and without taking
// any lock; it is safe to call from a speaker callback.
func (p *Player) signalFinished() {
	select {
	case p.finished <- struct{}{}:
	default:
	}
}

// emitIdleLocked reports the core-idle flag. Callers hold the mutex.
func (p *Player) emitIdleLocked() {
	if p.observed[transport.PropCoreIdle] {
		p.emit(transport.IdleChanged{Idle: p.paused})
	}
}

// emit sends without blocking: a stalled consumer drops progress events
// rather than wedging playback.
func (p *Player) emit(ev transport.Event) {
	select {
	case p.events <- ev:
	default:
	}
}
