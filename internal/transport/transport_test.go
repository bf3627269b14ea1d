package transport_test

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/shared"
	"github.com/desertthunder/audition/internal/store"
	audtest "github.com/desertthunder/audition/internal/testing"
	"github.com/desertthunder/audition/internal/transport"
)

func newCoordinator(t *testing.T) (*transport.Coordinator, *audtest.FakeEngine) {
	t.Helper()
	engine := audtest.NewFakeEngine()
	coord := transport.New(engine, transport.Options{Logger: shared.NewLogger(io.Discard)})
	t.Cleanup(coord.Close)
	return coord, engine
}

// waitFor polls until cond holds, failing the test after a deadline. Engine
// events are folded in on the intake goroutine, so assertions that depend
// on them need to wait for it.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestNewObservesRequiredProperties(t *testing.T) {
	_, engine := newCoordinator(t)

	observed := strings.Join(engine.Observed(), ",")
	for _, prop := range []string{transport.PropTimePos, transport.PropCoreIdle, transport.PropLength} {
		if !strings.Contains(observed, prop) {
			t.Errorf("expected %s to be observed, got %s", prop, observed)
		}
	}
}

func TestToggleIssuesCyclePause(t *testing.T) {
	coord, engine := newCoordinator(t)

	if err := coord.Toggle(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	cmds := engine.Commands()
	if len(cmds) != 1 || cmds[0][0] != "cycle" || cmds[0][1] != "pause" {
		t.Errorf("expected [cycle pause], got %v", cmds)
	}
}

func TestLoadAppliesCompensationOffset(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}

	if err := coord.Load(track, "h1", 10.0); err != nil {
		t.Fatalf("load: %v", err)
	}

	cmds := engine.AsyncCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected one async command, got %v", cmds)
	}
	cmd := cmds[0]
	if cmd[0] != "loadfile" || cmd[1] != "/music/a.wav" || cmd[2] != "replace" {
		t.Fatalf("unexpected loadfile command %v", cmd)
	}

	arg := strings.TrimPrefix(cmd[3], "start=")
	if !strings.Contains(arg, ".") {
		t.Errorf("expected dot decimal separator in %q", arg)
	}
	val, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		t.Fatalf("offset %q does not parse: %v", arg, err)
	}
	if val < 10.05 {
		t.Errorf("expected compensated offset >= 10.05, got %v", val)
	}

	if coord.Current() != track {
		t.Errorf("expected current track reference to be set")
	}
}

func TestLoadClampsNegativeStart(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}

	if err := coord.Load(track, "h1", -3); err != nil {
		t.Fatalf("load: %v", err)
	}
	cmds := engine.AsyncCommands()
	if got := cmds[0][3]; got != "start=0" {
		t.Errorf("expected start=0, got %q", got)
	}
}

func TestLoadNilTrack(t *testing.T) {
	coord, _ := newCoordinator(t)
	if err := coord.Load(nil, store.NoHandle, 0); !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSeekToClampsToKnownLength(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	engine.Emit(transport.LengthChanged{Value: 100})
	waitFor(t, func() bool { return coord.Snapshot().Length == 100 })

	if err := coord.SeekTo(500); err != nil {
		t.Fatalf("seek: %v", err)
	}
	cmds := engine.AsyncCommands()
	last := cmds[len(cmds)-1]
	if last[0] != "seek" || last[1] != "100" || last[2] != "absolute+keyframes" {
		t.Errorf("expected clamped absolute seek, got %v", last)
	}

	if err := coord.SeekTo(-4); err != nil {
		t.Fatalf("seek: %v", err)
	}
	cmds = engine.AsyncCommands()
	last = cmds[len(cmds)-1]
	if last[1] != "0" {
		t.Errorf("expected clamp to 0, got %v", last)
	}
}

func TestMarkLoopCycle(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	engine.Emit(transport.PositionChanged{Value: 5})
	waitFor(t, func() bool { return coord.Snapshot().Position == 5 })

	coord.MarkLoop()
	if s := coord.Snapshot(); s.LoopStart != 5 || s.LoopStop != 0 {
		t.Fatalf("expected loop armed at 5, got start=%v stop=%v", s.LoopStart, s.LoopStop)
	}

	engine.Emit(transport.PositionChanged{Value: 9})
	waitFor(t, func() bool { return coord.Snapshot().Position == 9 })

	coord.MarkLoop()
	if s := coord.Snapshot(); s.LoopStart != 5 || s.LoopStop != 9 {
		t.Fatalf("expected loop region [5, 9], got start=%v stop=%v", s.LoopStart, s.LoopStop)
	}

	coord.MarkLoop()
	if s := coord.Snapshot(); s.LoopStart != 0 || s.LoopStop != 0 {
		t.Fatalf("expected loop cleared, got start=%v stop=%v", s.LoopStart, s.LoopStop)
	}

	// The engine toggle fires on every transition, armed or not.
	if n := engine.CommandCount("ab-loop"); n != 3 {
		t.Errorf("expected 3 ab-loop commands, got %d", n)
	}
}

func TestIdleEventsMapToPlayState(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	engine.Emit(transport.IdleChanged{Idle: false})
	waitFor(t, func() bool { return coord.Snapshot().State == transport.Playing })

	engine.Emit(transport.IdleChanged{Idle: true})
	waitFor(t, func() bool { return coord.Snapshot().State == transport.Paused })

	// Pausing never clears the loaded track; only explicit stop does.
	if coord.Current() == nil {
		t.Errorf("expected current track to survive pause")
	}
}

func TestIdleEventWithoutTrackKeepsStopped(t *testing.T) {
	coord, engine := newCoordinator(t)

	engine.Emit(transport.IdleChanged{Idle: false})
	engine.Emit(transport.PositionChanged{Value: 1})
	waitFor(t, func() bool { return coord.Snapshot().Position == 1 })

	if s := coord.Snapshot().State; s != transport.Stopped {
		t.Errorf("expected Stopped with nothing loaded, got %v", s)
	}
}

func TestLengthEventUpdatesSnapshot(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	engine.Emit(transport.LengthChanged{Value: 123.5})
	waitFor(t, func() bool { return coord.Snapshot().Length == 123.5 })

	// Loading a new file invalidates the reported length.
	coord.Load(&models.Track{Name: "b", Path: "/music/b.wav"}, "h2", 0)
	if l := coord.Snapshot().Length; l != 0 {
		t.Errorf("expected length reset on load, got %v", l)
	}
}

func TestLengthEventReachesLibrary(t *testing.T) {
	engine := audtest.NewFakeEngine()
	st := store.New(shared.NewLogger(io.Discard))
	coord := transport.New(engine, transport.Options{
		Library: st,
		Logger:  shared.NewLogger(io.Discard),
	})
	t.Cleanup(coord.Close)
	st.AddListener(coord)

	h := st.Insert(&models.Track{Name: "a", Path: "/music/a.wav"}, store.Append())
	st.Select(h)

	engine.Emit(transport.LengthChanged{Value: 321})
	// The store is the single writer for track fields; read back through a
	// snapshot rather than the shared record.
	waitFor(t, func() bool {
		entries := st.Entries()
		return len(entries) == 1 && entries[0].Track.Length == 321
	})
}

func TestLengthEventWithoutTrackIsNoOp(t *testing.T) {
	coord, engine := newCoordinator(t)

	// The track may have been unloaded before the event arrived.
	engine.Emit(transport.LengthChanged{Value: 50})
	engine.Emit(transport.PositionChanged{Value: 2})
	waitFor(t, func() bool { return coord.Snapshot().Position == 2 })
}

func TestStopClearsCurrent(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	engine.Emit(transport.IdleChanged{Idle: false})
	waitFor(t, func() bool { return coord.Snapshot().State == transport.Playing })

	if err := coord.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	s := coord.Snapshot()
	if s.State != transport.Stopped || s.Track != nil || s.Position != 0 {
		t.Errorf("expected stopped with no track, got %+v", s)
	}
}

func TestMarkerAndReturnModePrecedence(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	engine.Emit(transport.PositionChanged{Value: 30})
	waitFor(t, func() bool { return coord.Snapshot().Position == 30 })

	coord.SetMarker()
	if m := coord.Snapshot().Marker; m != 30 {
		t.Fatalf("expected marker at 30, got %v", m)
	}

	// With a marker set the toggle only clears the marker; the return flag
	// must not flip.
	coord.ToggleReturnMode()
	if s := coord.Snapshot(); s.Marker != 0 || s.ReturnToStart {
		t.Fatalf("expected marker cleared and return mode off, got %+v", s)
	}

	coord.ToggleReturnMode()
	if !coord.Snapshot().ReturnToStart {
		t.Errorf("expected return mode on with no marker set")
	}
}

func TestSelectionLoadsAtMarker(t *testing.T) {
	coord, engine := newCoordinator(t)
	first := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(first, "h1", 0)

	engine.Emit(transport.PositionChanged{Value: 20})
	waitFor(t, func() bool { return coord.Snapshot().Position == 20 })
	coord.SetMarker()

	next := &models.Track{Name: "b", Path: "/music/b.wav"}
	coord.SelectionChanged("h2", next)

	cmds := engine.AsyncCommands()
	last := cmds[len(cmds)-1]
	if last[0] != "loadfile" || last[1] != "/music/b.wav" {
		t.Fatalf("expected loadfile for b, got %v", last)
	}
	if got := last[3]; got != "start=20.05" {
		t.Errorf("expected marker resume start=20.05, got %q", got)
	}
}

func TestSelectionLoadsAtLastPositionWhenReturnOff(t *testing.T) {
	coord, engine := newCoordinator(t)
	first := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(first, "h1", 0)

	engine.Emit(transport.PositionChanged{Value: 42})
	waitFor(t, func() bool { return coord.Snapshot().Position == 42 })

	next := &models.Track{Name: "b", Path: "/music/b.wav"}
	coord.SelectionChanged("h2", next)

	cmds := engine.AsyncCommands()
	if got := cmds[len(cmds)-1][3]; got != "start=42.05" {
		t.Errorf("expected resume at last position, got %q", got)
	}
}

func TestSelectionLoadsAtStartWhenReturnOn(t *testing.T) {
	coord, engine := newCoordinator(t)
	first := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(first, "h1", 0)
	coord.ToggleReturnMode()

	engine.Emit(transport.PositionChanged{Value: 42})
	waitFor(t, func() bool { return coord.Snapshot().Position == 42 })

	next := &models.Track{Name: "b", Path: "/music/b.wav"}
	coord.SelectionChanged("h2", next)

	cmds := engine.AsyncCommands()
	if got := cmds[len(cmds)-1][3]; got != "start=0" {
		t.Errorf("expected start=0 in return mode, got %q", got)
	}
}

func TestRemovingOnlyTrackStopsPlaybackOnce(t *testing.T) {
	coord, engine := newCoordinator(t)

	st := store.New(shared.NewLogger(io.Discard))
	st.AddListener(coord)

	h := st.Insert(&models.Track{Name: "only", Path: "/music/only.wav"}, store.Append())
	st.Select(h)
	engine.Emit(transport.IdleChanged{Idle: false})
	waitFor(t, func() bool { return coord.Snapshot().State == transport.Playing })

	st.Remove(h)

	s := coord.Snapshot()
	if s.State != transport.Stopped || s.Track != nil {
		t.Fatalf("expected stopped with no track, got %+v", s)
	}
	// Stop pauses the engine exactly once.
	if n := engine.CommandCount("cycle"); n != 1 {
		t.Errorf("expected exactly one stop-induced pause, got %d", n)
	}
}

func TestTrackRemovedInvalidatesWeakReference(t *testing.T) {
	coord, _ := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	coord.TrackRemoved("other", nil)
	if coord.Current() == nil {
		t.Fatalf("removal of an unrelated track must not clear current")
	}

	coord.TrackRemoved("h1", track)
	if coord.Current() != nil {
		t.Errorf("expected current reference cleared on removal")
	}
}

func TestEngineShutdownRejectsCommands(t *testing.T) {
	coord, engine := newCoordinator(t)
	engine.Terminate()
	waitFor(t, func() bool { return coord.Snapshot().EngineDown })

	if err := coord.Toggle(); !errors.Is(err, shared.ErrEngineShutdown) {
		t.Errorf("expected ErrEngineShutdown from Toggle, got %v", err)
	}
	if err := coord.Load(&models.Track{Path: "/x"}, "h", 0); !errors.Is(err, shared.ErrEngineShutdown) {
		t.Errorf("expected ErrEngineShutdown from Load, got %v", err)
	}
	if err := coord.SeekTo(1); !errors.Is(err, shared.ErrEngineShutdown) {
		t.Errorf("expected ErrEngineShutdown from SeekTo, got %v", err)
	}
	if err := coord.Stop(); !errors.Is(err, shared.ErrEngineShutdown) {
		t.Errorf("expected ErrEngineShutdown from Stop, got %v", err)
	}
}

func TestEngineCommandFailureKeepsState(t *testing.T) {
	coord, engine := newCoordinator(t)
	track := &models.Track{Name: "a", Path: "/music/a.wav"}
	coord.Load(track, "h1", 0)

	engine.CommandErr = errors.New("engine says no")
	if err := coord.Toggle(); !errors.Is(err, shared.ErrEngineCommand) {
		t.Fatalf("expected ErrEngineCommand, got %v", err)
	}
	if coord.Current() != track {
		t.Errorf("failed command must leave state untouched")
	}
}

func TestStatusListenerReceivesSnapshots(t *testing.T) {
	engine := audtest.NewFakeEngine()
	coord := transport.New(engine, transport.Options{Logger: shared.NewLogger(io.Discard)})
	t.Cleanup(coord.Close)

	updates := make(chan transport.Status, 16)
	coord.AddStatusListener(func(s transport.Status) {
		select {
		case updates <- s:
		default:
		}
	})

	coord.Load(&models.Track{Name: "a", Path: "/music/a.wav"}, "h1", 0)

	select {
	case s := <-updates:
		if s.Track == nil || s.Track.Name != "a" {
			t.Errorf("expected status carrying the loaded track, got %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status update received")
	}
}
