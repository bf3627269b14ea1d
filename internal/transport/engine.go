package transport

// Property names the coordinator observes on the playback engine.
const (
	PropTimePos  = "time-pos"  // double, playback position in seconds
	PropCoreIdle = "core-idle" // flag, true while the engine is not producing audio
	PropLength   = "length"    // double, track duration in seconds
)

// Engine is the boundary to the external playback engine. Implementations
// decode and play audio; the coordinator only issues mpv-style command
// vectors and consumes the event stream.
//
// Command vocabulary used by the coordinator:
//
//	cycle pause
//	seek <secs>
//	seek <pos> absolute+keyframes
//	ab-loop
//	loadfile <uri> replace start=<secs>
type Engine interface {
	// ObserveProperty subscribes to change events for a property.
	ObserveProperty(name string) error
	// Command dispatches a command synchronously.
	Command(args ...string) error
	// CommandAsync dispatches a command without waiting for completion.
	CommandAsync(args ...string) error
	// Events returns the engine's event stream. The channel closes after a
	// Shutdown event has been delivered.
	Events() <-chan Event
	// Terminate shuts the engine down; a Shutdown event follows.
	Terminate()
}

// Event is an asynchronous notification from the playback engine. Events
// must be processed in the order received, one at a time.
type Event interface {
	isEvent()
}

// PositionChanged reports the current playback position in seconds.
type PositionChanged struct {
	Value float64
}

// IdleChanged reports whether the engine core went idle (paused) or active.
type IdleChanged struct {
	Idle bool
}

// LengthChanged reports the duration of the loaded track in seconds.
type LengthChanged struct {
	Value float64
}

// Shutdown is terminal: no further events follow and subsequent commands
// will be rejected.
type Shutdown struct{}

func (PositionChanged) isEvent() {}
func (IdleChanged) isEvent()     {}
func (LengthChanged) isEvent()   {}
func (Shutdown) isEvent()        {}
