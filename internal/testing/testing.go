// package testing contains shared testing utilities
package testing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/audition/internal/transport"
)

// FakeEngine is a test double for [transport.Engine]. It records every
// command and lets tests feed scripted events into the coordinator.
type FakeEngine struct {
	mu         sync.Mutex
	commands   [][]string
	async      [][]string
	observed   []string
	terminated bool

	// CommandErr, when set, is returned by every Command/CommandAsync call.
	CommandErr error

	events chan transport.Event
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{events: make(chan transport.Event, 64)}
}

func (f *FakeEngine) ObserveProperty(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, name)
	return nil
}

func (f *FakeEngine) Command(args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommandErr != nil {
		return f.CommandErr
	}
	f.commands = append(f.commands, args)
	return nil
}

func (f *FakeEngine) CommandAsync(args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommandErr != nil {
		return f.CommandErr
	}
	f.async = append(f.async, args)
	return nil
}

func (f *FakeEngine) Events() <-chan transport.Event {
	return f.events
}

func (f *FakeEngine) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return
	}
	f.terminated = true
	f.events <- transport.Shutdown{}
	close(f.events)
}

// Emit feeds an event to the coordinator under test.
func (f *FakeEngine) Emit(ev transport.Event) {
	f.events <- ev
}

// Commands returns a snapshot of all synchronous commands issued so far.
func (f *FakeEngine) Commands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.commands))
	copy(out, f.commands)
	return out
}

// AsyncCommands returns a snapshot of all asynchronous commands issued so far.
func (f *FakeEngine) AsyncCommands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.async))
	copy(out, f.async)
	return out
}

// CommandCount counts issued commands (sync and async) with the given verb.
func (f *FakeEngine) CommandCount(verb string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cmd := range f.commands {
		if len(cmd) > 0 && cmd[0] == verb {
			n++
		}
	}
	for _, cmd := range f.async {
		if len(cmd) > 0 && cmd[0] == verb {
			n++
		}
	}
	return n
}

// Observed returns the properties the coordinator subscribed to.
func (f *FakeEngine) Observed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.observed))
	copy(out, f.observed)
	return out
}

// wavHeader is a minimal RIFF/WAVE header, enough for content sniffing.
var wavHeader = []byte{
	'R', 'I', 'F', 'F', 0x24, 0x00, 0x00, 0x00,
	'W', 'A', 'V', 'E', 'f', 'm', 't', ' ',
}

// id3Header is a minimal ID3v2 tag header, enough for content sniffing.
var id3Header = []byte{'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// WriteWAV creates a file with a WAV signature under dir and returns its path.
func WriteWAV(t *testing.T, dir, name string) string {
	t.Helper()
	return writeFile(t, dir, name, wavHeader)
}

// WriteMP3 creates a file with an ID3 signature under dir and returns its path.
func WriteMP3(t *testing.T, dir, name string) string {
	t.Helper()
	return writeFile(t, dir, name, id3Header)
}

// WriteText creates a plain text file under dir and returns its path.
func WriteText(t *testing.T, dir, name string) string {
	t.Helper()
	return writeFile(t, dir, name, []byte("not audio at all\n"))
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}
