// Package store owns the ordered track collection at the heart of the
// playlist engine.
//
// A [Store] holds tracks in playback order, maintains a running minimum of
// the per-track loudness measure, and tracks a single selected entry.
// Entries are addressed by opaque handles so that asynchronous operations
// (background ingestion, drag reordering) can name a row without holding a
// pointer into the sequence; a [Position] captured against a row that has
// since disappeared degrades to append instead of failing.
//
// The store follows a single-writer discipline: every mutating method takes
// the store lock, and completions from ingest workers are serialized through
// the pool's dispatcher before they reach [Store.Insert]. Change
// notifications fire after the lock is released, strictly one-directional:
// listeners must not call back into the store from a notification.
package store

import (
	"container/list"
	"iter"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/shared"
)

// Handle identifies an entry in the store. Handles stay valid until the
// entry is removed and are never reused.
type Handle string

// NoHandle is the zero Handle, held when nothing is selected.
const NoHandle Handle = ""

// NoTracks is the loudness aggregate sentinel reported by an empty store.
const NoTracks = 0.0

// Listener receives change notifications from the store. Notifications are
// delivered on the goroutine that performed the mutation, after the store
// lock has been released. Implementations must not mutate the store in
// response.
type Listener interface {
	TrackAdded(h Handle, track *models.Track)
	TrackRemoved(h Handle, track *models.Track)
	TrackMoved(h Handle, track *models.Track)
	TrackUpdated(h Handle, track *models.Track)
	SelectionChanged(h Handle, track *models.Track) // h == NoHandle when nothing is selected
}

// NopListener is a Listener with empty method bodies, intended for
// embedding by listeners that care about a subset of events.
type NopListener struct{}

func (NopListener) TrackAdded(Handle, *models.Track)       {}
func (NopListener) TrackRemoved(Handle, *models.Track)     {}
func (NopListener) TrackMoved(Handle, *models.Track)       {}
func (NopListener) TrackUpdated(Handle, *models.Track)     {}
func (NopListener) SelectionChanged(Handle, *models.Track) {}

type entry struct {
	handle Handle
	track  *models.Track
}

// Entry pairs a handle with a copy of its track for snapshot consumers
// (list views). The copy is taken under the store lock, so reading it never
// races with a later measured-field update.
type Entry struct {
	Handle Handle
	Track  models.Track
}

// Store is the ordered track collection. The zero value is not usable; use [New].
type Store struct {
	mu          sync.Mutex
	logger      *log.Logger
	seq         *list.List               // of *entry, in playback order
	index       map[Handle]*list.Element // handle -> element, O(1) anchor lookup
	minLoudness float64
	selected    Handle
	listeners   []Listener
}

// New creates an empty Store.
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Store{
		logger:      logger.With("component", "store"),
		seq:         list.New(),
		index:       make(map[Handle]*list.Element),
		minLoudness: NoTracks,
	}
}

// AddListener registers a change listener. Not safe to call concurrently
// with mutations; register listeners during composition.
func (s *Store) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Insert places track at the resolved position and returns its handle.
// A stale anchor degrades to append. Inserting a nil track is a silent
// no-op, reported as NoHandle.
func (s *Store) Insert(track *models.Track, pos Position) Handle {
	if track == nil {
		return NoHandle
	}

	s.mu.Lock()
	e := &entry{handle: Handle(shared.GenerateID()), track: track}

	mark, before := s.resolve(pos)
	var elem *list.Element
	switch {
	case mark == nil:
		elem = s.seq.PushBack(e)
	case before:
		elem = s.seq.InsertBefore(e, mark)
	default:
		elem = s.seq.InsertAfter(e, mark)
	}
	s.index[e.handle] = elem

	// Insertion only needs a pairwise compare; the full scan is reserved
	// for removals that invalidate the cached minimum.
	if s.seq.Len() == 1 || track.Loudness < s.minLoudness {
		s.minLoudness = track.Loudness
	}
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.TrackAdded(e.handle, track)
	}
	return e.handle
}

// Move relocates an existing entry to the resolved position, preserving all
// other relative orderings. A stale handle is logged and ignored; a stale
// anchor degrades to append.
func (s *Store) Move(h Handle, pos Position) {
	s.mu.Lock()
	elem, ok := s.index[h]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("move of unknown entry ignored", "handle", h)
		return
	}

	mark, before := s.resolve(pos)
	switch {
	case mark == nil:
		s.seq.MoveToBack(elem)
	case mark == elem:
		// Moving relative to itself is a no-op.
	case before:
		s.seq.MoveBefore(elem, mark)
	default:
		s.seq.MoveAfter(elem, mark)
	}
	e := elem.Value.(*entry)
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.TrackMoved(h, e.track)
	}
}

// Remove detaches the entry and returns its track, transferring ownership to
// the caller. Removing the selected entry auto-advances the selection to the
// following entry (or the preceding one at the tail); when the store empties
// the selection becomes NoHandle. Returns nil for a stale handle.
func (s *Store) Remove(h Handle) *models.Track {
	s.mu.Lock()
	elem, ok := s.index[h]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("remove of unknown entry ignored", "handle", h)
		return nil
	}

	var successor Handle
	advance := s.selected == h
	if advance {
		if next := elem.Next(); next != nil {
			successor = next.Value.(*entry).handle
		} else if prev := elem.Prev(); prev != nil {
			successor = prev.Value.(*entry).handle
		}
	}

	e := s.seq.Remove(elem).(*entry)
	delete(s.index, h)

	switch {
	case s.seq.Len() == 0:
		s.minLoudness = NoTracks
	case e.track.Loudness == s.minLoudness:
		// The cached minimum may have belonged to the removed entry; the
		// true minimum can only be found by scanning the survivors.
		s.minLoudness = s.scanMinLocked()
	}

	var selTrack *models.Track
	if advance {
		s.selected = successor
		if successor != NoHandle {
			selTrack = s.index[successor].Value.(*entry).track
		}
	}
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.TrackRemoved(h, e.track)
	}
	if advance {
		for _, l := range s.listeners {
			l.SelectionChanged(successor, selTrack)
		}
	}
	return e.track
}

// Select marks the entry as the current selection and notifies listeners.
// Selecting a stale handle is logged and ignored; re-selecting the current
// entry does not re-fire the notification.
func (s *Store) Select(h Handle) {
	s.mu.Lock()
	elem, ok := s.index[h]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("select of unknown entry ignored", "handle", h)
		return
	}
	if s.selected == h {
		s.mu.Unlock()
		return
	}
	s.selected = h
	track := elem.Value.(*entry).track
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.SelectionChanged(h, track)
	}
}

// Selected returns the handle and track of the current selection, or
// (NoHandle, nil) when nothing is selected.
func (s *Store) Selected() (Handle, *models.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == NoHandle {
		return NoHandle, nil
	}
	return s.selected, s.index[s.selected].Value.(*entry).track
}

// Get returns the track for a handle, or nil when the handle is stale.
func (s *Store) Get(h Handle) *models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.index[h]; ok {
		return elem.Value.(*entry).track
	}
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq.Len()
}

// MinLoudness returns the running loudness aggregate: the minimum loudness
// over all current entries, or [NoTracks] when the store is empty.
func (s *Store) MinLoudness() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLoudness
}

// All returns a lazy, restartable iterator over tracks in playback order.
// Iteration assumes the single-writer discipline: it is stable under
// concurrent reads but must not straddle a concurrent mutation.
func (s *Store) All() iter.Seq[*models.Track] {
	return func(yield func(*models.Track) bool) {
		for elem := s.seq.Front(); elem != nil; elem = elem.Next() {
			if !yield(elem.Value.(*entry).track) {
				return
			}
		}
	}
}

// Entries returns a snapshot of the sequence for display consumers.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, s.seq.Len())
	for elem := s.seq.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)
		out = append(out, Entry{Handle: e.handle, Track: *e.track})
	}
	return out
}

// SetLength records the engine-reported duration for an entry. Measured
// fields change only through the store so readers of a snapshot never race
// with the update. A stale handle is ignored; the track may have been
// removed before the engine reported.
func (s *Store) SetLength(h Handle, secs float64) {
	s.mu.Lock()
	elem, ok := s.index[h]
	if !ok {
		s.mu.Unlock()
		return
	}
	e := elem.Value.(*entry)
	e.track.Length = secs
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.TrackUpdated(h, e.track)
	}
}

// resolve maps a Position onto a mark element. A nil mark means append.
// Boundary tie-break: "before" is honored only when the anchor is the first
// entry; elsewhere an equivalent slot is expressed as "after" the
// predecessor. Callers hold the lock.
func (s *Store) resolve(pos Position) (mark *list.Element, before bool) {
	if pos.rel == relAppend {
		return nil, false
	}
	anchor, ok := s.index[pos.anchor]
	if !ok {
		// Stale anchor: the row was removed or never existed. Degrade to
		// append so the record still lands in the list.
		return nil, false
	}
	switch pos.rel {
	case relBefore:
		if anchor.Prev() == nil {
			return anchor, true
		}
		return anchor.Prev(), false
	default:
		return anchor, false
	}
}

// scanMinLocked recomputes the loudness minimum over all entries. Callers
// hold the lock and guarantee the store is non-empty.
func (s *Store) scanMinLocked() float64 {
	min := s.seq.Front().Value.(*entry).track.Loudness
	for elem := s.seq.Front().Next(); elem != nil; elem = elem.Next() {
		if l := elem.Value.(*entry).track.Loudness; l < min {
			min = l
		}
	}
	return min
}
