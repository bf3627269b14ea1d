package store

// relation describes where a [Position] sits relative to its anchor.
type relation int

const (
	relAppend relation = iota
	relBefore
	relAfter
)

// Position is a token describing where in the sequence an operation should
// insert or move an entry. It is captured when an operation is requested and
// resolved when the operation is applied, which may be much later: ingestion
// runs on background workers and the anchor row may have been moved or
// removed in the meantime. A Position whose anchor no longer exists resolves
// to append-at-end rather than failing.
type Position struct {
	anchor Handle
	rel    relation
}

// Append returns a Position that resolves to the end of the sequence.
func Append() Position {
	return Position{rel: relAppend}
}

// Before returns a Position immediately preceding the entry with handle h.
func Before(h Handle) Position {
	return Position{anchor: h, rel: relBefore}
}

// After returns a Position immediately following the entry with handle h.
func After(h Handle) Position {
	return Position{anchor: h, rel: relAfter}
}

// IsAppend reports whether the position has no anchor.
func (p Position) IsAppend() bool {
	return p.rel == relAppend
}

// Anchor returns the handle the position is relative to, if any.
func (p Position) Anchor() Handle {
	return p.anchor
}
