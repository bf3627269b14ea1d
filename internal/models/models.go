// Package models defines the domain entities shared across the audition engine.
//
// The central type is [Track]: a single playlist entry whose identity
// (display name and source path) is fixed at construction and whose measured
// fields (loudness, peak, length) are filled in as analysis and playback
// report them.
//
// Ownership rules:
//   - A Track is exclusively owned by the track store once inserted.
//   - The transport coordinator holds a non-owning reference to the track it
//     is playing; the reference is cleared when the track is removed.
package models

import "path/filepath"

// Track represents a single entry in the playlist.
//
// Name and Path never change after construction. Loudness, Peak and Length
// start as placeholders and are updated once analysis or the playback engine
// reports real values. Length in particular is unknown until the engine has
// loaded the file.
type Track struct {
	Name     string  // Display name, derived from the source path
	Path     string  // Canonical source locator
	Loudness float64 // Integrated loudness (LUFS), 0 until analyzed
	Peak     float64 // Sample peak (dBFS), 0 until analyzed
	Length   float64 // Duration in seconds, 0 until reported by the engine
}

// NewTrack creates a Track for the given source path. The display name
// defaults to the path's base name without extension; callers that probed
// richer metadata overwrite Name afterwards.
func NewTrack(name, path string) *Track {
	if name == "" {
		base := filepath.Base(path)
		name = base[:len(base)-len(filepath.Ext(base))]
	}
	return &Track{Name: name, Path: path}
}
