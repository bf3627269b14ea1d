package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/audition/internal/shared"
	audtest "github.com/desertthunder/audition/internal/testing"
)

func TestProbeAcceptsWAV(t *testing.T) {
	dir := t.TempDir()
	path := audtest.WriteWAV(t, dir, "a.wav")

	track, err := Probe(path)
	if err != nil {
		t.Fatalf("expected wav to be accepted, got %v", err)
	}
	if track.Name != "a" {
		t.Errorf("expected display name derived from file, got %q", track.Name)
	}
	if track.Path != path {
		t.Errorf("expected path %q, got %q", path, track.Path)
	}
}

func TestProbeAcceptsMP3(t *testing.T) {
	dir := t.TempDir()
	path := audtest.WriteMP3(t, dir, "b.mp3")

	track, err := Probe(path)
	if err != nil {
		t.Fatalf("expected mp3 to be accepted, got %v", err)
	}
	if track.Name != "b" {
		t.Errorf("expected display name derived from file, got %q", track.Name)
	}
}

func TestProbeRejectsNonAudio(t *testing.T) {
	dir := t.TempDir()
	path := audtest.WriteText(t, dir, "c.txt")

	if _, err := Probe(path); !errors.Is(err, shared.ErrNotAudio) {
		t.Fatalf("expected ErrNotAudio, got %v", err)
	}
}

func TestProbeRejectsMissingFile(t *testing.T) {
	if _, err := Probe(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, shared.ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestProbeRejectsDirectory(t *testing.T) {
	if _, err := Probe(t.TempDir()); !errors.Is(err, shared.ErrNotAudio) {
		t.Fatalf("expected ErrNotAudio for directory, got %v", err)
	}
}

func TestProbeFallsBackToExtension(t *testing.T) {
	// Unrecognized header but an audio extension: some encoders emit bare
	// streams the sniffer does not know.
	dir := t.TempDir()
	path := filepath.Join(dir, "weird.ogg")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Probe(path); err != nil {
		t.Fatalf("expected extension fallback to accept, got %v", err)
	}
}

func TestSniffAudio(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   bool
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVE"), true},
		{"aiff", []byte("FORM\x00\x00\x00\x00AIFF"), true},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), true},
		{"ogg", []byte("OggS\x00\x02\x00\x00"), true},
		{"id3", []byte("ID3\x03\x00"), true},
		{"mpeg sync", []byte{0xFF, 0xFB, 0x90, 0x00}, true},
		{"mp4", []byte("\x00\x00\x00\x20ftypM4A "), true},
		{"text", []byte("hello world"), false},
		{"short", []byte("RI"), false},
		{"riff but not wave", []byte("RIFF\x00\x00\x00\x00AVI "), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffAudio(tt.header); got != tt.want {
				t.Errorf("sniffAudio(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestParseGain(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"-8.25 dB", -8.25, false},
		{"+2.50 dB", 2.5, false},
		{"0.00 dB", 0, false},
		{"-3.1", -3.1, false},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseGain(tt.in)
			if tt.wantErr != (err != nil) {
				t.Fatalf("parseGain(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseGain(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
