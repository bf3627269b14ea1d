package ingest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/shared"
	"github.com/dhowden/tag"
)

// replayGainReference is the ReplayGain reference level in LUFS. Track gain
// is the adjustment towards the reference, so loudness = reference - gain.
const replayGainReference = -18.0

// audioExtensions is the fallback classification table for files whose
// headers are not recognized by sniffing.
var audioExtensions = map[string]bool{
	".aac":  true,
	".aiff": true,
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".wma":  true,
}

// Probe validates path and builds a [models.Track] from it.
//
// Failure modes follow the ingestion taxonomy: [shared.ErrUnreadable] when
// the path cannot be opened or queried and [shared.ErrNotAudio] when the
// content is not a recognized audio (or container) type. The display name
// prefers the embedded title tag over the file name, and ReplayGain tags,
// when present, seed the loudness and peak measures.
func Probe(path string) (*models.Track, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrUnreadable, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s: is a directory", shared.ErrNotAudio, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrUnreadable, path, err)
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := f.Read(header)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrUnreadable, path, err)
	}
	if !sniffAudio(header[:n]) && !audioExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotAudio, path)
	}

	track := models.NewTrack("", path)

	// Metadata is best-effort: a readable audio file without tags is still
	// a valid track.
	if _, err := f.Seek(0, 0); err == nil {
		if meta, err := tag.ReadFrom(f); err == nil {
			if title := strings.TrimSpace(meta.Title()); title != "" {
				track.Name = title
			}
			applyReplayGain(track, meta)
		}
	}

	return track, nil
}

// sniffAudio recognizes the magic bytes of common audio formats and
// containers.
func sniffAudio(header []byte) bool {
	if len(header) < 4 {
		return false
	}
	switch {
	case string(header[:4]) == "RIFF" && len(header) >= 12 && string(header[8:12]) == "WAVE":
		return true
	case string(header[:4]) == "FORM" && len(header) >= 12 && string(header[8:12]) == "AIFF":
		return true
	case string(header[:4]) == "fLaC":
		return true
	case string(header[:4]) == "OggS":
		return true
	case string(header[:3]) == "ID3":
		return true
	case header[0] == 0xFF && header[1]&0xE0 == 0xE0: // bare MPEG frame sync
		return true
	case len(header) >= 8 && string(header[4:8]) == "ftyp": // MP4 container
		return true
	}
	return false
}

// applyReplayGain fills loudness and peak from ReplayGain tags when present.
// Track gain converts to an absolute loudness against the ReplayGain
// reference level; track peak converts from linear amplitude to dBFS.
func applyReplayGain(track *models.Track, meta tag.Metadata) {
	for key, value := range meta.Raw() {
		text, ok := value.(string)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(strings.ToLower(key), "replaygain_track_gain"):
			if gain, err := parseGain(text); err == nil {
				track.Loudness = replayGainReference - gain
			}
		case strings.Contains(strings.ToLower(key), "replaygain_track_peak"):
			if peak, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil && peak > 0 {
				track.Peak = 20 * math.Log10(peak)
			}
		}
	}
}

func parseGain(text string) (float64, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "dB"))
	return strconv.ParseFloat(text, 64)
}
