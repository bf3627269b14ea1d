// package formatter renders tracks and transport state for display and
// export (plain text, CSV)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/shared"
	"github.com/desertthunder/audition/internal/transport"
)

// FormatLoudness renders a loudness measure with two decimals, or a dash
// for the unmeasured placeholder.
func FormatLoudness(lufs float64) string {
	if lufs == 0 {
		return "–"
	}
	return strconv.FormatFloat(lufs, 'f', 2, 64)
}

// FormatPeak renders a peak measure with two decimals, or a dash for the
// unmeasured placeholder.
func FormatPeak(peak float64) string {
	if peak == 0 {
		return "–"
	}
	return strconv.FormatFloat(peak, 'f', 2, 64)
}

// TrackRow renders a single track as a fixed-width list row.
func TrackRow(t *models.Track) string {
	return fmt.Sprintf("%-40.40s %8s %8s %9s",
		t.Name,
		FormatLoudness(t.Loudness),
		FormatPeak(t.Peak),
		shared.FormatDuration(t.Length),
	)
}

// TrackHeader returns the column header matching [TrackRow].
func TrackHeader() string {
	return fmt.Sprintf("%-40s %8s %8s %9s", "Track", "LUFS", "Peak", "Duration")
}

// StatusLine renders the transport state as a single line.
func StatusLine(s transport.Status) string {
	name := "–"
	if s.Track != nil {
		name = s.Track.Name
	}
	line := fmt.Sprintf("[%s] %s %s", s.State, shared.FormatDuration(s.Position), name)
	if s.LoopStart != 0 || s.LoopStop != 0 {
		line += fmt.Sprintf(" loop %s-%s",
			shared.FormatDuration(s.LoopStart), shared.FormatDuration(s.LoopStop))
	}
	if s.Marker != 0 {
		line += fmt.Sprintf(" mark %s", shared.FormatDuration(s.Marker))
	}
	if s.ReturnToStart {
		line += " rtn"
	}
	if s.EngineDown {
		line += " (engine down)"
	}
	return line
}

// ExportToText renders tracks as plain text with a header row.
func ExportToText(tracks []*models.Track) []byte {
	var buf bytes.Buffer
	buf.WriteString(TrackHeader() + "\n")
	for _, t := range tracks {
		buf.WriteString(TrackRow(t) + "\n")
	}
	return buf.Bytes()
}

// ExportToCSV renders tracks as CSV with columns: Name, Path, Loudness, Peak, Duration
func ExportToCSV(tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Name", "Path", "Loudness", "Peak", "Duration"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range tracks {
		record := []string{
			t.Name,
			t.Path,
			strconv.FormatFloat(t.Loudness, 'f', 2, 64),
			strconv.FormatFloat(t.Peak, 'f', 2, 64),
			strconv.FormatFloat(t.Length, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
