package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Ingestion errors
	ErrNotAudio   = fmt.Errorf("not an audio file")
	ErrUnreadable = fmt.Errorf("file unreadable")
	ErrPoolClosed = fmt.Errorf("ingest pool closed")

	// Playback engine errors
	ErrEngineCommand  = fmt.Errorf("engine command failed")
	ErrEngineShutdown = fmt.Errorf("engine shut down")
	ErrNoTrackLoaded  = fmt.Errorf("no track loaded")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
