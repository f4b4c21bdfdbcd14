package podcast

import (
	"errors"
	"fmt"

	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
)

var (
	// ErrInvalidInput marks a blank topic, blank script or malformed request.
	ErrInvalidInput = errors.New("podcast: invalid input")
	// ErrUpstreamTextGeneration marks a failure of the script generator.
	ErrUpstreamTextGeneration = errors.New("podcast: script generation failed")
	// ErrNoSegments is returned when a script yields no speaker turns.
	ErrNoSegments = errors.New("podcast: could not parse script into speaker turns")
	// ErrAssemblyFailed is matched by *AssemblyError.
	ErrAssemblyFailed = errors.New("podcast: no turn produced audio")
)

// TurnError records a turn that was skipped during assembly.
type TurnError struct {
	Index   int
	Speaker script.Speaker
	VoiceID string
	Err     error
}

func (e TurnError) Error() string {
	return fmt.Sprintf("turn %d (%s, voice %s): %v", e.Index, e.Speaker, e.VoiceID, e.Err)
}

func (e TurnError) Unwrap() error { return e.Err }

// AssemblyError is returned when every turn was skipped.
type AssemblyError struct {
	Manifest Manifest
	Failures []TurnError
}

func (e *AssemblyError) Error() string {
	msg := fmt.Sprintf("%v (%d of %d turns skipped)", ErrAssemblyFailed, e.Manifest.Skipped, e.Manifest.Total)
	if len(e.Failures) > 0 {
		msg += ": first failure: " + e.Failures[0].Error()
	}
	return msg
}

func (e *AssemblyError) Is(target error) bool { return target == ErrAssemblyFailed }
