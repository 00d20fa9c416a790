// Package speech holds the narrow text-to-speech boundary. The
// resolution core never imports this package; only the CLI wires a
// Speaker in for spoken feedback.
package speech

import (
	"context"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// Speaker converts text to spoken audio.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SaySpeaker speaks through the macOS `say` command.
type SaySpeaker struct {
	log *zap.SugaredLogger
}

// NewSaySpeaker creates a SaySpeaker.
func NewSaySpeaker(log *zap.SugaredLogger) *SaySpeaker {
	return &SaySpeaker{log: log}
}

// Speak blocks until the sentence has been spoken. On non-macOS systems
// it logs the text and returns nil, so the pipeline still works without
// audio.
func (s *SaySpeaker) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if runtime.GOOS != "darwin" {
		s.log.Infow("tts unavailable, printing instead", "text", text)
		return nil
	}
	return exec.CommandContext(ctx, "say", text).Run()
}

// NullSpeaker discards everything. Used when spoken feedback is off.
type NullSpeaker struct{}

// Speak does nothing.
func (NullSpeaker) Speak(context.Context, string) error { return nil }
