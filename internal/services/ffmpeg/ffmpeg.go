package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"murmur/internal/services"
)

// DefaultBinary is the encoder invoked when none is configured.
const DefaultBinary = "ffmpeg"

// Service extracts transcription-ready audio from video files by shelling
// out to ffmpeg with a fixed command template: opus, mono, 16 kHz, 24 kbps.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates an ffmpeg service around the given binary.
func NewService(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Available reports whether the binary can be invoked.
func (s *Service) Available(ctx context.Context) bool {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.binary, "-version") == nil
	}
	return exec.CommandContext(ctx, s.binary, "-version").Run() == nil
}

// ExtractAudio transcodes source into the canonical payload format at dest.
// The partial output is removed on failure.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if source == "" || dest == "" {
		return services.Wrap(services.ErrValidation, "ffmpeg", "extract audio", "source and dest required", nil)
	}

	args := buildExtractArgs(source, dest)
	if err := s.run(ctx, s.binary, args...); err != nil {
		_ = os.Remove(dest)
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "extract audio", source, err)
	}

	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(dest)
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "extract audio",
			fmt.Sprintf("no output produced for %s", source), err)
	}
	return nil
}

func buildExtractArgs(source, dest string) []string {
	return []string{
		"-i", source,
		"-vn",
		"-acodec", "libopus",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "24k",
		"-y",
		dest,
	}
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
