package whisper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"murmur/internal/services"
)

// DefaultBinary is the transcription CLI invoked when none is configured.
const DefaultBinary = "whisper"

// Service invokes the external whisper CLI. The model and heavy lifting live
// entirely outside this process; the service only shells out and collects the
// subtitle file the tool writes.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a whisper service around the given binary.
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

// Binary returns the configured executable name.
func (s *Service) Binary() string {
	return s.binary
}

// Transcribe runs the CLI against audioPath with the given model and returns
// the SRT subtitle text it produced in outputDir.
func (s *Service) Transcribe(ctx context.Context, audioPath, model, outputDir string) (string, error) {
	if audioPath == "" {
		return "", services.Wrap(services.ErrValidation, "whisper", "transcribe", "audio path required", nil)
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "whisper", "transcribe", "audio file missing", err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrValidation, "whisper", "transcribe", "audio file is empty", nil)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	args := buildArgs(audioPath, model, outputDir)
	if err := s.run(ctx, s.binary, args...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "whisper", "transcribe", "", err)
	}

	srtPath := OutputPath(audioPath, outputDir)
	content, err := os.ReadFile(srtPath)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "whisper", "transcribe",
			fmt.Sprintf("expected output %s missing", srtPath), err)
	}
	return string(content), nil
}

// OutputPath returns where the CLI writes the SRT for the given input.
func OutputPath(audioPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(outputDir, base+".srt")
}

func buildArgs(audioPath, model, outputDir string) []string {
	args := []string{audioPath}
	if strings.TrimSpace(model) != "" {
		args = append(args, "--model", model)
	}
	args = append(args,
		"--output_format", "srt",
		"--output_dir", outputDir,
	)
	return args
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
