package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"murmur/internal/artifact"
	"murmur/internal/fileutil"
)

// audioFileName builds a short, filesystem-safe name for the extracted
// audio. Long or punctuation-heavy video titles would otherwise produce
// unwieldy temp paths, so the stem is sanitized and capped and a short
// unique suffix keeps concurrent runs apart.
func audioFileName(videoPath string) string {
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	runes := []rune(stem)
	if len(runes) > 20 {
		runes = runes[:20]
	}

	var b strings.Builder
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimRight(b.String(), " ")
	if safe == "" {
		safe = "audio"
	}
	return fmt.Sprintf("%s_%s.ogg", safe, uuid.NewString()[:8])
}

// packageTask wraps an extracted audio file into an encrypted container in
// workDir, returning the container path.
func packageTask(workDir, audioPath, taskID, model string) (string, error) {
	payload, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	meta := artifact.Metadata{
		TaskID:     taskID,
		Filename:   filepath.Base(audioPath),
		Password:   artifact.SharedPassword,
		Model:      model,
		SubmitTime: artifact.NewSubmitTime(),
	}
	container, err := artifact.Encode(meta, payload, artifact.SharedPassword)
	if err != nil {
		return "", fmt.Errorf("encode container: %w", err)
	}

	containerPath := filepath.Join(workDir, taskID+artifact.ContainerExt)
	if err := fileutil.WriteFileAtomic(containerPath, container, 0o600); err != nil {
		return "", fmt.Errorf("write container: %w", err)
	}
	return containerPath, nil
}
