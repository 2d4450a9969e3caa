package client

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// videoExtensions lists the container formats the scanner picks up.
var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".avi":  {},
	".mkv":  {},
	".mov":  {},
	".wmv":  {},
	".flv":  {},
	".m4v":  {},
	".webm": {},
}

// ScanVideos walks root recursively and returns video files that do not yet
// have a sibling .srt subtitle. Results are sorted for deterministic order.
func ScanVideos(root string) ([]string, error) {
	var videos []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := videoExtensions[ext]; !ok {
			return nil
		}
		if hasSubtitle(path) {
			return nil
		}
		videos = append(videos, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(videos)
	return videos, nil
}

// SubtitlePath returns the sibling .srt path for a video file.
func SubtitlePath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".srt"
}

// hasSubtitle checks for an existing subtitle next to the video. Filenames
// are compared in NFC form because network shares written by macOS clients
// store names decomposed, which breaks a plain path probe.
func hasSubtitle(videoPath string) bool {
	target := SubtitlePath(videoPath)
	if _, err := os.Stat(target); err == nil {
		return true
	}

	entries, err := os.ReadDir(filepath.Dir(videoPath))
	if err != nil {
		return false
	}
	want := norm.NFC.String(filepath.Base(target))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if norm.NFC.String(entry.Name()) == want {
			return true
		}
	}
	return false
}
