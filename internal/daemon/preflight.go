package daemon

import (
	"os/exec"

	"golang.org/x/sys/unix"

	"murmur/internal/logging"
)

// minFreeBytes is the free-space level below which a warning is logged.
// Transcription artifacts are small but uploads accumulate between sweeps.
const minFreeBytes = 1 << 30 // 1 GiB

// preflight logs actionable warnings for missing tools or tight disk space.
// Warnings only: the daemon still starts, and per-task failures surface the
// same problems with task context attached.
func (d *Daemon) preflight() {
	if _, err := exec.LookPath(d.cfg.Whisper.Binary); err != nil {
		d.logger.Warn("whisper binary not found on PATH; tasks will fail until installed",
			logging.String("binary", d.cfg.Whisper.Binary),
		)
	}

	for _, dir := range []string{d.cfg.Paths.UploadDir, d.cfg.Paths.ResultDir, d.cfg.Paths.TempDir} {
		var stat unix.Statfs_t
		if err := unix.Statfs(dir, &stat); err != nil {
			d.logger.Warn("could not check free space", logging.String("dir", dir), logging.Error(err))
			continue
		}
		free := stat.Bavail * uint64(stat.Bsize)
		if free < minFreeBytes {
			d.logger.Warn("low disk space",
				logging.String("dir", dir),
				logging.Int64("free_bytes", int64(free)),
			)
		}
	}
}
