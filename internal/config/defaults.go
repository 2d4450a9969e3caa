package config

const (
	defaultUploadDir            = "~/.local/share/murmur/uploads"
	defaultResultDir            = "~/.local/share/murmur/results"
	defaultTempDir              = "~/.local/share/murmur/temp"
	defaultLogDir               = "~/.local/share/murmur/logs"
	defaultAPIBind              = "127.0.0.1:6007"
	defaultPoolMaxSize          = 5
	defaultResultRetentionHours = 24
	defaultWhisperBinary        = "whisper"
	defaultWhisperModel         = "large-v3-turbo"
	defaultFFmpegBinary         = "ffmpeg"
	defaultWorkerPollSeconds    = 1
	defaultWorkerRetrySeconds   = 5
	defaultServerURL            = "http://127.0.0.1:6007"
	defaultProcessingPollSec    = 15
	defaultPendingPollSec       = 60
	defaultPoolFullWaitSec      = 60
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir: defaultUploadDir,
			ResultDir: defaultResultDir,
			TempDir:   defaultTempDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Pool: Pool{
			MaxSize:              defaultPoolMaxSize,
			ResultRetentionHours: defaultResultRetentionHours,
		},
		Whisper: Whisper{
			Binary: defaultWhisperBinary,
			Model:  defaultWhisperModel,
		},
		FFmpeg: FFmpeg{
			Binary: defaultFFmpegBinary,
		},
		Worker: Worker{
			PollInterval:       defaultWorkerPollSeconds,
			ErrorRetryInterval: defaultWorkerRetrySeconds,
		},
		Client: Client{
			ServerURL:              defaultServerURL,
			ProcessingPollInterval: defaultProcessingPollSec,
			PendingPollInterval:    defaultPendingPollSec,
			PoolFullWaitInterval:   defaultPoolFullWaitSec,
			WaitTimeout:            0,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
