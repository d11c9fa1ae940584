// Component logging: a single root logrus.Logger, one *logrus.Entry per
// component obtained via NewCompLogger, JSON or text formatting, optional
// rotation via lumberjack.

package threadly

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LOGGER_CONFIG_USE_JSON_DEFAULT                = false
	LOGGER_CONFIG_LEVEL_DEFAULT                   = "info"
	LOGGER_CONFIG_LOG_FILE_MAX_SIZE_MB_DEFAULT    = 10
	LOGGER_CONFIG_LOG_FILE_MAX_BACKUP_NUM_DEFAULT = 1
	LOGGER_COMPONENT_FIELD_NAME                   = "comp"
)

// LoggerConfig configures the package-wide root logger. It has no effect
// unless ApplyLoggerConfig is called; the zero-value logger logs text to
// stderr at info level.
type LoggerConfig struct {
	// Whether to structure the logged record in JSON.
	UseJSON bool `yaml:"use_json"`
	// Log level name: panic, fatal, error, warn, info, debug, trace.
	Level string `yaml:"level"`
	// Log file path, or empty for stderr.
	LogFile string `yaml:"log_file"`
	// Log file max size, in MB, before rotation; 0 selects lumberjack's
	// default of 100 MB.
	LogFileMaxSizeMB int `yaml:"log_file_max_size_mb"`
	// How many older log files to keep upon rotation.
	LogFileMaxBackupNum int `yaml:"log_file_max_backup_num"`
}

func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		UseJSON:             LOGGER_CONFIG_USE_JSON_DEFAULT,
		Level:               LOGGER_CONFIG_LEVEL_DEFAULT,
		LogFileMaxSizeMB:    LOGGER_CONFIG_LOG_FILE_MAX_SIZE_MB_DEFAULT,
		LogFileMaxBackupNum: LOGGER_CONFIG_LOG_FILE_MAX_BACKUP_NUM_DEFAULT,
	}
}

var RootLogger = logrus.New()

func init() {
	RootLogger.SetOutput(os.Stderr)
	RootLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// NewCompLogger returns a logger entry tagged with the given component name,
// for use by each package (scheduler, delay queue, rate limiter, ...).
func NewCompLogger(comp string) *logrus.Entry {
	return RootLogger.WithField(LOGGER_COMPONENT_FIELD_NAME, comp)
}

// ApplyLoggerConfig reconfigures the root logger: level, formatter and
// output destination (stderr, stdout, or a rotated file).
func ApplyLoggerConfig(cfg *LoggerConfig) error {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	if cfg.Level != "" {
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("threadly: %w: %v", ErrInvalidArgument, err)
		}
		RootLogger.SetLevel(level)
	}

	if cfg.UseJSON {
		RootLogger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		RootLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch cfg.LogFile {
	case "", "stderr":
		RootLogger.SetOutput(os.Stderr)
	case "stdout":
		RootLogger.SetOutput(os.Stdout)
	default:
		RootLogger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogFileMaxSizeMB,
			MaxBackups: cfg.LogFileMaxBackupNum,
		})
	}

	return nil
}

// uncaughtHandler receives panics/errors that have no other natural
// reporting path: listener panics fired during CallListeners, and
// exceptions from a recurring task that halt its recurrence.
var uncaughtHandler = func(err error) {
	NewCompLogger("uncaught").Error(err)
}

// SetUncaughtExceptionHandler overrides the process-wide handler. Passing
// nil restores a no-op handler.
func SetUncaughtExceptionHandler(h func(error)) {
	if h == nil {
		h = func(error) {}
	}
	uncaughtHandler = h
}

func reportUncaught(err error) {
	uncaughtHandler(err)
}
