// Package logging builds the arbor logger used by the corpact commands.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"github.com/cognicore/corpact/pkg/corpact/config"
)

const (
	defaultTimeFormat = "15:04:05"
	defaultLogFile    = "logs/corpact.log"
	maxLogSize        = 100 * 1024 * 1024 // 100 MB
	maxLogBackups     = 3
)

// New configures a logger from cfg. Console output is used when no
// output is configured or when the log directory cannot be created.
func New(cfg config.LoggingConfig) arbor.ILogger {
	logger := arbor.NewLogger()

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}

	hasFileOutput := false
	hasStdoutOutput := false
	for _, output := range cfg.Output {
		switch output {
		case "file":
			hasFileOutput = true
		case "stdout", "console":
			hasStdoutOutput = true
		}
	}

	if hasFileOutput {
		logFile := cfg.File
		if logFile == "" {
			logFile = defaultLogFile
		}
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
			hasStdoutOutput = true
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:             models.LogWriterTypeFile,
				FileName:         logFile,
				TimeFormat:       timeFormat,
				MaxSize:          maxLogSize,
				MaxBackups:       maxLogBackups,
				TextOutput:       true,
				DisableTimestamp: false,
			})
		}
	}

	if hasStdoutOutput || !hasFileOutput {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeConsole,
			TimeFormat:       timeFormat,
			TextOutput:       true,
			DisableTimestamp: false,
		})
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}
