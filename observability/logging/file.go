package logging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileWriter returns a size-rotated log file. Zero limits fall back to
// 100MB per file and five backups.
func FileWriter(path string, maxSizeMB, maxBackups int) (io.WriteCloser, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("log file path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 5
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		LocalTime:  false,
		Compress:   true,
	}, nil
}
