package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/killallgit/dataset-importer/pkg/config"
)

// Level is a log severity, ordered
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelTags = []struct {
	tag   []byte
	level Level
}{
	{[]byte("[DEBUG]"), LevelDebug},
	{[]byte("[INFO]"), LevelInfo},
	{[]byte("[WARN]"), LevelWarn},
	{[]byte("[ERROR]"), LevelError},
}

// ParseLevel maps a level name to a Level, defaulting to info
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LevelWriter drops lines tagged below its minimum level. Untagged lines
// always pass through.
type LevelWriter struct {
	out io.Writer
	min Level
}

// NewLevelWriter wraps out with a level filter
func NewLevelWriter(out io.Writer, min Level) *LevelWriter {
	return &LevelWriter{out: out, min: min}
}

func (w *LevelWriter) Write(p []byte) (int, error) {
	if lvl, ok := tagLevel(p); ok && lvl < w.min {
		return len(p), nil
	}
	return w.out.Write(p)
}

func tagLevel(line []byte) (Level, bool) {
	idx := bytes.IndexByte(line, '[')
	if idx < 0 {
		return 0, false
	}
	rest := line[idx:]
	for _, t := range levelTags {
		if bytes.HasPrefix(rest, t.tag) {
			return t.level, true
		}
	}
	return 0, false
}

// Setup routes the standard logger according to cfg. The returned function
// closes the rotating file, if any.
func Setup(cfg config.LoggingConfig) (func() error, error) {
	var (
		writers []io.Writer
		closer  = func() error { return nil }
	)

	output := strings.ToLower(cfg.Output)
	if output == "" {
		output = "stdout"
	}

	if output == "stdout" || output == "both" {
		writers = append(writers, os.Stdout)
	}
	if output == "file" || output == "both" {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("logging output %q requires a file path", output)
		}
		if dir := filepath.Dir(cfg.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		file := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, file)
		closer = file.Close
	}
	if len(writers) == 0 {
		return nil, fmt.Errorf("unknown logging output %q", cfg.Output)
	}

	log.SetOutput(NewLevelWriter(io.MultiWriter(writers...), ParseLevel(cfg.Level)))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return closer, nil
}
