// Package logging builds the process logger: console output plus a daily
// file under the log directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for env ("production" or anything else for
// development). With dir set, entries are also appended to dir/YYYY-MM-DD.log.
// The returned func flushes and closes the file.
func New(env, dir string) (*zap.Logger, func(), error) {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.OutputPaths = []string{"stdout"}

	logger, err := config.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	if dir == "" {
		return logger, func() { _ = logger.Sync() }, nil
	}

	file, err := newDailyFile(dir, time.Now)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	fileConfig := config.EncoderConfig
	fileConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(fileConfig), file, config.Level)

	logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
	logger.Info("=== Starting new session ===")
	return logger, func() {
		_ = logger.Sync()
		_ = file.Close()
	}, nil
}

// dailyFile appends to the file of the current day, switching files when
// the date changes
type dailyFile struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

func newDailyFile(dir string, now func() time.Time) (*dailyFile, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	d := &dailyFile{dir: dir, now: now}
	if err := d.open(now().Format("2006-01-02")); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *dailyFile) open(day string) error {
	path := filepath.Join(d.dir, day+".log")
	if !isValidLogPath(d.dir, path) {
		return fmt.Errorf("invalid log file path: %s", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600) // #nosec G304 - path is validated by isValidLogPath
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if d.f != nil {
		_ = d.f.Close()
	}
	d.f, d.day = f, day
	return nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if day := d.now().Format("2006-01-02"); day != d.day {
		if err := d.open(day); err != nil {
			return 0, err
		}
	}
	return d.f.Write(p)
}

func (d *dailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Sync()
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

// isValidLogPath checks that path stays inside the log directory
func isValidLogPath(dir, path string) bool {
	logsDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(absPath, logsDir+string(filepath.Separator))
}
