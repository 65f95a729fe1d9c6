package logger

import (
	"bytes"
	"fmt"
	"os"
	"sync"
)

// LogRotator is a log file writer that caps the number of lines per file.
// When the cap is reached the file is moved to "<path>.1", replacing any
// previous backup, and a fresh file is started.
type LogRotator struct {
	file     *os.File
	path     string
	maxLines int
	lines    int
	mu       sync.Mutex
}

// NewLogRotator opens path for appending. A maxLines of zero disables rotation.
func NewLogRotator(path string, maxLines int) (*LogRotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	return &LogRotator{
		file:     file,
		path:     path,
		maxLines: maxLines,
	}, nil
}

// Write implements io.Writer. Entries are never split across files.
func (w *LogRotator) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxLines > 0 && w.lines >= w.maxLines {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.lines += bytes.Count(p[:n], []byte{'\n'})

	return n, err
}

// Sync flushes the current file.
func (w *LogRotator) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Sync()
}

// Close closes the current file.
func (w *LogRotator) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Close()
}

func (w *LogRotator) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	if err := os.Rename(w.path, w.path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.file = file
	w.lines = 0

	return nil
}
