package logflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// JSONLStorage appends entries to date-named JSONL files. The target file is
// chosen from each entry's own timestamp, so a day boundary rotates even when
// entries are drained late.
type JSONLStorage struct {
	cfg JSONLConfig

	mu   sync.Mutex
	file *os.File
	path string
	date string
	size int64
}

// NewJSONLStorage creates a store. Files are opened lazily on first write.
func NewJSONLStorage(cfg JSONLConfig) *JSONLStorage {
	if cfg.Path == "" {
		cfg.Path = DefaultLogPath
	}
	return &JSONLStorage{cfg: cfg}
}

// ExpandPath substitutes {date} and a leading ~ in a log path template.
func ExpandPath(tmpl, date string) string {
	p := strings.ReplaceAll(tmpl, "{date}", date)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Dir returns the directory the store writes into.
func (s *JSONLStorage) Dir() string {
	return filepath.Dir(ExpandPath(s.cfg.Path, "0000-00-00"))
}

// Write implements Sink.
func (s *JSONLStorage) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := e.Timestamp.Format("2006-01-02")
	if s.file != nil && s.shouldRotate(date) {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	if s.file == nil {
		if err := s.open(date); err != nil {
			return err
		}
	}

	line, err := e.JSONL()
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	n, err := s.file.Write(append(line, '\n'))
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONLStorage) shouldRotate(date string) bool {
	if date != s.date {
		return true
	}
	if s.cfg.Rotation == RotateSize {
		if limit := s.cfg.maxBytes(); limit > 0 && s.size >= limit {
			return true
		}
	}
	return false
}

// rotate closes the current file. A file that reached the size limit is
// renamed aside to <name>.<n>.jsonl so the next write starts a fresh one.
func (s *JSONLStorage) rotate() error {
	full := s.cfg.Rotation == RotateSize && s.cfg.maxBytes() > 0 && s.size >= s.cfg.maxBytes()
	path := s.path
	if err := s.closeFile(); err != nil {
		return err
	}
	if !full {
		return nil
	}
	aside, err := asidePath(path, os.Stat)
	if err != nil {
		return fmt.Errorf("rotate %s: %w", path, err)
	}
	if err := os.Rename(path, aside); err != nil {
		return fmt.Errorf("rotate %s: %w", path, err)
	}
	return nil
}

// asidePath returns the first unused <name>.<n>.jsonl next to path.
func asidePath(path string, stat func(string) (fs.FileInfo, error)) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		aside := fmt.Sprintf("%s.%d%s", base, n, ext)
		_, err := stat(aside)
		if errors.Is(err, fs.ErrNotExist) {
			return aside, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (s *JSONLStorage) open(date string) error {
	path := ExpandPath(s.cfg.Path, date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	s.file, s.path, s.date, s.size = f, path, date, info.Size()
	return nil
}

func (s *JSONLStorage) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.date, s.size = nil, "", 0
	return err
}

// Close implements Sink.
func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFile()
}
