package logquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

// DefaultPollInterval is the fallback wake-up period for Follow.
const DefaultPollInterval = 100 * time.Millisecond

// TodayFile returns the path of the file the pipeline writes for now's date.
func TodayFile(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format(time.DateOnly)+".jsonl")
}

// Follow tails today's log file in dir and calls fn for every new entry that
// passes f. It waits for the file to appear, starts at its current end, and
// picks up files that are rotated, replaced or truncated, including the
// switch to a new file at midnight. Follow returns nil when ctx is
// cancelled, or the first error returned by fn.
func Follow(ctx context.Context, dir string, f Filter, fn func(logflow.Entry) error, opts ...Option) error {
	o := newOptions(opts)
	t := &tailer{dir: dir, filter: f, fn: fn, opts: o}
	t.path = TodayFile(dir, o.now())
	if _, err := os.Stat(t.path); err == nil && !o.fromStart {
		t.seekEnd = true
	}
	defer t.close()

	wake := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		o.logger.Warn("file watcher unavailable, polling only", zap.Error(err))
	} else {
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			o.logger.Debug("cannot watch log dir yet", zap.String("dir", dir), zap.Error(err))
		}
		g.Go(func() error {
			watch(gctx, watcher, wake, o.logger)
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(o.poll)
		defer ticker.Stop()
		for {
			if err := t.poll(); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return nil
			case <-wake:
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

// watch turns watcher activity into non-blocking wake-ups.
func watch(ctx context.Context, w *fsnotify.Watcher, wake chan<- struct{}, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("log watcher error", zap.Error(err))
		}
	}
}

// tailer tracks the followed file between polls.
type tailer struct {
	dir    string
	filter Filter
	fn     func(logflow.Entry) error
	opts   options

	path    string
	file    *os.File
	info    os.FileInfo
	offset  int64
	partial []byte
	lineNo  int
	seekEnd bool
}

func (t *tailer) close() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}

// poll reads whatever was appended since the last call.
func (t *tailer) poll() error {
	today := TodayFile(t.dir, t.opts.now())
	if today != t.path {
		if _, err := os.Stat(today); err == nil {
			if err := t.drain(); err != nil {
				return err
			}
			t.close()
			t.path = today
			t.reset()
		}
	}

	if t.file == nil {
		ok, err := t.open()
		if !ok || err != nil {
			return err
		}
	} else if t.replaced() {
		if err := t.drain(); err != nil {
			return err
		}
		t.close()
		t.reset()
		if ok, err := t.open(); !ok || err != nil {
			return err
		}
	}
	return t.drain()
}

func (t *tailer) reset() {
	t.offset, t.partial, t.lineNo, t.seekEnd = 0, nil, 0, false
}

// open opens t.path, reporting false when it does not exist yet.
func (t *tailer) open() (bool, error) {
	file, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", t.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return false, fmt.Errorf("stat %s: %w", t.path, err)
	}
	if t.seekEnd {
		if t.offset, err = file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return false, fmt.Errorf("seek %s: %w", t.path, err)
		}
		t.seekEnd = false
	}
	t.file, t.info = file, info
	return true, nil
}

// replaced reports whether the path now names a different file, or the
// open file shrank below what was already read.
func (t *tailer) replaced() bool {
	info, err := os.Stat(t.path)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	return !os.SameFile(info, t.info) || info.Size() < t.offset
}

// drain reads the open file to EOF and emits every complete line.
func (t *tailer) drain() error {
	if t.file == nil {
		return nil
	}
	data, err := io.ReadAll(t.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", t.path, err)
	}
	t.offset += int64(len(data))
	buf := append(t.partial, data...)

	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := buf[:i]
		buf = buf[i+1:]
		t.lineNo++

		e, ok := decodeLine(line, t.opts.logger, t.path, t.lineNo)
		if !ok || !t.filter.Match(e) {
			continue
		}
		if err := t.fn(e); err != nil {
			return err
		}
	}
	t.partial = bytes.Clone(buf)
	return nil
}
