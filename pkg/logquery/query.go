// Package logquery reads, filters and tails the JSONL files written by the
// logging pipeline.
package logquery

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

// SlowThreshold is the duration at or above which an entry counts as slow.
const SlowThreshold = time.Second

// DefaultMaxLineSize bounds a single JSONL line. Hook inputs can carry whole
// file contents. Longer lines are skipped with a warning.
const DefaultMaxLineSize = 16 * 1024 * 1024

// Filter selects log entries. Zero-valued fields match everything; set
// fields are combined with AND.
type Filter struct {
	Level      logflow.Level
	HooksOnly  bool
	ErrorsOnly bool
	Slow       bool
	Session    string
	Handler    string
	EventType  string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Match reports whether e passes every condition in f. Limit is not
// considered.
func (f Filter) Match(e logflow.Entry) bool {
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.HooksOnly && !e.Level.IsHook() {
		return false
	}
	if f.ErrorsOnly && e.Level != logflow.LevelError && e.Error == "" {
		return false
	}
	if f.Slow && (e.DurationMS == nil || e.Duration() < SlowThreshold) {
		return false
	}
	if f.Session != "" && e.SessionID != f.Session {
		return false
	}
	if f.Handler != "" && e.HandlerName != f.Handler {
		return false
	}
	if f.EventType != "" && e.HookName != f.EventType {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Option configures reading and following.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	now       func() time.Time
	poll      time.Duration
	fromStart bool
	maxLine   int
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now, poll: DefaultPollInterval, maxLine: DefaultMaxLineSize}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithLogger reports malformed lines and watcher problems to l.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now when deciding which file is today's.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPollInterval sets how often Follow checks the file when no watcher
// event arrives.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}

// WithMaxLineSize sets the longest line ReadEntries decodes.
func WithMaxLineSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLine = n
		}
	}
}

// FromStart makes Follow emit the entries already in today's file before
// tailing it.
func FromStart() Option {
	return func(o *options) { o.fromStart = true }
}

// LogFiles lists the JSONL files in dir dated within the last days days,
// counting today as the first, newest first. A file's date is taken from the
// first ten characters of its name, so rotated files such as
// 2024-05-01.1.jsonl are included. A missing directory yields no files.
func LogFiles(dir string, days int, now time.Time) ([]string, error) {
	if days < 1 {
		days = 1
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))

	var names []string
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".jsonl") || len(name) < len(time.DateOnly) {
			continue
		}
		date, err := time.ParseInLocation(time.DateOnly, name[:len(time.DateOnly)], now.Location())
		if err != nil || date.Before(cutoff) {
			continue
		}
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		di, dj := names[i][:len(time.DateOnly)], names[j][:len(time.DateOnly)]
		if di != dj {
			return di > dj
		}
		return rotation(names[i]) > rotation(names[j])
	})

	files := make([]string, len(names))
	for i, n := range names {
		files[i] = filepath.Join(dir, n)
	}
	return files, nil
}

// rotation ranks files of one day: the active <date>.jsonl is the newest,
// then rotated <date>.<n>.jsonl files from the highest n down.
func rotation(name string) int {
	mid := strings.TrimSuffix(name[len(time.DateOnly):], ".jsonl")
	if mid == "" {
		return math.MaxInt
	}
	n, err := strconv.Atoi(strings.TrimPrefix(mid, "."))
	if err != nil {
		return -1
	}
	return n
}

// ReadEntries decodes files in order and returns the entries that pass f,
// stopping once f.Limit entries are collected. Lines that are not valid
// entries are skipped with a warning.
func ReadEntries(files []string, f Filter, opts ...Option) ([]logflow.Entry, error) {
	o := newOptions(opts)
	var out []logflow.Entry
	for _, path := range files {
		done, err := readFile(path, f, o, &out)
		if err != nil {
			return out, err
		}
		if done {
			break
		}
	}
	return out, nil
}

func readFile(path string, f Filter, o options, out *[]logflow.Entry) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	r := bufio.NewReaderSize(file, 64*1024)
	lineNo := 0
	for {
		line, size, err := readLine(r, o.maxLine)
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read %s: %w", path, err)
		}
		if size == 0 && errors.Is(err, io.EOF) {
			return false, nil
		}
		lineNo++
		if line == nil {
			o.logger.Warn("skipping oversized log entry",
				zap.String("file", path), zap.Int("line", lineNo), zap.Int("bytes", size), zap.Int("limit", o.maxLine))
		} else if e, ok := decodeLine(line, o.logger, path, lineNo); ok && f.Match(e) {
			*out = append(*out, e)
			if f.Limit > 0 && len(*out) >= f.Limit {
				return true, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
	}
}

// readLine returns the next line without its terminator and the number of
// bytes consumed. A line longer than max is consumed and returned as nil.
// io.EOF accompanies the final line when the file does not end in a newline.
func readLine(r *bufio.Reader, max int) ([]byte, int, error) {
	var buf []byte
	size := 0
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		size += len(chunk)
		if !oversized {
			if len(buf)+len(chunk) > max+2 {
				oversized, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, size, err
		}
		if oversized {
			return nil, size, err
		}
		line := bytes.TrimRight(buf, "\r\n")
		if len(line) > max {
			return nil, size, err
		}
		if line == nil {
			line = []byte{}
		}
		return line, size, err
	}
}

// decodeLine parses one line. Blank lines are ignored silently.
func decodeLine(line []byte, logger *zap.Logger, path string, lineNo int) (logflow.Entry, bool) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return logflow.Entry{}, false
	}
	e, err := logflow.ParseEntry(line)
	if err == nil && !e.Level.Valid() {
		err = fmt.Errorf("unknown level %q", e.Level)
	}
	if err != nil {
		logger.Warn("skipping malformed log entry",
			zap.String("file", path), zap.Int("line", lineNo), zap.Error(err))
		return logflow.Entry{}, false
	}
	return e, true
}

// Sort orders entries by timestamp, oldest first unless desc is set.
// Entries with equal timestamps keep their relative order.
func Sort(entries []logflow.Entry, desc bool) {
	slices.SortStableFunc(entries, func(a, b logflow.Entry) int {
		if desc {
			return b.Timestamp.Compare(a.Timestamp)
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
}
