// Package logpipeline captures an application's stdout/stderr, writes
// timestamped lines to a rotating current.log, and serves bounded tail and
// regex-search queries over the current plus archived files.
//
// The bounded drop-oldest buffer with a sentinel line is grounded on the
// teacher's internal/events/emitter.go EventEmitter: a non-blocking channel
// send with a dropped counter and a throttled notice on loss, adapted here
// from "drop newest, log occasionally" to spec.md §4.3's "drop oldest,
// always emit one coalesced sentinel line".
package logpipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

const (
	currentLogName = "current.log"
	timestampLayout = "2006-01-02T15:04:05.000Z"
	defaultRetention = 10
	bufferSize      = 4096
)

type logLine struct {
	stream string
	text   string
}

// Pipeline is the per-application singleton log pipeline described by
// spec.md §4.3. Create one with New at first spawn and reuse it across
// restarts of the same application.
type Pipeline struct {
	dir       string
	retention int

	mu          sync.Mutex
	currentFile *os.File
	lastTS      time.Time

	buf  chan logLine
	ctrl chan struct{}
	stop chan struct{}

	dropped         int64
	sentinelPending int32

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a Pipeline writing into dir (normally
// D/logs/<config_id>/<app_id>/). retention<=0 uses the spec.md default of 10.
func New(dir string, retention int) *Pipeline {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Pipeline{
		dir:       dir,
		retention: retention,
		buf:       make(chan logLine, bufferSize),
		ctrl:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

func (p *Pipeline) currentPath() string {
	return filepath.Join(p.dir, currentLogName)
}

func (p *Pipeline) archivePath(runID string) string {
	return filepath.Join(p.dir, runID+".log")
}

func (p *Pipeline) ensureStarted() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.runWriter()
	})
}

func (p *Pipeline) ensureCurrentLocked() error {
	if p.currentFile != nil {
		return nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(p.currentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open current.log: %w", err)
	}
	p.currentFile = f
	return nil
}

// Attach begins consuming stdout and stderr concurrently, writing
// timestamped lines to current.log. Each stream is drained by its own
// goroutine so a slow reader on one never stalls the other.
func (p *Pipeline) Attach(stdout, stderr readerLike) error {
	p.mu.Lock()
	err := p.ensureCurrentLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.ensureStarted()

	if stdout != nil {
		p.wg.Add(1)
		go p.consume("stdout", stdout)
	}
	if stderr != nil {
		p.wg.Add(1)
		go p.consume("stderr", stderr)
	}
	return nil
}

// readerLike is satisfied by io.Reader; named locally so callers can pass
// *os.File or any pipe without importing io just for this signature.
type readerLike interface {
	Read(p []byte) (n int, err error)
}

func (p *Pipeline) consume(stream string, r readerLike) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.enqueue(logLine{stream: stream, text: scanner.Text()})
	}
}

func (p *Pipeline) enqueue(l logLine) {
	select {
	case p.buf <- l:
		return
	default:
	}

	// Buffer full: drop the oldest queued line to make room for this one.
	select {
	case <-p.buf:
		atomic.AddInt64(&p.dropped, 1)
	default:
	}
	select {
	case p.buf <- l:
	default:
		// Lost the race to another producer; count this line as dropped too.
		atomic.AddInt64(&p.dropped, 1)
	}

	if atomic.CompareAndSwapInt32(&p.sentinelPending, 0, 1) {
		select {
		case p.ctrl <- struct{}{}:
		default:
		}
	}
}

func (p *Pipeline) runWriter() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.drainRemaining()
			return
		case <-p.ctrl:
			p.flushSentinel()
		case l := <-p.buf:
			p.writeLine(l)
		}
	}
}

func (p *Pipeline) drainRemaining() {
	for {
		select {
		case l := <-p.buf:
			p.writeLine(l)
		default:
			p.flushSentinel()
			return
		}
	}
}

func (p *Pipeline) flushSentinel() {
	n := atomic.SwapInt64(&p.dropped, 0)
	atomic.StoreInt32(&p.sentinelPending, 0)
	if n > 0 {
		p.writeLine(logLine{stream: "meta", text: fmt.Sprintf("[log-pipeline: %d lines dropped]", n)})
	}
}

// nextTimestamp returns a monotonically non-decreasing timestamp for the
// current file. Called from writeLine with mu held, since Archive resets
// lastTS under the same lock.
func (p *Pipeline) nextTimestamp() time.Time {
	now := time.Now().UTC()
	if !p.lastTS.IsZero() && !now.After(p.lastTS) {
		now = p.lastTS.Add(time.Millisecond)
	}
	p.lastTS = now
	return now
}

func (p *Pipeline) writeLine(l logLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts := p.nextTimestamp()
	line := fmt.Sprintf("%s %s %s\n", ts.Format(timestampLayout), l.stream, l.text)

	if err := p.ensureCurrentLocked(); err != nil {
		return
	}
	p.currentFile.WriteString(line)
}

// Close stops the writer goroutine, which flushes any remaining buffered
// lines first, and waits for the stream-drain goroutines to reach the end
// of their streams before closing current.log. Call it once the
// application's child process has fully exited.
func (p *Pipeline) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentFile != nil {
		p.currentFile.Close()
		p.currentFile = nil
	}
}

// Archive atomically renames current.log to <runID>.log, opens a fresh
// current.log, and trims archives beyond the retention count (newest kept).
func (p *Pipeline) Archive(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentFile != nil {
		p.currentFile.Close()
		p.currentFile = nil
	}

	if _, err := os.Stat(p.currentPath()); err == nil {
		if err := os.Rename(p.currentPath(), p.archivePath(runID)); err != nil {
			return fmt.Errorf("archive current.log: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat current.log: %w", err)
	}

	if err := p.ensureCurrentLocked(); err != nil {
		return err
	}
	p.lastTS = time.Time{}

	return p.trimRetentionLocked()
}

func (p *Pipeline) trimRetentionLocked() error {
	runs, err := p.listArchivesLocked()
	if err != nil {
		return err
	}
	if len(runs) <= p.retention {
		return nil
	}
	for _, r := range runs[p.retention:] {
		os.Remove(filepath.Join(p.dir, r.Name))
	}
	return nil
}

func (p *Pipeline) listArchivesLocked() ([]model.LogRunInfo, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	var runs []model.LogRunInfo
	for _, e := range entries {
		if e.IsDir() || e.Name() == currentLogName {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, model.LogRunInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ModTime.After(runs[j].ModTime) })
	return runs, nil
}

// ListRuns returns archived log files, newest-first, per spec.md §4.3.
func (p *Pipeline) ListRuns() ([]model.LogRunInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	runs, err := p.listArchivesLocked()
	if runs == nil {
		runs = []model.LogRunInfo{}
	}
	return runs, err
}

// CurrentLogPath returns the path of the live log file, for callers that
// want to tail it directly (follow-mode streaming).
func (p *Pipeline) CurrentLogPath() string {
	return p.currentPath()
}

// resolvePath maps a run identifier to a file path. "" and "current" both
// mean the live file.
func (p *Pipeline) resolvePath(runID string) string {
	if runID == "" || runID == "current" {
		return p.currentPath()
	}
	return p.archivePath(runID)
}

// Tail returns up to the last n lines of the named run (or the live file
// when runID is "" or "current"), parsed into LogEntry values. n<=0 returns
// the whole file.
func (p *Pipeline) Tail(runID string, n int) ([]model.LogEntry, error) {
	lines, err := p.readLines(p.resolvePath(runID))
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	entries := make([]model.LogEntry, 0, len(lines))
	for _, raw := range lines {
		if e, ok := parseLine(raw); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (p *Pipeline) readLines(path string) ([]string, error) {
	p.mu.Lock()
	if path == p.currentPath() && p.currentFile != nil {
		p.currentFile.Sync()
	}
	p.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log file: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// parseLine splits a "<ts> <stream> <text>" line written by writeLine.
func parseLine(raw string) (model.LogEntry, bool) {
	tsStr, rest, ok := strings.Cut(raw, " ")
	if !ok {
		return model.LogEntry{}, false
	}
	stream, text, ok := strings.Cut(rest, " ")
	if !ok {
		stream, text = rest, ""
	}
	ts, err := time.Parse(timestampLayout, tsStr)
	if err != nil {
		return model.LogEntry{}, false
	}
	return model.LogEntry{Timestamp: ts, Stream: stream, Text: text}, true
}
