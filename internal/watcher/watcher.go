// Package watcher notifies callers when a log file grows, backing the
// control surface's follow-mode log streaming.
//
// Grounded on the fsnotify.NewWatcher/Watcher.Events pattern used by the
// other examples pack's mcp-compose ResourcesWatcher, adapted from
// "watch a directory tree for config changes" to "watch one file and
// re-read the bytes appended since the last notification".
package watcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FollowFile streams newly appended bytes from path to onLine as they are
// written, until ctx is cancelled or the underlying watch fails. onLine is
// called once per line, in arrival order; a partial trailing line (no
// terminating newline yet) is held back until more data completes it.
func FollowFile(ctx context.Context, path string, onLine func(string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := &tailReader{f: f}
	reader.drain(onLine)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				reader.drain(onLine)
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				// current.log was archived out from under us (a new run
				// started); reopen at the fresh file, from the top.
				reader.reopen(path)
				reader.drain(onLine)
			}
		}
	}
}

// tailReader incrementally reads complete lines appended to a file,
// buffering an incomplete trailing line across calls.
type tailReader struct {
	f       *os.File
	pending []byte
}

func (t *tailReader) reopen(path string) {
	if t.f != nil {
		t.f.Close()
	}
	t.pending = nil
	f, err := os.Open(path)
	if err != nil {
		t.f = nil
		return
	}
	t.f = f
}

func (t *tailReader) drain(onLine func(string)) {
	if t.f == nil {
		return
	}
	buf := make([]byte, 64*1024)
	for {
		n, err := t.f.Read(buf)
		if n > 0 {
			t.pending = append(t.pending, buf[:n]...)
			t.emitCompleteLines(onLine)
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
	}
}

func (t *tailReader) emitCompleteLines(onLine func(string)) {
	for {
		idx := bytes.IndexByte(t.pending, '\n')
		if idx < 0 {
			return
		}
		line := string(t.pending[:idx])
		t.pending = t.pending[idx+1:]
		onLine(line)
	}
}
