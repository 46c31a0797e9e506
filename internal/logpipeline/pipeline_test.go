package logpipeline

import (
	"strings"
	"testing"
	"time"
)

// waitFor polls cond until it's true or the timeout elapses, to avoid
// sleeping a fixed duration for the async writer goroutine to catch up.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within timeout")
}

func TestAttachAndTail(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 0)
	defer p.Close()

	stdout := strings.NewReader("hello\nworld\n")
	stderr := strings.NewReader("oops\n")
	if err := p.Attach(stdout, stderr); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	waitFor(t, func() bool {
		entries, _ := p.Tail("", 0)
		return len(entries) == 3
	})

	entries, err := p.Tail("", 0)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Tail() returned %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Errorf("timestamps not monotonic: %v before %v", entries[i].Timestamp, entries[i-1].Timestamp)
		}
	}
}

func TestTailLimitsLines(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 0)
	defer p.Close()

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("line\n")
	}
	if err := p.Attach(strings.NewReader(sb.String()), nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	waitFor(t, func() bool {
		entries, _ := p.Tail("", 0)
		return len(entries) == 10
	})

	entries, err := p.Tail("", 3)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Tail(n=3) returned %d entries, want 3", len(entries))
	}
}

func TestArchiveAndRetention(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 2)
	defer p.Close()

	for i := 0; i < 4; i++ {
		if err := p.Attach(strings.NewReader("run output\n"), nil); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		waitFor(t, func() bool {
			entries, _ := p.Tail("", 0)
			return len(entries) >= 1
		})
		runID := time.Now().UTC().Format("20060102T150405.000000000Z")
		if err := p.Archive(runID + string(rune('a'+i))); err != nil {
			t.Fatalf("Archive() error = %v", err)
		}
	}

	runs, err := p.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() returned %d runs, want 2 (retention trimmed)", len(runs))
	}
}

func TestSearchFindsAcrossCurrentAndArchive(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 10)
	defer p.Close()

	if err := p.Attach(strings.NewReader("before\nNEEDLE one\nafter\n"), nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool {
		entries, _ := p.Tail("", 0)
		return len(entries) == 3
	})
	if err := p.Archive("run-1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if err := p.Attach(strings.NewReader("needle two\n"), nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool {
		entries, _ := p.Tail("", 0)
		return len(entries) == 1
	})

	matches, err := p.Search("needle", false, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Search() returned %d matches, want 2", len(matches))
	}
}

func TestSearchRespectsCaseSensitivity(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 10)
	defer p.Close()

	if err := p.Attach(strings.NewReader("FOO bar\n"), nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool {
		entries, _ := p.Tail("", 0)
		return len(entries) == 1
	})

	matches, err := p.Search("foo", true, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("Search() case-sensitive found %d matches, want 0", len(matches))
	}

	matches, err = p.Search("foo", false, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Search() case-insensitive found %d matches, want 1", len(matches))
	}
}

func TestSearchRespectsMaxResults(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 10)
	defer p.Close()

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("match line\n")
	}
	if err := p.Attach(strings.NewReader(sb.String()), nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool {
		entries, _ := p.Tail("", 0)
		return len(entries) == 20
	})

	matches, err := p.Search("match", true, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 5 {
		t.Fatalf("Search() returned %d matches, want 5 (bounded)", len(matches))
	}
}

func TestDropOldestEmitsSentinelWhenBufferFull(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 0)
	defer p.Close()

	// Force a tiny buffer so a burst of lines overflows it.
	p.buf = make(chan logLine, 2)

	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("burst\n")
	}
	if err := p.Attach(strings.NewReader(sb.String()), nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	waitFor(t, func() bool {
		entries, _ := p.Tail("", 0)
		for _, e := range entries {
			if e.Stream == "meta" {
				return true
			}
		}
		return false
	})
}

func TestListRunsOrderedNewestFirst(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, 10)
	defer p.Close()

	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if err := p.Attach(strings.NewReader("x\n"), nil); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		waitFor(t, func() bool {
			entries, _ := p.Tail("", 0)
			return len(entries) >= 1
		})
		if err := p.Archive(id); err != nil {
			t.Fatalf("Archive() error = %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := p.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns() returned %d runs, want 3", len(runs))
	}
	if runs[0].Name != "run-c.log" {
		t.Errorf("ListRuns()[0] = %s, want run-c.log (newest first)", runs[0].Name)
	}
}
