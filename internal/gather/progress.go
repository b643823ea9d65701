package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	lastCompletedFile = ".last-completed"
	inProgressFile    = ".in-progress"
)

// progressTracker manages the .in-progress and .last-completed files so an
// interrupted run resumes where it stopped and a symbol already refreshed
// for the day is not fetched twice.
//
// .in-progress holds the target day on its first line followed by one
// refreshed symbol per line. It outlives the day's completion so a later
// run with a different symbol list still knows what was fetched. Entries
// recorded for a different day are discarded on open.
type progressTracker struct {
	mu     sync.Mutex
	day    string
	done   map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	dir    string
}

// newProgressTracker opens the tracker for day under dir, creating dir if
// needed.
func newProgressTracker(dir, day string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{
		day:  day,
		done: make(map[string]struct{}),
		dir:  dir,
	}

	path := filepath.Join(dir, inProgressFile)
	resume := false
	if data, err := os.ReadFile(path); err == nil {
		lines := strings.Split(string(data), "\n")
		if strings.TrimSpace(lines[0]) == day {
			resume = true
			for _, line := range lines[1:] {
				if sym := strings.TrimSpace(line); sym != "" {
					pt.done[sym] = struct{}{}
				}
			}
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !resume {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", inProgressFile, err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)

	if !resume {
		if _, err := pt.writer.WriteString(day + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing %s: %w", inProgressFile, err)
		}
		if err := pt.writer.Flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return pt, nil
}

// IsDone reports whether symbol was already refreshed for the tracked day.
func (p *progressTracker) IsDone(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// MarkDone records symbol as refreshed.
func (p *progressTracker) MarkDone(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.done[symbol]; ok {
		return nil
	}
	p.done[symbol] = struct{}{}
	if _, err := p.writer.WriteString(symbol + "\n"); err != nil {
		return fmt.Errorf("writing to %s: %w", inProgressFile, err)
	}
	return p.writer.Flush()
}

// MarkCompleted writes the tracked day to .last-completed.
func (p *progressTracker) MarkCompleted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		if err := p.writer.Flush(); err != nil {
			return fmt.Errorf("flushing %s: %w", inProgressFile, err)
		}
	}
	return os.WriteFile(filepath.Join(p.dir, lastCompletedFile), []byte(p.day), 0o644)
}

// IsCompleted returns true if .last-completed matches the tracked day.
func (p *progressTracker) IsCompleted() bool {
	return lastCompleted(p.dir) == p.day
}

// Close flushes and closes the .in-progress file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		err := p.file.Close()
		p.file, p.writer = nil, nil
		return err
	}
	return nil
}

// lastCompleted returns the day stored in dir/.last-completed, or "".
func lastCompleted(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, lastCompletedFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
