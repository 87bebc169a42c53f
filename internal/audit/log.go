package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stage invocation statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

var header = []string{"timestamp", "raw_file", "clean_file", "status", "error_message"}

const timestampLayout = "2006-01-02 15:04:05"

// Entry is one audit row: a single stage invocation (or one entity batch
// within a stage) with its input and output references.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	RawFile   string    `json:"raw_file"`
	CleanFile string    `json:"clean_file"`
	Status    string    `json:"status"`
	Message   string    `json:"error_message"`
}

// Log is the append-only CSV audit log. Rows are never mutated or deleted.
// It is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open prepares the audit log at path, creating it with its header when
// absent or empty.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("audit: create log dir: %w", err)
	}

	st, err := os.Stat(path)
	if err == nil && st.Size() > 0 {
		return &Log{path: path}, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("audit: stat %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: create %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush header: %w", err)
	}
	return &Log{path: path}, nil
}

// Append writes one entry. A zero Timestamp is filled with the current time.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("audit: open %q: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{
		e.Timestamp.Format(timestampLayout),
		e.RawFile,
		e.CleanFile,
		e.Status,
		e.Message,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("audit: write row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Tail returns up to n most recent entries, oldest first.
func (l *Log) Tail(n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if _, err := r.Read(); err != nil { // header
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read header: %w", err)
	}

	var entries []Entry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("audit: read row: %w", err)
		}
		if len(row) != len(header) {
			continue
		}
		ts, err := time.Parse(timestampLayout, row[0])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Timestamp: ts,
			RawFile:   row[1],
			CleanFile: row[2],
			Status:    row[3],
			Message:   row[4],
		})
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
