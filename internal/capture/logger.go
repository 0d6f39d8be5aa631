package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/user/honeypulse/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TimestampFormat is the layout used for the timestamp field of each line.
const TimestampFormat = time.RFC3339Nano

// Recorder persists activity records.
type Recorder interface {
	Append(rec model.ActivityRecord) error
}

// LogFileName returns the name of the log file holding records captured on day.
func LogFileName(day time.Time) string {
	return fmt.Sprintf("honeypot_%s.json", day.Format("20060102"))
}

// line is the on-disk shape of a record.
type line struct {
	Timestamp string `json:"timestamp"`
	RemoteIP  string `json:"remote_ip"`
	Port      int    `json:"port"`
	Data      string `json:"data"`
}

// ActivityLogger appends records to one file per capture day. Appends are
// serialized so concurrent sessions never interleave partial lines.
type ActivityLogger struct {
	dir string

	mu      sync.Mutex
	file    *os.File
	day     string
	written int64
	closed  bool
	// torn is set after a failed write that may have left a partial line.
	torn bool
}

// NewActivityLogger creates a logger writing into dir, creating it if needed.
func NewActivityLogger(dir string) (*ActivityLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	return &ActivityLogger{dir: dir}, nil
}

// Append writes rec as one line to the file for its capture date and syncs
// it to disk before returning.
func (l *ActivityLogger) Append(rec model.ActivityRecord) error {
	data, err := json.Marshal(line{
		Timestamp: rec.Timestamp.Format(TimestampFormat),
		RemoteIP:  rec.RemoteIP,
		Port:      rec.Port,
		Data:      rec.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("activity logger is closed")
	}

	f, err := l.fileFor(rec.Timestamp)
	if err != nil {
		return err
	}

	if l.torn {
		data = append([]byte{'\n'}, data...)
	}
	if _, err := f.Write(data); err != nil {
		l.torn = true
		f.Close()
		l.file = nil
		return fmt.Errorf("failed to write record to %s: %w", f.Name(), err)
	}
	l.torn = false
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", f.Name(), err)
	}
	l.written++

	return nil
}

// fileFor returns the open file for ts's date, rotating when the date changes.
// Callers must hold l.mu.
func (l *ActivityLogger) fileFor(ts time.Time) (*os.File, error) {
	day := ts.Format("20060102")
	if l.file != nil && l.day == day {
		return l.file, nil
	}

	path := filepath.Join(l.dir, LogFileName(ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.day = day

	return f, nil
}

// CurrentFile returns the path of the file most recently written to.
func (l *ActivityLogger) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Written returns the number of records appended since creation.
func (l *ActivityLogger) Written() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close closes the current log file. Further appends fail.
func (l *ActivityLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
