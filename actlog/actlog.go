// Package actlog provides the optional append-only activity log: one
// semicolon-delimited row per event, first field a record-kind tag, second a
// float-seconds timestamp, remaining fields numeric readings or setpoints in
// a fixed order per tag. The running process never reads the log back.
package actlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/pkg/timestamp"
)

// Record-kind tags.
const (
	TagIRRange     = "ir_range"
	TagIRRaw       = "ir_raw"
	TagAccFreq     = "acc_freq"
	TagAccAmp      = "acc_amp"
	TagVibeIntens  = "vibe_intens"
	TagVibeRef     = "vibe_ref"
	TagSpeakerRef  = "speaker_freq_pwm"
	TagLightRef    = "light_ref"
	TagDLEDRef     = "dled_ref"
	TagVelocityRef = "vel_ref"
	TagColorRef    = "color_ref"
)

// Log is an append-only activity sink. A nil *Log is valid and means logging
// is disabled: Record and Close are no-ops.
type Log struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	path string
}

// Open creates the log file "<YYYY-MM-DD-HH-MM-SS>-<name>.csv" in dir.
func Open(dir, name string) (*Log, error) {
	stamp := time.Now().Format("2006-01-02-15-04-05")
	path := filepath.Join(dir, stamp+"-"+name+".csv")

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.WrapTransient(err, "Log", "Open", "create log file")
	}

	w := csv.NewWriter(file)
	w.Comma = ';'

	return &Log{file: file, w: w, path: path}, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Record appends one row: tag, timestamp, then the numeric fields in order.
// Errors writing a diagnostic log never propagate into the data path.
func (l *Log) Record(tag string, fields ...float64) {
	if l == nil {
		return
	}

	row := make([]string, 0, len(fields)+2)
	row = append(row, tag, timestamp.Format(timestamp.Seconds()))
	for _, f := range fields {
		row = append(row, timestamp.Format(f))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}
	_ = l.w.Write(row)
	l.w.Flush()
}

// Close flushes and closes the log file. Safe to call more than once.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	l.w.Flush()
	err := l.file.Close()
	l.file = nil
	l.w = nil
	if err != nil {
		return errors.Wrap(err, "Log", "Close", "close log file")
	}
	return nil
}
