// Package trainlog writes the on-disk training logs of a run: the per-episode
// monitor file and the periodic progress table.
package trainlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Monitor appends one row per finished episode to a CSV file. The first line
// is a JSON header prefixed with '#' carrying the start time and environment
// id, followed by the column header "r,l,t" (reward, length, seconds since
// start).
type Monitor struct {
	f     *os.File
	w     *csv.Writer
	start time.Time
}

// NewMonitor creates the monitor file, truncating any previous one.
func NewMonitor(path, envID string) (*Monitor, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create monitor file: %w", err)
	}

	start := time.Now()
	header, err := json.Marshal(map[string]any{
		"t_start": float64(start.UnixNano()) / 1e9,
		"env_id":  envID,
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "#%s\n", header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write monitor header: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"r", "l", "t"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write monitor columns: %w", err)
	}
	w.Flush()
	return &Monitor{f: f, w: w, start: start}, nil
}

// Record appends one episode row and flushes it.
func (m *Monitor) Record(reward float64, length int) error {
	row := []string{
		strconv.FormatFloat(reward, 'f', 6, 64),
		strconv.Itoa(length),
		strconv.FormatFloat(time.Since(m.start).Seconds(), 'f', 6, 64),
	}
	if err := m.w.Write(row); err != nil {
		return fmt.Errorf("write monitor row: %w", err)
	}
	m.w.Flush()
	return m.w.Error()
}

// Close flushes and closes the underlying file.
func (m *Monitor) Close() error {
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}
