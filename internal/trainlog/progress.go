package trainlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// progressColumns is the fixed column set of progress.csv.
var progressColumns = []string{
	"timesteps",
	"episodes",
	"mean_reward_100",
	"epsilon",
	"loss",
	"fps",
	"elapsed_seconds",
}

// ProgressRow is one periodic training report.
type ProgressRow struct {
	Timesteps      int
	Episodes       int
	MeanReward100  float64
	Epsilon        float64
	Loss           float64
	FPS            float64
	ElapsedSeconds float64
}

// ProgressWriter maintains progress.csv for a run.
type ProgressWriter struct {
	f *os.File
	w *csv.Writer
}

// NewProgressWriter creates the progress file with its header row.
func NewProgressWriter(path string) (*ProgressWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create progress file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(progressColumns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write progress header: %w", err)
	}
	w.Flush()
	return &ProgressWriter{f: f, w: w}, nil
}

// Record appends one progress row and flushes it.
func (p *ProgressWriter) Record(row ProgressRow) error {
	rec := []string{
		strconv.Itoa(row.Timesteps),
		strconv.Itoa(row.Episodes),
		strconv.FormatFloat(row.MeanReward100, 'f', 6, 64),
		strconv.FormatFloat(row.Epsilon, 'f', 6, 64),
		strconv.FormatFloat(row.Loss, 'f', 6, 64),
		strconv.FormatFloat(row.FPS, 'f', 2, 64),
		strconv.FormatFloat(row.ElapsedSeconds, 'f', 2, 64),
	}
	if err := p.w.Write(rec); err != nil {
		return fmt.Errorf("write progress row: %w", err)
	}
	p.w.Flush()
	return p.w.Error()
}

// Close flushes and closes the underlying file.
func (p *ProgressWriter) Close() error {
	p.w.Flush()
	if err := p.w.Error(); err != nil {
		p.f.Close()
		return err
	}
	return p.f.Close()
}
