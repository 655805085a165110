// Package testutil provides shared helpers for package tests: a thread-safe
// log buffer and a harness that runs a full training pipeline against a
// scenario written to a temporary experiment root.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/crowdsim/internal/app"
	"github.com/behaviorlab/crowdsim/internal/exp"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of a harness training run.
type HarnessResult struct {
	LogOutput string
	Err       error
	Run       *exp.Run
	ExpRoot   string
	App       *app.App
}

// WriteScenario writes scenario source to a file under a temporary directory
// and returns its path.
func WriteScenario(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.hcl")
	require.NoError(t, os.WriteFile(path, []byte(source), 0644))
	return path
}

// RunTraining trains a run named "test-run" from the given scenario source
// inside a temporary experiment root.
func RunTraining(t *testing.T, scenarioSource string, vars []string) *HarnessResult {
	t.Helper()
	return RunTrainingWithContext(context.Background(), t, scenarioSource, vars)
}

// RunTrainingWithContext is RunTraining with a caller-provided context, so
// tests can exercise cancellation mid-training.
func RunTrainingWithContext(ctx context.Context, t *testing.T, scenarioSource string, vars []string) *HarnessResult {
	t.Helper()

	scenarioPath := WriteScenario(t, scenarioSource)
	expRoot := t.TempDir()

	logBuffer := &SafeBuffer{}
	a := app.New(logBuffer, app.Config{
		ExpRoot:   expRoot,
		LogFormat: "text",
		LogLevel:  "debug",
	})

	run, err := a.Train(ctx, app.TrainOptions{
		ScenarioPath: scenarioPath,
		Vars:         vars,
		Name:         "test-run",
	})

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       err,
		Run:       run,
		ExpRoot:   expRoot,
		App:       a,
	}
}
