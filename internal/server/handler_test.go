package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/crowdsim/internal/exp"
	"github.com/behaviorlab/crowdsim/internal/metrics"
	"github.com/behaviorlab/crowdsim/internal/server"
	"github.com/behaviorlab/crowdsim/internal/testutil"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

// newTestServer trains a tiny run and serves its experiment root.
func newTestServer(t *testing.T) (*httptest.Server, *testutil.HarnessResult) {
	t.Helper()
	res := testutil.RunTraining(t, testutil.TinyScenario, nil)
	require.NoError(t, res.Err)

	router := mux.NewRouter()
	server.NewHandler(res.App, res.ExpRoot).RegisterRoutes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, res
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string]string
	status := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestListRuns(t *testing.T) {
	ts, _ := newTestServer(t)
	var names []string
	status := getJSON(t, ts.URL+"/runs", &names)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"test-run"}, names)
}

func TestRunConfig(t *testing.T) {
	ts, res := newTestServer(t)
	var cfg exp.Config
	status := getJSON(t, ts.URL+"/runs/test-run", &cfg)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, res.Run.Config.RunID, cfg.RunID)
	assert.Equal(t, 2, cfg.NumTasks)
}

func TestRunNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string]string
	status := getJSON(t, ts.URL+"/runs/ghost", &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["error"], "run not found")
}

func TestRunWorkerAndAntiCheat(t *testing.T) {
	ts, _ := newTestServer(t)

	var props worker.Properties
	status := getJSON(t, ts.URL+"/runs/test-run/worker", &props)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 20.0, props.TimeBudget)

	var anticheat map[string]any
	status = getJSON(t, ts.URL+"/runs/test-run/anticheat", &anticheat)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, anticheat, "qa_mode_prob")
}

func TestRunDistributions(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string][]string
	status := getJSON(t, ts.URL+"/runs/test-run/distributions", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body["distributions"], 2)
	assert.Contains(t, body["distributions"][0], "FixedDistribution")
}

func TestRunEpisodes(t *testing.T) {
	ts, _ := newTestServer(t)
	var episodes []metrics.EpisodeRecord
	status := getJSON(t, ts.URL+"/runs/test-run/episodes?limit=5", &episodes)
	assert.Equal(t, http.StatusOK, status)
	assert.LessOrEqual(t, len(episodes), 5)

	status = getJSON(t, ts.URL+"/runs/test-run/episodes?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRunEvaluate(t *testing.T) {
	ts, res := newTestServer(t)

	resp, err := http.Post(ts.URL+"/runs/test-run/evaluate?episodes=3&workers=2&record=1", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.EqualValues(t, 3, report["episodes"])

	var evals []metrics.EvaluationRecord
	status := getJSON(t, ts.URL+"/runs/test-run/evaluations", &evals)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, evals, 1)
	assert.Equal(t, res.Run.Config.RunID, evals[0].RunID)

	resp, err = http.Post(ts.URL+"/runs/test-run/evaluate?episodes=0", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
