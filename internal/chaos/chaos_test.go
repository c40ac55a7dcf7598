package chaos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"bookswap/internal/client"
	"bookswap/internal/config"
	"bookswap/internal/server"
	"bookswap/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPI(t *testing.T) *client.Client {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Dir = t.TempDir()
	cfg.Auth.RateLimit = 0

	db, err := store.Open(context.Background(), cfg.Store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := httptest.NewServer(server.New(cfg.Server, server.NewServices(cfg, db), quietLogger()).Handler())
	t.Cleanup(ts.Close)
	return client.New(ts.URL + "/api")
}

func TestSwapExperimentsHold(t *testing.T) {
	api := newAPI(t)
	engine := NewEngine(Config{SampleInterval: 20 * time.Millisecond}, quietLogger())
	engine.RegisterExperiments(api, 8, 100*time.Millisecond)

	results := engine.RunGameDay(context.Background(), GameDay{
		Name:      "test",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.SteadyStateValid, r.ExperimentName)
		assert.True(t, r.HypothesisHeld, "%s: failed=%v violations=%v errors=%v",
			r.ExperimentName, r.Failed, r.Violations, r.ErrorEvents)
		assert.NotEmpty(t, r.Observations)
	}
	assert.Len(t, engine.Results(), 2)
}

func TestSteadyStateAborts(t *testing.T) {
	engine := NewEngine(Config{}, quietLogger())
	ran := false

	result, err := engine.RunExperiment(context.Background(), Experiment{
		Name: "broken",
		SteadyState: []Metric{{
			Name:      "errors",
			Query:     func(context.Context) (float64, error) { return 3, nil },
			Threshold: Threshold{Operator: "==", Value: 0},
		}},
		Method: []Action{{Execute: func(context.Context) error { ran = true; return nil }}},
	})

	require.ErrorIs(t, err, ErrSteadyState)
	assert.False(t, result.SteadyStateValid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, float64(3), result.Violations[0].Actual)
	assert.False(t, ran)
	assert.Empty(t, engine.Results())
}

func TestViolationDuringObservation(t *testing.T) {
	engine := NewEngine(Config{SampleInterval: 5 * time.Millisecond}, quietLogger())
	value := 0.0

	result, err := engine.RunExperiment(context.Background(), Experiment{
		Name: "drift",
		SteadyState: []Metric{{
			Name:      "inconsistencies",
			Query:     func(context.Context) (float64, error) { return value, nil },
			Threshold: Threshold{Operator: "==", Value: 0},
		}},
		Method: []Action{{
			Target:  "store",
			Execute: func(context.Context) error { value = 1; return errors.New("partial write") },
		}},
		Validation: []Assertion{{
			Metric:    "inconsistencies",
			Condition: func(v float64) bool { return v == 0 },
			Message:   "no inconsistencies",
		}},
		Duration: 20 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"no inconsistencies"}, result.Failed)
	assert.NotEmpty(t, result.Violations)
	require.NotEmpty(t, result.ErrorEvents)
	assert.Equal(t, "store", result.ErrorEvents[0].Component)
}

func TestSetupFailureStopsExperiment(t *testing.T) {
	engine := NewEngine(Config{}, quietLogger())
	_, err := engine.RunExperiment(context.Background(), Experiment{
		Name: "no-fixtures",
		Setup: []Action{{
			Type:    "create-fixtures",
			Execute: func(context.Context) error { return errors.New("api down") },
		}},
	})
	assert.ErrorContains(t, err, "api down")
}

func TestEvaluateThreshold(t *testing.T) {
	cases := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true},
		{">", 1, false},
		{"<", 0, true},
		{">=", 1, true},
		{"<=", 2, false},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, evaluateThreshold(c.value, Threshold{Operator: c.op, Value: 1}), "%v %s 1", c.value, c.op)
	}
}
