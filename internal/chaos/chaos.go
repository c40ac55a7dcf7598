// internal/chaos/chaos.go

// Package chaos runs experiments that put the running API under concurrent
// load and check that its invariants hold while and after they run.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name       string
	Hypothesis string
	// Setup creates the fixtures the experiment works on. It runs before the
	// steady state is checked.
	Setup       []Action
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	// Duration is how long metrics are sampled after the method ran.
	Duration time.Duration
}

// Metric defines a measurable system property.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action is a fixture, load or recovery step.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion validates the final observation of one metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// Result captures one experiment run.
type Result struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	Failed           []string               `json:"failed_assertions"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// ErrSteadyState aborts an experiment whose steady state does not hold
// before the method runs.
var ErrSteadyState = errors.New("steady state invalid - aborting experiment")

// Config tunes an Engine.
type Config struct {
	// SampleInterval is the gap between metric samples while observing.
	SampleInterval time.Duration
	// Pause is the wait between the experiments of a game day.
	Pause time.Duration
}

// Engine orchestrates chaos experiments.
type Engine struct {
	cfg         Config
	tracer      trace.Tracer
	logger      *slog.Logger
	experiments []Experiment
	results     []Result
	mu          sync.Mutex
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		tracer: otel.Tracer("bookswap/chaos"),
		logger: logger,
	}
}

// RegisterExperiment adds an experiment to the suite.
func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns every finished run.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// RunExperiment executes a single experiment.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    make([]ErrorEvent, 0),
	}

	// Phase 1: Prepare fixtures
	span.AddEvent("setting_up")
	for _, action := range exp.Setup {
		if err := action.Execute(ctx); err != nil {
			span.RecordError(err)
			return result, fmt.Errorf("setup %s: %w", action.Type, err)
		}
	}

	// Phase 2: Validate steady state
	span.AddEvent("validating_steady_state")
	if valid, violations := e.validateSteadyState(ctx, exp.SteadyState); !valid {
		result.Violations = violations
		return result, ErrSteadyState
	}
	result.SteadyStateValid = true

	// Phase 3: Inject chaos
	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	// Phase 4: Observe system behavior
	span.AddEvent("observing_system")
	e.sample(ctx, exp.SteadyState, result)

	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()
	ticker := time.NewTicker(e.cfg.SampleInterval)
	defer ticker.Stop()

observe:
	for {
		select {
		case <-observationCtx.Done():
			break observe
		case <-ticker.C:
			e.sample(ctx, exp.SteadyState, result)
		}
	}

	// Phase 5: Roll back
	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			span.RecordError(err)
		}
	}

	// Phase 6: Validate assertions
	span.AddEvent("validating_assertions")
	result.Failed = e.validateAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.Failed) == 0 && len(result.Violations) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

func (r *Result) recordError(component string, err error) {
	r.ErrorEvents = append(r.ErrorEvents, ErrorEvent{
		Timestamp: time.Now(),
		Error:     err.Error(),
		Component: component,
	})
}

func (e *Engine) sample(ctx context.Context, metrics []Metric, result *Result) {
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			result.recordError(metric.Name, err)
			continue
		}

		now := time.Now()
		result.Observations[metric.Name] = append(result.Observations[metric.Name],
			DataPoint{Timestamp: now, Value: value})

		if !evaluateThreshold(value, metric.Threshold) {
			result.Violations = append(result.Violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  now,
			})
		}
	}
}

func (e *Engine) validateSteadyState(ctx context.Context, metrics []Metric) (bool, []MetricViolation) {
	violations := make([]MetricViolation, 0)

	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "Steady state query failed",
				slog.String("metric", metric.Name),
				slog.Any("error", err))
			value = -1
		}
		if err != nil || !evaluateThreshold(value, metric.Threshold) {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}

	return len(violations) == 0, violations
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

// validateAssertions checks each assertion against the metric's final
// observation and returns the messages of those that failed.
func (e *Engine) validateAssertions(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, assertion := range assertions {
		observations := result.Observations[assertion.Metric]
		if len(observations) == 0 || !assertion.Condition(observations[len(observations)-1].Value) {
			failed = append(failed, assertion.Message)
		}
	}
	return failed
}

// GameDay is a series of experiments run back to back.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
}

// RunGameDay runs every scenario and returns their results. A scenario that
// cannot run is logged and skipped.
func (e *Engine) RunGameDay(ctx context.Context, gameDay GameDay) []Result {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", gameDay.Name)),
	)
	defer span.End()

	e.logger.InfoContext(ctx, "Starting game day",
		slog.String("name", gameDay.Name),
		slog.Time("date", gameDay.Date),
		slog.Int("scenarios", len(gameDay.Scenarios)))

	results := make([]Result, 0, len(gameDay.Scenarios))
	for i, scenario := range gameDay.Scenarios {
		e.logger.InfoContext(ctx, "Running experiment",
			slog.Int("index", i+1),
			slog.String("name", scenario.Name),
			slog.String("hypothesis", scenario.Hypothesis))

		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			e.logger.ErrorContext(ctx, "Experiment failed",
				slog.String("name", scenario.Name),
				slog.Any("error", err))
			continue
		}
		e.report(ctx, result)
		results = append(results, *result)

		if i < len(gameDay.Scenarios)-1 && e.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(e.cfg.Pause):
			}
		}
	}
	return results
}

func (e *Engine) report(ctx context.Context, result *Result) {
	level := slog.LevelInfo
	msg := "Hypothesis held"
	if !result.HypothesisHeld {
		level = slog.LevelError
		msg = "Hypothesis violated"
	}
	e.logger.Log(ctx, level, msg,
		slog.String("experiment", result.ExperimentName),
		slog.Int("violations", len(result.Violations)),
		slog.Any("failed_assertions", result.Failed),
		slog.Int("errors", len(result.ErrorEvents)),
		slog.Duration("duration", result.Duration))

	for _, v := range result.Violations {
		e.logger.WarnContext(ctx, "Metric violation",
			slog.String("metric", v.MetricName),
			slog.Float64("expected", v.Expected),
			slog.Float64("actual", v.Actual))
	}
}
