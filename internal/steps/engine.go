package steps

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome is the tagged result of running a single step.
type Outcome int

const (
	// Applied means the step created or updated resources.
	Applied Outcome = iota
	// Skipped means the resources already existed in the desired state.
	Skipped
	// Failed means the step could not complete.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result records what happened when a step ran.
type Result struct {
	Step     string
	Outcome  Outcome
	Reason   string
	Duration time.Duration
}

// RunFunc executes a step. Returning Skipped signals the resources were
// already in place; errors are recorded as Failed.
type RunFunc func(ctx context.Context) (Outcome, string, error)

// Step is a named unit of deployment with explicit dependency edges.
type Step struct {
	Name        string
	Description string
	Requires    []string
	Run         RunFunc
}

// Engine holds the registered steps and runs them in dependency order.
type Engine struct {
	steps map[string]Step
	order []string // registration order, used to break topological ties
}

// NewEngine creates an empty step engine.
func NewEngine() *Engine {
	return &Engine{steps: make(map[string]Step)}
}

// Register adds a step. Registering the same name twice is an error.
func (e *Engine) Register(s Step) error {
	if s.Name == "" {
		return fmt.Errorf("step has no name")
	}
	if s.Run == nil {
		return fmt.Errorf("step %s has no run function", s.Name)
	}
	if _, exists := e.steps[s.Name]; exists {
		return fmt.Errorf("step %s registered twice", s.Name)
	}
	e.steps[s.Name] = s
	e.order = append(e.order, s.Name)
	return nil
}

// Names returns all registered step names in registration order.
func (e *Engine) Names() []string {
	names := make([]string, len(e.order))
	copy(names, e.order)
	return names
}

// Plan computes the topological execution order over all registered steps
// (Kahn's algorithm). Unknown requirements and cycles are errors.
func (e *Engine) Plan() ([]string, error) {
	indegree := make(map[string]int, len(e.steps))
	dependents := make(map[string][]string, len(e.steps))

	for name, step := range e.steps {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, req := range step.Requires {
			if _, ok := e.steps[req]; !ok {
				return nil, fmt.Errorf("step %s requires unknown step %s", name, req)
			}
			indegree[name]++
			dependents[req] = append(dependents[req], name)
		}
	}

	// Seed the ready queue in registration order so the plan is stable.
	var ready []string
	for _, name := range e.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	var plan []string
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		plan = append(plan, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(plan) != len(e.steps) {
		return nil, fmt.Errorf("dependency cycle among steps")
	}

	return plan, nil
}

// RunAll executes every registered step in dependency order, stopping at
// the first failure. Results for all attempted steps are returned.
func (e *Engine) RunAll(ctx context.Context) ([]Result, error) {
	plan, err := e.Plan()
	if err != nil {
		return nil, err
	}
	return e.runPlan(ctx, plan)
}

// RunOne executes a single step by name. Dependencies are not run; the
// step's own existence checks decide whether work is needed.
func (e *Engine) RunOne(ctx context.Context, name string) (Result, error) {
	step, ok := e.steps[name]
	if !ok {
		return Result{}, fmt.Errorf("unknown step: %s", name)
	}
	results, err := e.runPlan(ctx, []string{step.Name})
	if len(results) == 0 {
		return Result{Step: name, Outcome: Failed}, err
	}
	return results[0], err
}

func (e *Engine) runPlan(ctx context.Context, plan []string) ([]Result, error) {
	results := make([]Result, 0, len(plan))

	for _, name := range plan {
		step := e.steps[name]
		logrus.Infof("Running step %s: %s", step.Name, step.Description)

		start := time.Now()
		outcome, reason, err := step.Run(ctx)
		elapsed := time.Since(start)

		if err != nil {
			results = append(results, Result{
				Step:     step.Name,
				Outcome:  Failed,
				Reason:   err.Error(),
				Duration: elapsed,
			})
			logrus.Errorf("Step %s failed after %s: %v", step.Name, elapsed.Round(time.Millisecond), err)
			return results, fmt.Errorf("step %s failed: %w", step.Name, err)
		}

		results = append(results, Result{
			Step:     step.Name,
			Outcome:  outcome,
			Reason:   reason,
			Duration: elapsed,
		})

		switch outcome {
		case Skipped:
			logrus.Infof("Step %s skipped: %s", step.Name, reason)
		default:
			logrus.Infof("Step %s applied in %s", step.Name, elapsed.Round(time.Millisecond))
		}
	}

	return results, nil
}
