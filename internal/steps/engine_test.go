package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applied(ran *[]string, name string) RunFunc {
	return func(ctx context.Context) (Outcome, string, error) {
		*ran = append(*ran, name)
		return Applied, "", nil
	}
}

func TestPlanOrdersByDependencies(t *testing.T) {
	e := NewEngine()
	var ran []string

	require.NoError(t, e.Register(Step{Name: "litellm", Requires: []string{"redis", "secrets"}, Run: applied(&ran, "litellm")}))
	require.NoError(t, e.Register(Step{Name: "secrets", Run: applied(&ran, "secrets")}))
	require.NoError(t, e.Register(Step{Name: "redis", Requires: []string{"secrets"}, Run: applied(&ran, "redis")}))

	plan, err := e.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"secrets", "redis", "litellm"}, plan)
}

func TestPlanIsStableForIndependentSteps(t *testing.T) {
	e := NewEngine()
	var ran []string

	require.NoError(t, e.Register(Step{Name: "monitoring", Run: applied(&ran, "monitoring")}))
	require.NoError(t, e.Register(Step{Name: "jaeger", Run: applied(&ran, "jaeger")}))
	require.NoError(t, e.Register(Step{Name: "gatekeeper", Run: applied(&ran, "gatekeeper")}))

	plan, err := e.Plan()
	require.NoError(t, err)
	// No edges: registration order is preserved.
	assert.Equal(t, []string{"monitoring", "jaeger", "gatekeeper"}, plan)
}

func TestPlanRejectsUnknownRequirement(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Register(Step{Name: "litellm", Requires: []string{"redis"}, Run: applied(new([]string), "litellm")}))

	_, err := e.Plan()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestPlanRejectsCycle(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Register(Step{Name: "a", Requires: []string{"b"}, Run: applied(new([]string), "a")}))
	require.NoError(t, e.Register(Step{Name: "b", Requires: []string{"a"}, Run: applied(new([]string), "b")}))

	_, err := e.Plan()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestRunAllStopsAtFirstFailure(t *testing.T) {
	e := NewEngine()
	var ran []string

	require.NoError(t, e.Register(Step{Name: "secrets", Run: applied(&ran, "secrets")}))
	require.NoError(t, e.Register(Step{Name: "redis", Requires: []string{"secrets"}, Run: func(ctx context.Context) (Outcome, string, error) {
		return Failed, "", errors.New("chart repo unreachable")
	}}))
	require.NoError(t, e.Register(Step{Name: "litellm", Requires: []string{"redis"}, Run: applied(&ran, "litellm")}))

	results, err := e.RunAll(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"secrets"}, ran)
	require.Len(t, results, 2)
	assert.Equal(t, Applied, results[0].Outcome)
	assert.Equal(t, Failed, results[1].Outcome)
	assert.Contains(t, results[1].Reason, "chart repo unreachable")
}

func TestRunAllRecordsSkips(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Register(Step{Name: "namespaces", Run: func(ctx context.Context) (Outcome, string, error) {
		return Skipped, "all namespaces exist", nil
	}}))

	results, err := e.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Skipped, results[0].Outcome)
	assert.Equal(t, "all namespaces exist", results[0].Reason)
}

func TestRunOneDoesNotRunDependencies(t *testing.T) {
	e := NewEngine()
	var ran []string

	require.NoError(t, e.Register(Step{Name: "secrets", Run: applied(&ran, "secrets")}))
	require.NoError(t, e.Register(Step{Name: "redis", Requires: []string{"secrets"}, Run: applied(&ran, "redis")}))

	res, err := e.RunOne(context.Background(), "redis")
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome)
	assert.Equal(t, []string{"redis"}, ran)
}

func TestRunOneUnknownStep(t *testing.T) {
	e := NewEngine()
	_, err := e.RunOne(context.Background(), "nope")
	require.Error(t, err)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Register(Step{Name: "verify", Run: applied(new([]string), "verify")}))
	assert.Error(t, e.Register(Step{Name: "verify", Run: applied(new([]string), "verify")}))
	assert.Error(t, e.Register(Step{Name: "", Run: applied(new([]string), "")}))
	assert.Error(t, e.Register(Step{Name: "norun"}))
}
