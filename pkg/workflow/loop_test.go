package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/loomwork/loom/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incrementCounter(state map[string]any, _ int) (any, error) {
	count, _ := state["count"].(int)

	return map[string]any{"count": count + 1}, nil
}

func countBelow(limit int) models.WhileCondition {
	return models.WhileCondition{Condition: models.Condition{
		Selector: models.ExternalSelector("count", "count"),
		Operator: models.OperatorLessThan,
		Value:    limit,
	}}
}

func runLoopGraph(t *testing.T, loop *Vertex, inputs map[string]any) map[string]any {
	t.Helper()

	w := New("loop-graph")

	source := mustAdd(t, w, NewSource("in"))
	mustAdd(t, w, loop)
	sink := mustAdd(t, w, NewSink("out"))

	source.To(loop).To(sink)

	require.NoError(t, w.Run(context.Background(), inputs))

	output, ok := loop.Output().(map[string]any)
	require.True(t, ok)

	return output
}

func TestLoop_WhileConditionCarriesState(t *testing.T) {
	loop, err := NewLoop("counter", incrementCounter, WithWhileConditions(countBelow(5)))
	require.NoError(t, err)

	output := runLoopGraph(t, loop, map[string]any{"count": 0})

	assert.Equal(t, 5, output[LoopIterationCountKey])

	finalInputs, ok := output[LoopFinalInputsKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, finalInputs["count"])

	results, ok := output[LoopResultsKey].([]any)
	require.True(t, ok)
	assert.Len(t, results, 5)
	assert.Equal(t, map[string]any{"count": 1}, results[0])
}

func TestLoop_MaxIterationsCapsUnboundedCondition(t *testing.T) {
	loop, err := NewLoop("capped", incrementCounter,
		WithLoopCondition(func(map[string]any) (bool, error) { return true, nil }),
		WithMaxIterations(3),
	)
	require.NoError(t, err)

	output := runLoopGraph(t, loop, map[string]any{"count": 0})

	assert.Equal(t, 3, output[LoopIterationCountKey])
}

func TestLoop_FalseConditionSkipsBodyEntirely(t *testing.T) {
	ran := false

	loop, err := NewLoop("skipped", func(map[string]any, int) (any, error) {
		ran = true

		return nil, nil
	}, WithWhileConditions(countBelow(5)))
	require.NoError(t, err)

	output := runLoopGraph(t, loop, map[string]any{"count": 10})

	assert.False(t, ran)
	assert.Equal(t, 0, output[LoopIterationCountKey])
	assert.Empty(t, output[LoopResultsKey])
}

func TestLoop_BodyErrorIncludesIteration(t *testing.T) {
	bodyErr := errors.New("iteration blew up")

	loop, err := NewLoop("exploding", func(state map[string]any, iteration int) (any, error) {
		if iteration == 2 {
			return nil, bodyErr
		}

		count, _ := state["count"].(int)

		return map[string]any{"count": count + 1}, nil
	}, WithWhileConditions(countBelow(10)))
	require.NoError(t, err)

	w := New("loop-error")
	source := mustAdd(t, w, NewSource("in"))
	mustAdd(t, w, loop)
	sink := mustAdd(t, w, NewSink("out"))
	source.To(loop).To(sink)

	runErr := w.Run(context.Background(), map[string]any{"count": 0})

	require.ErrorIs(t, runErr, bodyErr)
	assert.Contains(t, runErr.Error(), "iteration 2")
}

func TestNewLoop_ConditionConfigIsExclusive(t *testing.T) {
	always := func(map[string]any) (bool, error) { return true, nil }

	t.Run("neither configured", func(t *testing.T) {
		_, err := NewLoop("bare", incrementCounter)

		assert.ErrorIs(t, err, ErrLoopConditionConfig)
	})

	t.Run("both configured", func(t *testing.T) {
		_, err := NewLoop("doubled", incrementCounter,
			WithLoopCondition(always),
			WithWhileConditions(countBelow(5)),
		)

		assert.ErrorIs(t, err, ErrLoopConditionConfig)
	})

	t.Run("nil body", func(t *testing.T) {
		_, err := NewLoop("empty", nil, WithLoopCondition(always))

		assert.ErrorIs(t, err, ErrMissingBody)
	})
}
