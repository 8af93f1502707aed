// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph

import (
	"testing"

	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestIfThenBranch(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	one, err := g.Constant(1, Float32)
	require.NoError(t, err)
	two, err := g.Constant(2, Float32)
	require.NoError(t, err)
	pred, err := g.LessThan(one, two, "") // true
	require.NoError(t, err)

	var thenCalls, elseCalls int
	results, err := g.If(pred,
		func() ([]*Tensor, error) {
			thenCalls++
			ten, err := g.Constant(10, Float32)
			return []*Tensor{ten}, err
		},
		func() ([]*Tensor, error) {
			elseCalls++
			twenty, err := g.Constant(20, Float32)
			return []*Tensor{twenty}, err
		},
		"pick")
	require.NoError(t, err)
	require.Len(t, results, 1)
	// The predicate folds at construction: only the taken branch runs, once.
	require.Equal(t, 1, thenCalls)
	require.Equal(t, 0, elseCalls)
	require.Equal(t, []float32{10}, runScalar(t, g, results[0]))
}

func TestIfElseBranch(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	one, err := g.Constant(1, Float32)
	require.NoError(t, err)
	two, err := g.Constant(2, Float32)
	require.NoError(t, err)
	pred, err := g.LessThan(two, one, "") // false
	require.NoError(t, err)

	results, err := g.If(pred,
		func() ([]*Tensor, error) {
			t.Fatal("then branch must not run on a false predicate")
			return nil, nil
		},
		func() ([]*Tensor, error) {
			twenty, err := g.Constant(20, Float32)
			return []*Tensor{twenty}, err
		},
		"")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []float32{20}, runScalar(t, g, results[0]))
}

func TestIfAbsentElse(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	one, err := g.Constant(1, Float32)
	require.NoError(t, err)
	two, err := g.Constant(2, Float32)
	require.NoError(t, err)
	pred, err := g.LessThan(two, one, "") // false
	require.NoError(t, err)

	// No else branch: a false predicate produces no tensors, which is an
	// empty (but present) result list, not a failure.
	results, err := g.If(pred, func() ([]*Tensor, error) {
		ten, err := g.Constant(10, Float32)
		return []*Tensor{ten}, err
	}, nil, "")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestWhileCountsToThree(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	zero, err := g.Constant(0, Float32)
	require.NoError(t, err)
	limit, err := g.Constant(3, Float32)
	require.NoError(t, err)
	step, err := g.Constant(1, Float32)
	require.NoError(t, err)

	var beforeCalls, afterCalls int
	results, err := g.While([]*Tensor{zero},
		func(inputs []*Tensor, loopResults *LoopResults) (*Tensor, error) {
			beforeCalls++
			require.Len(t, inputs, 1)
			loopResults.Append(inputs...)
			return g.LessThan(inputs[0], limit, "")
		},
		func(inputs []*Tensor) ([]*Tensor, error) {
			afterCalls++
			next, err := g.Add(inputs[0], step, "")
			return []*Tensor{next}, err
		},
		"count")
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The loop body runs while the condition holds (counter 0, 1, 2); the
	// condition is evaluated once more to stop.
	require.Equal(t, 4, beforeCalls)
	require.Equal(t, 3, afterCalls)
	require.Equal(t, []float32{3}, runScalar(t, g, results[0]))
}

func TestForLoop(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	lower, err := g.Constant(0, Int32)
	require.NoError(t, err)
	upper, err := g.Constant(4, Int32)
	require.NoError(t, err)
	step, err := g.Constant(1, Int32)
	require.NoError(t, err)
	acc, err := g.Constant(0, Float32)
	require.NoError(t, err)

	var indexes []int32
	results, err := g.ForLoop(lower, upper, step, []*Tensor{acc},
		func(index *Tensor, args []*Tensor) ([]*Tensor, error) {
			require.Len(t, args, 1)
			require.Equal(t, Int32, index.DataType())
			indexResults, err := g.Run(nil, []*Tensor{index}, nil)
			require.NoError(t, err)
			defer indexResults.Release()
			td, found := indexResults.Value(index)
			require.True(t, found)
			values, err := Values[int32](td)
			require.NoError(t, err)
			indexes = append(indexes, values[0])

			next, err := g.Add(args[0], index, "")
			return []*Tensor{next}, err
		},
		"sum-indexes")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []int32{0, 1, 2, 3}, indexes)
	require.Equal(t, []float32{6}, runScalar(t, g, results[0])) // 0+1+2+3
}

func TestForLoopIterations(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	iterations, err := g.Constant(3, Int32)
	require.NoError(t, err)
	acc, err := g.Constant(1, Float32)
	require.NoError(t, err)

	var bodyCalls int
	results, err := g.ForLoopIterations(iterations, []*Tensor{acc},
		func(index *Tensor, args []*Tensor) ([]*Tensor, error) {
			bodyCalls++
			doubled, err := g.Add(args[0], args[0], "")
			return []*Tensor{doubled}, err
		},
		"")
	require.NoError(t, err)
	require.Equal(t, 3, bodyCalls)
	require.Equal(t, []float32{8}, runScalar(t, g, results[0])) // 1*2*2*2
}

func TestControlDependency(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	sideEffect, err := g.Constant(99, Float32)
	require.NoError(t, err)
	op, err := sideEffect.Operation()
	require.NoError(t, err)
	defer op.Release()

	results, err := g.ControlDependency([]*Operation{op}, func() ([]*Tensor, error) {
		seven, err := g.Constant(7, Float32)
		return []*Tensor{seven}, err
	}, "after-side-effect")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []float32{7}, runScalar(t, g, results[0]))
}

func TestClosurePanicBecomesError(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	one, err := g.Constant(1, Float32)
	require.NoError(t, err)
	two, err := g.Constant(2, Float32)
	require.NoError(t, err)
	pred, err := g.LessThan(one, two, "")
	require.NoError(t, err)

	// The panic is contained at the trampoline boundary and surfaces as the
	// construct's error; it never unwinds through the foreign call.
	var results []*Tensor
	require.NotPanics(t, func() {
		results, err = g.If(pred, func() ([]*Tensor, error) {
			panic("broken branch")
		}, nil, "")
	})
	require.Error(t, err)
	require.Empty(t, results)
	var panicErr *bridge.ClosurePanicError
	require.True(t, errors.As(err, &panicErr))
	require.Equal(t, "broken branch", panicErr.Value)

	// The graph stays usable after the failed construct.
	sum, err := g.Add(one, two, "")
	require.NoError(t, err)
	require.Equal(t, []float32{3}, runScalar(t, g, sum))
}

func TestClosureErrorPropagates(t *testing.T) {
	_, g := newTestGraph(t)
	defer g.Finalize()

	zero, err := g.Constant(0, Float32)
	require.NoError(t, err)
	limit, err := g.Constant(3, Float32)
	require.NoError(t, err)
	failure := errors.New("body failed")

	_, err = g.While([]*Tensor{zero},
		func(inputs []*Tensor, loopResults *LoopResults) (*Tensor, error) {
			loopResults.Append(inputs...)
			return g.LessThan(inputs[0], limit, "")
		},
		func(inputs []*Tensor) ([]*Tensor, error) {
			return nil, failure
		},
		"")
	require.ErrorIs(t, err, failure)
}
