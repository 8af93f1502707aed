// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bridge_test

import (
	"testing"

	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/gomlx/go-mpsgraph/internal/objc/fakeobjc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// invoke plays the foreign runtime's role: it calls the trampoline through
// the dispatcher, exactly as a block shim would.
func invoke(tr *bridge.Trampoline, args ...objc.Ref) objc.Ref {
	return objc.CallTrampoline(tr.ID(), tr.Kind(), args)
}

func TestListTrampoline(t *testing.T) {
	rt := fakeobjc.New()
	output, err := bridge.AcquireOwned(rt, rt.NewString("result"), "NSString new")
	require.NoError(t, err)

	var sawInputs int
	tr := bridge.WrapList(rt, func(inputs []*bridge.Handle) ([]*bridge.Handle, error) {
		sawInputs = len(inputs)
		return []*bridge.Handle{output}, nil
	})
	defer tr.Close()
	require.NotZero(t, tr.ID())
	require.Equal(t, objc.BlockList, tr.Kind())

	inputs := rt.NewArray(nil)
	defer rt.Release(inputs)
	resultArray := invoke(tr, inputs)
	require.False(t, resultArray.IsNil())
	require.NoError(t, tr.Err())
	require.Equal(t, 1, tr.Calls())
	require.Equal(t, 0, sawInputs)

	// The returned array carries the +1 the block contract transfers to the
	// invoker; the closure's own handle is untouched.
	require.EqualValues(t, 1, rt.RetainCount(resultArray))
	require.True(t, output.Owned())
	require.Equal(t, output.Ref(), rt.ArrayAt(resultArray, 0))

	rt.Release(resultArray)
	output.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestConditionTrampoline(t *testing.T) {
	rt := fakeobjc.New()
	condition, err := bridge.AcquireOwned(rt, rt.NewString("pred"), "NSString new")
	require.NoError(t, err)
	appended, err := bridge.AcquireOwned(rt, rt.NewString("intermediate"), "NSString new")
	require.NoError(t, err)

	tr := bridge.WrapCondition(rt, func(inputs []*bridge.Handle, results *bridge.MutableList) (*bridge.Handle, error) {
		require.Len(t, inputs, 1)
		results.Append(appended)
		return condition, nil
	})
	defer tr.Close()

	inputs := rt.NewArray([]objc.Ref{condition.Ref()})
	resultsArray := rt.NewMutableArray()

	got := invoke(tr, inputs, resultsArray)
	require.NoError(t, tr.Err())
	require.Equal(t, condition.Ref(), got, "condition passes through borrowed, no transfer")
	require.Equal(t, 1, rt.ArrayLen(resultsArray))
	require.Equal(t, appended.Ref(), rt.ArrayAt(resultsArray, 0))

	rt.Release(inputs)
	rt.Release(resultsArray)
	condition.Release()
	appended.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestIndexedListTrampoline(t *testing.T) {
	rt := fakeobjc.New()
	index, err := bridge.AcquireOwned(rt, rt.NewNumber(7), "NSNumber new")
	require.NoError(t, err)

	tr := bridge.WrapIndexedList(rt, func(idx *bridge.Handle, inputs []*bridge.Handle) ([]*bridge.Handle, error) {
		require.EqualValues(t, 7, rt.NumberValue(idx.Ref()))
		require.Empty(t, inputs)
		return nil, nil
	})
	defer tr.Close()

	inputs := rt.NewArray(nil)
	resultArray := invoke(tr, index.Ref(), inputs)
	require.NoError(t, tr.Err())
	require.False(t, resultArray.IsNil(), "an empty result set is still a present array")
	require.Equal(t, 0, rt.ArrayLen(resultArray))

	rt.Release(resultArray)
	rt.Release(inputs)
	index.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestTrampolinePanicContainment(t *testing.T) {
	rt := fakeobjc.New()
	tr := bridge.WrapList(rt, func([]*bridge.Handle) ([]*bridge.Handle, error) {
		panic("boom")
	})
	defer tr.Close()

	inputs := rt.NewArray(nil)
	defer rt.Release(inputs)

	// The panic must not unwind through the dispatch boundary.
	var result objc.Ref
	require.NotPanics(t, func() { result = invoke(tr, inputs) })
	require.True(t, result.IsNil())

	err := tr.Err()
	require.Error(t, err)
	var panicErr *bridge.ClosurePanicError
	require.True(t, errors.As(err, &panicErr))
	require.Equal(t, "boom", panicErr.Value)
	require.NotEmpty(t, panicErr.Stack)
}

func TestTrampolineFirstErrorWins(t *testing.T) {
	rt := fakeobjc.New()
	first := errors.New("first failure")
	tr := bridge.WrapList(rt, func([]*bridge.Handle) ([]*bridge.Handle, error) {
		return nil, first
	})
	defer tr.Close()

	inputs := rt.NewArray(nil)
	defer rt.Release(inputs)

	require.True(t, invoke(tr, inputs).IsNil())
	require.True(t, invoke(tr, inputs).IsNil())
	require.Equal(t, 2, tr.Calls())
	require.ErrorIs(t, tr.Err(), first, "later failures must not overwrite the first")
}

func TestTrampolineKindMismatch(t *testing.T) {
	rt := fakeobjc.New()
	tr := bridge.WrapList(rt, func([]*bridge.Handle) ([]*bridge.Handle, error) {
		t.Fatal("closure must not run on a kind mismatch")
		return nil, nil
	})
	defer tr.Close()

	result := objc.CallTrampoline(tr.ID(), objc.BlockCondition, nil)
	require.True(t, result.IsNil())
	require.Error(t, tr.Err())
	require.Equal(t, 0, tr.Calls())
}

func TestTrampolineBadArity(t *testing.T) {
	rt := fakeobjc.New()
	tr := bridge.WrapList(rt, func([]*bridge.Handle) ([]*bridge.Handle, error) {
		t.Fatal("closure must not run on an arity mismatch")
		return nil, nil
	})
	defer tr.Close()

	require.True(t, invoke(tr).IsNil())
	var sigErr *bridge.SignatureError
	require.True(t, errors.As(tr.Err(), &sigErr))
}

func TestTrampolineClose(t *testing.T) {
	rt := fakeobjc.New()
	tr := bridge.WrapList(rt, func([]*bridge.Handle) ([]*bridge.Handle, error) {
		return nil, nil
	})
	id := tr.ID()
	tr.Close()
	require.Zero(t, tr.ID())
	require.NotPanics(t, tr.Close)

	// Invocation after Close is a (logged) no-op, never a crash.
	require.True(t, objc.CallTrampoline(id, objc.BlockList, nil).IsNil())
}

func TestFirstErr(t *testing.T) {
	rt := fakeobjc.New()
	failure := errors.New("branch failed")
	ok := bridge.WrapList(rt, func([]*bridge.Handle) ([]*bridge.Handle, error) { return nil, nil })
	defer ok.Close()
	bad := bridge.WrapList(rt, func([]*bridge.Handle) ([]*bridge.Handle, error) { return nil, failure })
	defer bad.Close()

	inputs := rt.NewArray(nil)
	defer rt.Release(inputs)
	rt.Release(invoke(ok, inputs))
	invoke(bad, inputs)

	require.NoError(t, bridge.FirstErr(nil, ok))
	require.ErrorIs(t, bridge.FirstErr(ok, bad), failure)
	require.ErrorIs(t, bridge.FirstErr(bad, ok), failure)
}
