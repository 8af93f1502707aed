// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bridge_test

import (
	"testing"

	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/gomlx/go-mpsgraph/internal/objc/fakeobjc"
	"github.com/stretchr/testify/require"
)

func TestAssembleResultsNil(t *testing.T) {
	rt := fakeobjc.New()

	// Under NullMeansEmpty a foreign nil is "nothing was requested".
	entries, err := bridge.AssembleResults(rt, objc.Nil, "run", bridge.NullMeansEmpty)
	require.NoError(t, err)
	require.Equal(t, 0, entries.Len())
	entries.Release()

	// Under NullMeansError it is a failure naming the entry point.
	_, err = bridge.AssembleResults(rt, objc.Nil, "run", bridge.NullMeansError)
	require.Error(t, err)
	require.True(t, bridge.IsNullResult(err))
	require.Contains(t, err.Error(), "run")
}

func TestAssembleResults(t *testing.T) {
	rt := fakeobjc.New()
	keys := newStrings(t, rt, 2)
	values := newStrings(t, rt, 2)
	dictRef := rt.NewDictionary(
		[]objc.Ref{keys[0].Ref(), keys[1].Ref()},
		[]objc.Ref{values[0].Ref(), values[1].Ref()})

	var entries *bridge.MapEntries
	require.NoError(t, bridge.WithPool(rt, func() error {
		var err error
		entries, err = bridge.AssembleResults(rt, dictRef, "run", bridge.NullMeansError)
		return err
	}))
	require.Equal(t, 2, entries.Len())

	for i, key := range keys {
		value, found := entries.Get(key)
		require.True(t, found)
		require.Equal(t, values[i].Ref(), value.Ref())
	}

	// The assembled entries own their references: they survive the
	// originals and the dictionary itself.
	releaseAll(values)
	releaseAll(keys)
	rt.Release(dictRef)
	require.Equal(t, 4, rt.LiveObjects())

	entries.Release()
	require.Equal(t, 0, rt.LiveObjects())
}
