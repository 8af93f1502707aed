// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bridge_test

import (
	"testing"

	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/gomlx/go-mpsgraph/internal/objc/fakeobjc"
	"github.com/stretchr/testify/require"
)

const dtypeFloat32 = 0x10000000 | 32

func TestPoolDrain(t *testing.T) {
	rt := fakeobjc.New()
	graph, err := bridge.AcquireOwned(rt, rt.NewGraph(), "MPSGraph new")
	require.NoError(t, err)

	pool := bridge.NewPool(rt)
	tensor := rt.ConstantScalar(graph.Ref(), 1, dtypeFloat32)
	require.False(t, tensor.IsNil())
	// The graph holds one reference, the pool's transient another.
	require.EqualValues(t, 2, rt.RetainCount(tensor))

	pool.Drain()
	require.EqualValues(t, 1, rt.RetainCount(tensor), "drain must reclaim the transient reference")

	// Idempotent: a deferred Drain after an explicit one is safe.
	require.NotPanics(t, pool.Drain)
	require.EqualValues(t, 1, rt.RetainCount(tensor))

	graph.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestPoolPromotion(t *testing.T) {
	rt := fakeobjc.New()
	graph, err := bridge.AcquireOwned(rt, rt.NewGraph(), "MPSGraph new")
	require.NoError(t, err)

	var promoted *bridge.Handle
	require.NoError(t, bridge.WithPool(rt, func() error {
		var err error
		promoted, err = bridge.RetainAndWrap(rt, rt.ConstantScalar(graph.Ref(), 1, dtypeFloat32), "constant")
		return err
	}))

	// Promotion decouples the object from the drained pool.
	require.False(t, promoted.IsNil())
	require.EqualValues(t, 2, rt.RetainCount(promoted.Ref())) // graph + promoted

	graph.Release()
	require.EqualValues(t, 1, rt.RetainCount(promoted.Ref()))
	promoted.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestWithPoolDrainsOnPanic(t *testing.T) {
	rt := fakeobjc.New()
	graph, err := bridge.AcquireOwned(rt, rt.NewGraph(), "MPSGraph new")
	require.NoError(t, err)

	var tensor objc.Ref
	require.Panics(t, func() {
		_ = bridge.WithPool(rt, func() error {
			tensor = rt.ConstantScalar(graph.Ref(), 1, dtypeFloat32)
			panic("mid-scope failure")
		})
	})
	require.EqualValues(t, 1, rt.RetainCount(tensor), "pool must drain with a panic in flight")

	graph.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestNestedPools(t *testing.T) {
	rt := fakeobjc.New()
	graph, err := bridge.AcquireOwned(rt, rt.NewGraph(), "MPSGraph new")
	require.NoError(t, err)

	outer := bridge.NewPool(rt)
	a := rt.ConstantScalar(graph.Ref(), 1, dtypeFloat32)

	inner := bridge.NewPool(rt)
	b := rt.ConstantScalar(graph.Ref(), 2, dtypeFloat32)
	inner.Drain()

	require.EqualValues(t, 1, rt.RetainCount(b), "inner transient reclaimed")
	require.EqualValues(t, 2, rt.RetainCount(a), "outer transient still held")

	outer.Drain()
	require.EqualValues(t, 1, rt.RetainCount(a))

	graph.Release()
	require.Equal(t, 0, rt.LiveObjects())
}
