// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bridge_test

import (
	"fmt"
	"testing"

	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/gomlx/go-mpsgraph/internal/objc/fakeobjc"
	"github.com/stretchr/testify/require"
)

// newStrings builds owned string handles "s0", "s1", ...
func newStrings(t *testing.T, rt objc.Runtime, n int) []*bridge.Handle {
	handles := make([]*bridge.Handle, n)
	for i := range n {
		h, err := bridge.AcquireOwned(rt, rt.NewString(fmt.Sprintf("s%d", i)), "NSString new")
		require.NoError(t, err)
		handles[i] = h
	}
	return handles
}

func releaseAll(handles []*bridge.Handle) {
	for _, h := range handles {
		h.Release()
	}
}

func TestToListFromList(t *testing.T) {
	rt := fakeobjc.New()
	items := newStrings(t, rt, 3)

	list, err := bridge.ToList(rt, items)
	require.NoError(t, err)
	require.Equal(t, 3, rt.ArrayLen(list.Ref()))

	// The array retains its elements: the originals can be released and the
	// elements stay alive through the array.
	releaseAll(items)
	require.Equal(t, 4, rt.LiveObjects()) // array + 3 strings

	back, err := bridge.FromList(list)
	require.NoError(t, err)
	require.Len(t, back, 3)
	for i, h := range back {
		require.Equal(t, fmt.Sprintf("s%d", i), rt.GoString(h.Ref()), "order must be preserved")
		require.True(t, h.Owned())
	}

	// Unmarshaled handles survive the array.
	list.Release()
	require.Equal(t, 3, rt.LiveObjects())
	releaseAll(back)
	require.Equal(t, 0, rt.LiveObjects())
}

func TestToListEmpty(t *testing.T) {
	rt := fakeobjc.New()

	// An empty list marshals to a real, present foreign array...
	list, err := bridge.ToList(rt, nil)
	require.NoError(t, err)
	require.False(t, list.IsNil())
	require.Equal(t, 0, rt.ArrayLen(list.Ref()))
	list.Release()

	// ...whereas ToListOrAbsent maps empty to the foreign absent value.
	absent, err := bridge.ToListOrAbsent(rt, nil)
	require.NoError(t, err)
	require.True(t, absent.IsNil())
	require.Equal(t, objc.Nil, absent.Ref())

	require.Equal(t, 0, rt.LiveObjects())
}

func TestToListOrAbsentNonEmpty(t *testing.T) {
	rt := fakeobjc.New()
	items := newStrings(t, rt, 1)
	list, err := bridge.ToListOrAbsent(rt, items)
	require.NoError(t, err)
	require.False(t, list.IsNil())
	require.Equal(t, 1, rt.ArrayLen(list.Ref()))
	list.Release()
	releaseAll(items)
	require.Equal(t, 0, rt.LiveObjects())
}

func TestMutableList(t *testing.T) {
	rt := fakeobjc.New()
	list, err := bridge.NewMutableList(rt)
	require.NoError(t, err)
	require.Equal(t, 0, list.Len())

	items := newStrings(t, rt, 2)
	list.Append(items...)
	require.Equal(t, 2, list.Len())

	releaseAll(items)
	back, err := bridge.FromList(list.Handle())
	require.NoError(t, err)
	require.Len(t, back, 2)
	releaseAll(back)

	list.Handle().Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestToMapFromMap(t *testing.T) {
	rt := fakeobjc.New()
	keys := newStrings(t, rt, 3)
	values := newStrings(t, rt, 3)
	entries := make([]bridge.MapEntry, 3)
	for i := range entries {
		entries[i] = bridge.MapEntry{Key: keys[i], Value: values[i]}
	}

	dict, err := bridge.ToMap(rt, entries)
	require.NoError(t, err)
	require.Equal(t, 3, rt.DictionaryLen(dict.Ref()))
	releaseAll(values)

	// FromMap materializes a transient key array; give it a pool.
	var back *bridge.MapEntries
	require.NoError(t, bridge.WithPool(rt, func() error {
		var err error
		back, err = bridge.FromMap(dict)
		return err
	}))
	require.Equal(t, 3, back.Len())

	// Lookup goes by foreign key identity, and conversion is total: every
	// key yields exactly one entry.
	seen := make(map[string]string)
	for _, entry := range back.Entries() {
		seen[rt.GoString(entry.Key.Ref())] = rt.GoString(entry.Value.Ref())
	}
	require.Equal(t, map[string]string{"s0": "s0", "s1": "s1", "s2": "s2"}, seen)

	for _, key := range keys {
		value, found := back.Get(key)
		require.True(t, found)
		require.False(t, value.IsNil())
	}
	_, found := back.Get(bridge.Borrow(rt, objc.Nil))
	require.False(t, found)

	back.Release()
	dict.Release()
	releaseAll(keys)
	require.Equal(t, 0, rt.LiveObjects())
}

func TestMutableMap(t *testing.T) {
	rt := fakeobjc.New()
	dict, err := bridge.ToMutableMap(rt, 2)
	require.NoError(t, err)

	keys := newStrings(t, rt, 1)
	values := newStrings(t, rt, 2)
	require.NoError(t, bridge.MapSet(dict, keys[0], values[0]))
	// Same key again: last value wins, no duplicate entry.
	require.NoError(t, bridge.MapSet(dict, keys[0], values[1]))
	require.Equal(t, 1, rt.DictionaryLen(dict.Ref()))

	got := rt.DictionaryGet(dict.Ref(), keys[0].Ref())
	require.Equal(t, values[1].Ref(), got)

	releaseAll(values)
	releaseAll(keys)
	dict.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestNumberListRoundTrip(t *testing.T) {
	rt := fakeobjc.New()
	dims := []int64{2, 3, 5}
	list, err := bridge.ToNumberList(rt, dims)
	require.NoError(t, err)
	require.Equal(t, 4, rt.LiveObjects()) // array + 3 boxed numbers

	back, err := bridge.NumberListValues(list)
	require.NoError(t, err)
	require.Equal(t, dims, back)

	list.Release()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestFromListNil(t *testing.T) {
	rt := fakeobjc.New()
	back, err := bridge.FromList(bridge.Borrow(rt, objc.Nil))
	require.NoError(t, err)
	require.Empty(t, back)
}
