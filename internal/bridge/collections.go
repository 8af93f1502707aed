// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// MapEntry is one key/value association destined for, or recovered from, a
// foreign keyed collection. Keys are unique by foreign identity (pointer
// equality), not structural equality.
type MapEntry struct {
	Key   *Handle
	Value *Handle
}

// ToMap builds a foreign keyed collection from entries in a single bulk
// call, avoiding per-entry retain/release churn. The returned Handle owns
// the dictionary; the dictionary itself retains every key and value, so the
// caller remains free to release its own entry Handles.
//
// Use ToMutableMap only when the destination must be mutated after
// construction; everywhere else bulk construction is the standard.
func ToMap(rt objc.Runtime, entries []MapEntry) (*Handle, error) {
	keys := make([]objc.Ref, len(entries))
	values := make([]objc.Ref, len(entries))
	for i, entry := range entries {
		if entry.Key.IsNil() || entry.Value.IsNil() {
			return nil, errors.Errorf("ToMap: entry #%d has a nil key or value", i)
		}
		keys[i] = entry.Key.Ref()
		values[i] = entry.Value.Ref()
	}
	return AcquireOwned(rt, rt.NewDictionary(keys, values), "NSDictionary dictionaryWithObjects:forKeys:count:")
}

// ToMutableMap creates an empty mutable foreign dictionary, for result
// accumulation and other destinations that are filled in place.
func ToMutableMap(rt objc.Runtime, capacity int) (*Handle, error) {
	return AcquireOwned(rt, rt.NewMutableDictionary(capacity), "NSMutableDictionary dictionaryWithCapacity:")
}

// MapSet inserts one association into a mutable foreign dictionary built by
// ToMutableMap. The dictionary retains key and value.
func MapSet(dict, key, value *Handle) error {
	if dict.IsNil() {
		return errors.New("MapSet on a nil dictionary")
	}
	if key.IsNil() || value.IsNil() {
		return errors.New("MapSet with a nil key or value")
	}
	dict.Runtime().DictionarySet(dict.Ref(), key.Ref(), value.Ref())
	return nil
}

// ToList builds an order-preserving foreign array from items. The array
// retains its elements. An empty items slice produces a valid empty foreign
// array -- use ToListOrAbsent where the destination treats "no collection"
// as "use default".
func ToList(rt objc.Runtime, items []*Handle) (*Handle, error) {
	refs := make([]objc.Ref, len(items))
	for i, item := range items {
		if item.IsNil() {
			return nil, errors.Errorf("ToList: item #%d is nil", i)
		}
		refs[i] = item.Ref()
	}
	return AcquireOwned(rt, rt.NewArray(refs), "NSArray arrayWithObjects:count:")
}

// ToListOrAbsent marshals items like ToList, except an empty slice yields a
// nil Handle (the foreign absent value) instead of an empty foreign array.
// Required for optional arguments -- e.g. target operations -- where passing
// an explicit empty collection changes foreign behavior.
func ToListOrAbsent(rt objc.Runtime, items []*Handle) (*Handle, error) {
	if len(items) == 0 {
		return nil, nil
	}
	return ToList(rt, items)
}

// MutableList wraps a mutable foreign array that the foreign side owns,
// letting a host closure append result Handles to it. It shows up as the
// caller-supplied output collection of while-loop condition blocks.
type MutableList struct {
	h *Handle
}

// NewMutableList creates an empty host-owned mutable foreign array. Release
// it through Handle.
func NewMutableList(rt objc.Runtime) (*MutableList, error) {
	h, err := AcquireOwned(rt, rt.NewMutableArray(), "NSMutableArray new")
	if err != nil {
		return nil, err
	}
	return &MutableList{h: h}, nil
}

// Handle returns the underlying foreign array Handle.
func (l *MutableList) Handle() *Handle { return l.h }

// Append adds items, in order, to the underlying foreign array, which
// retains each of them.
func (l *MutableList) Append(items ...*Handle) {
	for _, item := range items {
		if item.IsNil() {
			continue
		}
		l.h.Runtime().ArrayAppend(l.h.Ref(), item.Ref())
	}
}

// Len returns the current number of elements.
func (l *MutableList) Len() int {
	return l.h.Runtime().ArrayLen(l.h.Ref())
}

// FromList enumerates a foreign array in order, returning one owned Handle
// per element (each element is retained, so the result is independent of the
// array's lifetime). The caller releases the returned Handles.
func FromList(list *Handle) ([]*Handle, error) {
	if list.IsNil() {
		return nil, nil
	}
	rt := list.Runtime()
	n := rt.ArrayLen(list.Ref())
	items := make([]*Handle, n)
	for i := range n {
		item, err := RetainAndWrap(rt, rt.ArrayAt(list.Ref(), i), "NSArray objectAtIndex:")
		if err != nil {
			releaseAll(items[:i])
			return nil, errors.WithMessagef(err, "element #%d of %d", i, n)
		}
		items[i] = item
	}
	return items, nil
}

// borrowListItems wraps each element of a foreign array as a borrowed
// Handle, valid only while the array (and its owner) is alive. Used inside
// trampoline dispatch, where the signature contract grants no ownership over
// the arguments.
func borrowListItems(rt objc.Runtime, array objc.Ref) []*Handle {
	if array.IsNil() {
		return nil
	}
	n := rt.ArrayLen(array)
	items := make([]*Handle, n)
	for i := range n {
		items[i] = Borrow(rt, rt.ArrayAt(array, i))
	}
	return items
}

// MapEntries is the host-native image of a foreign keyed collection: the
// entries in enumeration order plus an index by foreign key identity.
type MapEntries struct {
	entries []MapEntry
	index   map[objc.Ref]int
}

// Len returns the number of associations.
func (m *MapEntries) Len() int { return len(m.entries) }

// Entries returns the associations in enumeration order.
func (m *MapEntries) Entries() []MapEntry { return m.entries }

// Get returns the value Handle associated with key's foreign identity.
func (m *MapEntries) Get(key *Handle) (*Handle, bool) {
	idx, found := m.index[key.Ref()]
	if !found {
		return nil, false
	}
	return m.entries[idx].Value, true
}

// Release releases every key and value Handle held by the collection.
func (m *MapEntries) Release() {
	if m == nil {
		return
	}
	for _, entry := range m.entries {
		entry.Key.Release()
		entry.Value.Release()
	}
	m.entries = nil
	m.index = nil
}

// FromMap converts a foreign keyed collection into host entries: it takes
// the foreign key array (wrapping it in a Handle so it is not leaked),
// visits every key exactly once, and looks up each value. Keys and values in
// the result are owned and released via MapEntries.Release.
func FromMap(dict *Handle) (*MapEntries, error) {
	result := &MapEntries{index: make(map[objc.Ref]int)}
	if dict.IsNil() {
		return result, nil
	}
	rt := dict.Runtime()
	want := rt.DictionaryLen(dict.Ref())

	keysArray, err := RetainAndWrap(rt, rt.DictionaryKeys(dict.Ref()), "NSDictionary allKeys")
	if err != nil {
		return nil, err
	}
	defer keysArray.Release()

	keys, err := FromList(keysArray)
	if err != nil {
		return nil, err
	}
	if len(keys) != want {
		releaseAll(keys)
		return nil, errors.WithStack(&SignatureError{Op: "NSDictionary allKeys", Want: want, Got: len(keys)})
	}

	result.entries = make([]MapEntry, 0, len(keys))
	for _, key := range keys {
		value, err := RetainAndWrap(rt, rt.DictionaryGet(dict.Ref(), key.Ref()), "NSDictionary objectForKey:")
		if err != nil {
			// A key from allKeys must have a value; anything else is a
			// broken foreign invariant.
			result.Release()
			key.Release()
			return nil, errors.WithMessage(err, "key present in allKeys has no value")
		}
		result.index[key.Ref()] = len(result.entries)
		result.entries = append(result.entries, MapEntry{Key: key, Value: value})
	}
	return result, nil
}

// ToNumberList marshals integers into a foreign array of boxed numbers,
// preserving order. Used for shapes, axes and other numeric lists.
func ToNumberList[T constraints.Integer](rt objc.Runtime, values []T) (*Handle, error) {
	numbers := make([]*Handle, len(values))
	for i, value := range values {
		num, err := AcquireOwned(rt, rt.NewNumber(int64(value)), "NSNumber numberWithLongLong:")
		if err != nil {
			releaseAll(numbers[:i])
			return nil, err
		}
		numbers[i] = num
	}
	defer releaseAll(numbers) // The array retains each number.
	return ToList(rt, numbers)
}

// NumberListValues unmarshals a foreign array of boxed numbers, preserving
// order.
func NumberListValues(list *Handle) ([]int64, error) {
	if list.IsNil() {
		return nil, nil
	}
	rt := list.Runtime()
	n := rt.ArrayLen(list.Ref())
	values := make([]int64, n)
	for i := range n {
		ref := rt.ArrayAt(list.Ref(), i)
		if ref.IsNil() {
			return nil, errNullResult("NSArray objectAtIndex:")
		}
		values[i] = rt.NumberValue(ref)
	}
	return values, nil
}
