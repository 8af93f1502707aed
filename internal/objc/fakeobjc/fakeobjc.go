// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fakeobjc is a pure-Go emulation of the foreign Objective-C runtime
// surface, with real retain counts and autorelease pools. It exists so the
// ownership, marshaling and trampoline discipline of the bridge can be
// tested on any platform, with the retain count of every emulated object
// observable as a probe.
//
// Graph semantics are eager and deliberately small: placeholders, constants
// and a handful of element-wise operations, evaluated from feeds at Run.
// Control-flow constructs are unrolled at construction time by invoking
// their trampolines -- which is exactly the invocation pattern the real
// scheduler exhibits during graph construction -- and therefore require
// constant-foldable predicates and bounds.
//
// The runtime follows the bridge's concurrency contract: single-threaded,
// no internal locking.
package fakeobjc

import (
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Name of this runtime in the objc registry.
const Name = "fake"

func init() {
	objc.Register(Name, func(config string) (objc.Runtime, error) {
		if config != "" {
			return nil, errors.Errorf("fake runtime takes no configuration, got %q", config)
		}
		return New(), nil
	})
}

// Data type codes, matching MPSDataType.
const (
	dtypeFloat32 uint32 = 0x10000000 | 32
	dtypeInt32   uint32 = 0x20000000 | 32
	dtypeBool    uint32 = 0x40000000 | 8
)

type objKind int

const (
	kindString objKind = iota
	kindNumber
	kindArray
	kindDictionary
	kindGraph
	kindDevice
	kindTensor
	kindTensorData
	kindOperation
)

func (k objKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindArray:
		return "array"
	case kindDictionary:
		return "dictionary"
	case kindGraph:
		return "graph"
	case kindDevice:
		return "device"
	case kindTensor:
		return "tensor"
	case kindTensorData:
		return "tensorData"
	case kindOperation:
		return "operation"
	}
	return "invalid"
}

// object is one emulated foreign object with its retain count.
type object struct {
	kind    objKind
	retain  int64
	mutable bool

	str string
	num int64

	items []objc.Ref // arrays: elements; graphs: owned tensors/operations

	keys, values []objc.Ref // dictionaries, in insertion order

	// Tensors.
	graph     objc.Ref // non-retained back-pointer
	op        string   // "placeholder", "constant", or the binary selector
	operation objc.Ref // producing operation object, graph-owned
	inputs    []objc.Ref
	folded    []float64 // constant-folded value, nil when data-dependent
	shape     []int64
	dtype     uint32

	data []byte // tensor data payload
}

type poolScope struct {
	token      objc.Ref
	transients []objc.Ref
}

// Runtime implements objc.Runtime in pure Go.
type Runtime struct {
	objects map[objc.Ref]*object
	next    uintptr
	pools   []*poolScope

	// lastRunTargetOps records the raw targetOps argument of the most
	// recent Run call, so tests can assert the absent-vs-empty marshaling
	// policy at the foreign boundary.
	lastRunTargetOps objc.Ref
	lastRunRecorded  bool
}

var _ objc.Runtime = (*Runtime)(nil)

// New creates an empty emulated runtime.
func New() *Runtime {
	return &Runtime{objects: make(map[objc.Ref]*object), next: 0x1000}
}

// Name implements objc.Runtime.
func (rt *Runtime) Name() string { return Name }

func (rt *Runtime) alloc(obj *object) objc.Ref {
	rt.next += 16
	ref := objc.Ref(rt.next)
	obj.retain = 1
	rt.objects[ref] = obj
	return ref
}

func (rt *Runtime) get(ref objc.Ref, kinds ...objKind) *object {
	obj := rt.objects[ref]
	if obj == nil {
		klog.Fatalf("fakeobjc: message sent to dead or unknown object %#x -- use-after-free in the bridge", uintptr(ref))
	}
	if len(kinds) > 0 {
		for _, kind := range kinds {
			if obj.kind == kind {
				return obj
			}
		}
		klog.Fatalf("fakeobjc: object %#x is a %s, expected %v", uintptr(ref), obj.kind, kinds)
	}
	return obj
}

// Retain implements objc.Runtime.
func (rt *Runtime) Retain(ref objc.Ref) objc.Ref {
	if ref.IsNil() {
		return ref
	}
	rt.get(ref).retain++
	return ref
}

// Release implements objc.Runtime.
func (rt *Runtime) Release(ref objc.Ref) {
	if ref.IsNil() {
		return
	}
	obj := rt.get(ref)
	obj.retain--
	if obj.retain > 0 {
		return
	}
	if obj.retain < 0 {
		klog.Fatalf("fakeobjc: over-release of %s object %#x", obj.kind, uintptr(ref))
	}
	rt.dealloc(ref, obj)
}

// dealloc frees an object whose count reached zero, releasing the
// references containers hold on their elements.
func (rt *Runtime) dealloc(ref objc.Ref, obj *object) {
	delete(rt.objects, ref)
	switch obj.kind {
	case kindArray, kindGraph:
		for _, item := range obj.items {
			rt.Release(item)
		}
	case kindDictionary:
		for i := range obj.keys {
			rt.Release(obj.keys[i])
			rt.Release(obj.values[i])
		}
	}
}

// RetainCount implements objc.Runtime. Returns 0 for dead objects.
func (rt *Runtime) RetainCount(ref objc.Ref) int64 {
	obj := rt.objects[ref]
	if obj == nil {
		return 0
	}
	return obj.retain
}

// LiveObjects returns the number of emulated objects currently alive. Test
// probe.
func (rt *Runtime) LiveObjects() int { return len(rt.objects) }

// LastRunTargetOps returns the raw targetOps reference passed to the most
// recent Run call, and whether any Run happened. Test probe.
func (rt *Runtime) LastRunTargetOps() (objc.Ref, bool) {
	return rt.lastRunTargetOps, rt.lastRunRecorded
}

// PoolPush implements objc.Runtime.
func (rt *Runtime) PoolPush() objc.Ref {
	rt.next += 16
	token := objc.Ref(rt.next)
	rt.pools = append(rt.pools, &poolScope{token: token})
	return token
}

// PoolPop implements objc.Runtime. Pops scopes down to and including the
// one identified by token, releasing their transients in reverse order.
func (rt *Runtime) PoolPop(token objc.Ref) {
	for len(rt.pools) > 0 {
		top := rt.pools[len(rt.pools)-1]
		rt.pools = rt.pools[:len(rt.pools)-1]
		for i := len(top.transients) - 1; i >= 0; i-- {
			rt.Release(top.transients[i])
		}
		if top.token == token {
			return
		}
		klog.Warningf("fakeobjc: pool %#x drained out of order", uintptr(top.token))
	}
	klog.Fatalf("fakeobjc: PoolPop with unknown token %#x", uintptr(token))
}

// autorelease registers ref with the innermost pool, consuming the +1 the
// caller holds. With no pool in place the reference leaks, as it would in
// the real runtime; that is always a bug in the layer above.
func (rt *Runtime) autorelease(ref objc.Ref) objc.Ref {
	if ref.IsNil() {
		return ref
	}
	if len(rt.pools) == 0 {
		klog.Warningf("fakeobjc: %#x autoreleased with no pool in place; leaked", uintptr(ref))
		return ref
	}
	top := rt.pools[len(rt.pools)-1]
	top.transients = append(top.transients, ref)
	return ref
}

// NewString implements objc.Runtime.
func (rt *Runtime) NewString(s string) objc.Ref {
	return rt.alloc(&object{kind: kindString, str: s})
}

// GoString implements objc.Runtime.
func (rt *Runtime) GoString(ref objc.Ref) string {
	return rt.get(ref, kindString).str
}

// NewNumber implements objc.Runtime.
func (rt *Runtime) NewNumber(value int64) objc.Ref {
	return rt.alloc(&object{kind: kindNumber, num: value})
}

// NumberValue implements objc.Runtime.
func (rt *Runtime) NumberValue(ref objc.Ref) int64 {
	return rt.get(ref, kindNumber).num
}

// NewArray implements objc.Runtime.
func (rt *Runtime) NewArray(items []objc.Ref) objc.Ref {
	stored := make([]objc.Ref, len(items))
	for i, item := range items {
		if item.IsNil() {
			klog.Fatalf("fakeobjc: nil element #%d in array construction", i)
		}
		stored[i] = rt.Retain(item)
	}
	return rt.alloc(&object{kind: kindArray, items: stored})
}

// NewMutableArray implements objc.Runtime.
func (rt *Runtime) NewMutableArray() objc.Ref {
	return rt.alloc(&object{kind: kindArray, mutable: true})
}

// ArrayLen implements objc.Runtime.
func (rt *Runtime) ArrayLen(array objc.Ref) int {
	return len(rt.get(array, kindArray).items)
}

// ArrayAt implements objc.Runtime.
func (rt *Runtime) ArrayAt(array objc.Ref, i int) objc.Ref {
	obj := rt.get(array, kindArray)
	if i < 0 || i >= len(obj.items) {
		klog.Fatalf("fakeobjc: array index %d out of range [0, %d)", i, len(obj.items))
	}
	return obj.items[i]
}

// ArrayAppend implements objc.Runtime.
func (rt *Runtime) ArrayAppend(array, item objc.Ref) {
	obj := rt.get(array, kindArray)
	if !obj.mutable {
		klog.Fatalf("fakeobjc: append to immutable array %#x", uintptr(array))
	}
	obj.items = append(obj.items, rt.Retain(item))
}

// NewDictionary implements objc.Runtime: bulk construction from parallel
// slices. Keys compare by identity; a duplicate key keeps the last value.
func (rt *Runtime) NewDictionary(keys, values []objc.Ref) objc.Ref {
	if len(keys) != len(values) {
		klog.Fatalf("fakeobjc: dictionary construction with %d keys and %d values", len(keys), len(values))
	}
	dict := &object{kind: kindDictionary}
	ref := rt.alloc(dict)
	for i := range keys {
		rt.dictSet(dict, keys[i], values[i])
	}
	return ref
}

// NewMutableDictionary implements objc.Runtime.
func (rt *Runtime) NewMutableDictionary(capacity int) objc.Ref {
	return rt.alloc(&object{
		kind:    kindDictionary,
		mutable: true,
		keys:    make([]objc.Ref, 0, capacity),
		values:  make([]objc.Ref, 0, capacity),
	})
}

func (rt *Runtime) dictSet(dict *object, key, value objc.Ref) {
	if key.IsNil() || value.IsNil() {
		klog.Fatalf("fakeobjc: nil key or value in dictionary insertion")
	}
	for i, existing := range dict.keys {
		if existing == key {
			rt.Retain(value)
			rt.Release(dict.values[i])
			dict.values[i] = value
			return
		}
	}
	dict.keys = append(dict.keys, rt.Retain(key))
	dict.values = append(dict.values, rt.Retain(value))
}

// DictionarySet implements objc.Runtime.
func (rt *Runtime) DictionarySet(dict, key, value objc.Ref) {
	obj := rt.get(dict, kindDictionary)
	if !obj.mutable {
		klog.Fatalf("fakeobjc: insertion into immutable dictionary %#x", uintptr(dict))
	}
	rt.dictSet(obj, key, value)
}

// DictionaryLen implements objc.Runtime.
func (rt *Runtime) DictionaryLen(dict objc.Ref) int {
	return len(rt.get(dict, kindDictionary).keys)
}

// DictionaryKeys implements objc.Runtime. Transient.
func (rt *Runtime) DictionaryKeys(dict objc.Ref) objc.Ref {
	obj := rt.get(dict, kindDictionary)
	return rt.autorelease(rt.NewArray(obj.keys))
}

// DictionaryGet implements objc.Runtime. Borrowed.
func (rt *Runtime) DictionaryGet(dict, key objc.Ref) objc.Ref {
	obj := rt.get(dict, kindDictionary)
	for i, existing := range obj.keys {
		if existing == key {
			return obj.values[i]
		}
	}
	return objc.Nil
}
