// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"runtime/debug"
	"sync"

	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ConditionFunc is the body of a while-loop condition block. It receives the
// loop's current arguments (borrowed: valid only during the call), may
// append intermediate result tensors to the caller-supplied mutable list,
// and returns the boolean condition tensor.
type ConditionFunc func(inputs []*Handle, results *MutableList) (*Handle, error)

// ListFunc is the body of a then/else branch, a while-loop after block, or a
// dependent block (which receives an empty inputs slice). Inputs are
// borrowed; the returned Handles stay owned by the closure's caller (the
// trampoline marshals them into a fresh foreign array without consuming
// them).
type ListFunc func(inputs []*Handle) ([]*Handle, error)

// IndexedListFunc is the body of a bounded for-loop: one loop-index tensor
// plus the current arguments, both borrowed.
type IndexedListFunc func(index *Handle, inputs []*Handle) ([]*Handle, error)

// Trampoline pairs a foreign-callable identity (the TrampolineID handed to
// the control-flow entry point) with the context keeping a host closure
// alive for exactly as long as the foreign runtime may invoke it.
//
// Lifecycle is strictly structural: create the Trampoline immediately before
// the foreign control-flow call that consumes it, and Close it (deferred)
// after that call returns. The foreign scheduler invokes trampolines zero or
// more times synchronously within that call -- never after it returns, and
// never concurrently with themselves -- so keeping the Trampoline alive on
// the installing stack frame is sufficient.
//
// A panic or error inside the closure never crosses into the foreign stack:
// it is caught at the trampoline boundary, recorded, and reported by Err
// once the installing call returns. Construction state is not recoverable
// after such a failure; installing call sites fail fast on Err.
type Trampoline struct {
	rt     objc.Runtime
	kind   objc.BlockKind
	id     objc.TrampolineID
	invoke func(args []objc.Ref) (objc.Ref, error)

	err   error
	calls int
}

// registry maps TrampolineIDs to live Trampolines. IDs, not pointers, cross
// the foreign boundary (cgo forbids passing Go pointers to C); the indirection
// through this table is what lets the foreign side call back into Go.
var registry = struct {
	sync.Mutex
	m    map[objc.TrampolineID]*Trampoline
	next objc.TrampolineID
}{m: make(map[objc.TrampolineID]*Trampoline), next: 1}

func init() {
	objc.SetDispatcher(dispatch)
}

func register(t *Trampoline) {
	registry.Lock()
	defer registry.Unlock()
	t.id = registry.next
	registry.next++
	registry.m[t.id] = t
}

func lookup(id objc.TrampolineID) *Trampoline {
	registry.Lock()
	defer registry.Unlock()
	return registry.m[id]
}

// WrapCondition registers fn as a condition-producer trampoline.
func WrapCondition(rt objc.Runtime, fn ConditionFunc) *Trampoline {
	t := &Trampoline{rt: rt, kind: objc.BlockCondition}
	t.invoke = func(args []objc.Ref) (objc.Ref, error) {
		if len(args) != 2 {
			return objc.Nil, errors.WithStack(&SignatureError{Op: "condition block", Want: 2, Got: len(args)})
		}
		inputs := borrowListItems(rt, args[0])
		results := &MutableList{h: Borrow(rt, args[1])}
		condition, err := fn(inputs, results)
		if err != nil {
			return objc.Nil, err
		}
		if condition.IsNil() {
			return objc.Nil, errors.New("condition block returned a nil condition tensor")
		}
		// The condition tensor is graph-owned; it is passed through
		// borrowed, no ownership transfer.
		return condition.Ref(), nil
	}
	register(t)
	return t
}

// WrapList registers fn as a tensor-list-producer trampoline.
func WrapList(rt objc.Runtime, fn ListFunc) *Trampoline {
	t := &Trampoline{rt: rt, kind: objc.BlockList}
	t.invoke = func(args []objc.Ref) (objc.Ref, error) {
		if len(args) != 1 {
			return objc.Nil, errors.WithStack(&SignatureError{Op: "tensor-list block", Want: 1, Got: len(args)})
		}
		outputs, err := fn(borrowListItems(rt, args[0]))
		if err != nil {
			return objc.Nil, err
		}
		return marshalBlockOutputs(rt, outputs)
	}
	register(t)
	return t
}

// WrapIndexedList registers fn as an index+tensor-list-producer trampoline.
func WrapIndexedList(rt objc.Runtime, fn IndexedListFunc) *Trampoline {
	t := &Trampoline{rt: rt, kind: objc.BlockIndexedList}
	t.invoke = func(args []objc.Ref) (objc.Ref, error) {
		if len(args) != 2 {
			return objc.Nil, errors.WithStack(&SignatureError{Op: "index+tensor-list block", Want: 2, Got: len(args)})
		}
		outputs, err := fn(Borrow(rt, args[0]), borrowListItems(rt, args[1]))
		if err != nil {
			return objc.Nil, err
		}
		return marshalBlockOutputs(rt, outputs)
	}
	register(t)
	return t
}

// marshalBlockOutputs converts a closure's returned Handles into the foreign
// array representation the block contract expects: a fresh +1 array whose
// ownership transfers to the foreign caller. The closure keeps its own
// Handles; the array retains the elements.
func marshalBlockOutputs(rt objc.Runtime, outputs []*Handle) (objc.Ref, error) {
	array, err := ToList(rt, outputs)
	if err != nil {
		return objc.Nil, err
	}
	return array.Forget(), nil
}

// ID returns the registry token passed to the foreign control-flow entry
// point in place of a function pointer and context.
func (t *Trampoline) ID() objc.TrampolineID { return t.id }

// Kind returns the trampoline's invocation signature tag.
func (t *Trampoline) Kind() objc.BlockKind { return t.kind }

// Calls returns how many times the foreign scheduler invoked the
// trampoline.
func (t *Trampoline) Calls() int { return t.calls }

// Err returns the first failure -- closure error or contained panic --
// recorded during dispatch, or nil. Call sites check it immediately after
// the installing foreign call returns.
func (t *Trampoline) Err() error { return t.err }

// Close removes the trampoline from the registry. The trampoline must never
// be invoked afterwards; the installing call site guarantees that by closing
// only after the foreign control-flow call has returned.
func (t *Trampoline) Close() {
	if t == nil || t.id == 0 {
		return
	}
	if t.err != nil {
		klog.V(1).Infof("bridge: trampoline %d (%s) closed with recorded error: %v", t.id, t.kind, t.err)
	}
	registry.Lock()
	defer registry.Unlock()
	delete(registry.m, t.id)
	t.id = 0
}

// dispatch is installed as the objc dispatcher: the single point where the
// foreign runtime re-enters Go. It contains closure panics (undefined
// behavior if they unwind the foreign stack), records the first failure on
// the Trampoline, and reports failure to the foreign side as a nil return.
func dispatch(id objc.TrampolineID, kind objc.BlockKind, args []objc.Ref) (out objc.Ref) {
	t := lookup(id)
	if t == nil {
		klog.Errorf("bridge: foreign runtime invoked unknown trampoline %d (%s) -- invoked after Close?", id, kind)
		return objc.Nil
	}
	if kind != t.kind {
		t.recordErr(errors.Errorf("trampoline %d invoked as %s, registered as %s", id, kind, t.kind))
		return objc.Nil
	}
	t.calls++

	defer func() {
		if recovered := recover(); recovered != nil {
			t.recordErr(errors.WithStack(&ClosurePanicError{Value: recovered, Stack: debug.Stack()}))
			out = objc.Nil
		}
	}()

	result, err := t.invoke(args)
	if err != nil {
		t.recordErr(err)
		return objc.Nil
	}
	return result
}

func (t *Trampoline) recordErr(err error) {
	klog.V(1).Infof("bridge: trampoline %d (%s) failed: %v", t.id, t.kind, err)
	if t.err == nil {
		t.err = err
	}
}

// FirstErr returns the first non-nil Err among trampolines, checked in
// order. Installing call sites with several trampolines use it right after
// the foreign call returns.
func FirstErr(trampolines ...*Trampoline) error {
	for _, t := range trampolines {
		if t == nil {
			continue
		}
		if err := t.Err(); err != nil {
			return err
		}
	}
	return nil
}
