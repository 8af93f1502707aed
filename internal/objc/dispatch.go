package objc

import (
	"sync/atomic"

	"k8s.io/klog/v2"
)

// TrampolineID identifies a wrapped host closure registered with the bridge's
// trampoline registry. It is the only thing that crosses the foreign boundary
// for a callback: never a Go pointer. 0 means "no trampoline" (e.g. an absent
// else-branch).
type TrampolineID uintptr

// BlockKind tags the invocation signature of a trampoline, mirroring the
// three block types the foreign control-flow API accepts.
type BlockKind int32

const (
	// BlockCondition receives (inputs array, results mutable array) and
	// returns the condition tensor. Used by while-loop before blocks.
	BlockCondition BlockKind = iota

	// BlockList receives (inputs array) and returns a new array of result
	// tensors (+1, ownership transferred to the invoking runtime). Used by
	// then/else branches, while-loop after blocks, and dependent blocks
	// (which receive an empty inputs array).
	BlockList

	// BlockIndexedList receives (index tensor, inputs array) and returns a
	// new array of result tensors (+1). Used by for-loop bodies.
	BlockIndexedList
)

func (k BlockKind) String() string {
	switch k {
	case BlockCondition:
		return "condition"
	case BlockList:
		return "tensor-list"
	case BlockIndexedList:
		return "index+tensor-list"
	}
	return "invalid"
}

// DispatchFunc is installed by the trampoline registry. Runtime
// implementations call it (through CallTrampoline) whenever the foreign
// scheduler invokes a block. It never panics: closure panics are contained on
// the registry side and reported as a nil return.
type DispatchFunc func(id TrampolineID, kind BlockKind, args []Ref) Ref

var dispatcher atomic.Pointer[DispatchFunc]

// SetDispatcher installs the trampoline dispatch function. Called once, from
// the bridge package's init.
func SetDispatcher(fn DispatchFunc) {
	dispatcher.Store(&fn)
}

// CallTrampoline forwards a foreign block invocation to the registered
// dispatcher. Runtime implementations must call trampolines only through
// this function.
func CallTrampoline(id TrampolineID, kind BlockKind, args []Ref) Ref {
	fnPtr := dispatcher.Load()
	if fnPtr == nil {
		klog.Errorf("objc: trampoline %d invoked before the dispatcher was installed", id)
		return Nil
	}
	return (*fnPtr)(id, kind, args)
}
