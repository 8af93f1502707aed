// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fakeobjc

import (
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// The control-flow constructs below reproduce the invocation pattern of the
// real scheduler: each trampoline is invoked synchronously, zero or more
// times, strictly within the installing call, through objc.CallTrampoline.
// Predicates and loop bounds must constant-fold, since the emulation unrolls
// at construction time. A nil return from a trampoline (closure failure,
// contained on the bridge side) aborts the construct with a nil result.

// foldScalar evaluates a tensor that must be a construction-time scalar
// constant.
func (rt *Runtime) foldScalar(tensor objc.Ref) (float64, error) {
	values, err := rt.eval(tensor, nil)
	if err != nil {
		return 0, errors.WithMessage(err, "control-flow predicate/bound must be constant-foldable at construction")
	}
	if len(values) != 1 {
		return 0, errors.Errorf("control-flow predicate/bound must be scalar, got %d elements", len(values))
	}
	return values[0], nil
}

// items returns a copy of an array's element refs (borrowed: kept alive by
// the graph, which owns every tensor).
func (rt *Runtime) items(array objc.Ref) []objc.Ref {
	if array.IsNil() {
		return nil
	}
	obj := rt.get(array, kindArray)
	out := make([]objc.Ref, len(obj.items))
	copy(out, obj.items)
	return out
}

// callListBlock invokes a tensor-list trampoline with the given inputs and
// returns the produced tensor refs, consuming the +1 the trampoline
// transfers on its result array.
func (rt *Runtime) callListBlock(id objc.TrampolineID, kind objc.BlockKind, args []objc.Ref) ([]objc.Ref, bool) {
	out := objc.CallTrampoline(id, kind, args)
	if out.IsNil() {
		return nil, false
	}
	produced := rt.items(out)
	rt.Release(out)
	return produced, true
}

// ControlDependency implements objc.Runtime.
func (rt *Runtime) ControlDependency(graph, ops objc.Ref, dependent objc.TrampolineID, name objc.Ref) objc.Ref {
	_ = name
	rt.get(graph, kindGraph)
	if !ops.IsNil() {
		rt.get(ops, kindArray)
	}
	empty := rt.NewArray(nil)
	defer rt.Release(empty)
	produced, ok := rt.callListBlock(dependent, objc.BlockList, []objc.Ref{empty})
	if !ok {
		return objc.Nil
	}
	return rt.autorelease(rt.NewArray(produced))
}

// If implements objc.Runtime.
func (rt *Runtime) If(graph, predicate objc.Ref, thenBranch, elseBranch objc.TrampolineID, name objc.Ref) objc.Ref {
	_ = name
	rt.get(graph, kindGraph)
	pred, err := rt.foldScalar(predicate)
	if err != nil {
		klog.Errorf("fakeobjc: if: %v", err)
		return objc.Nil
	}
	branch := thenBranch
	if pred == 0 {
		branch = elseBranch
	}
	if branch == 0 {
		// Absent else-branch taken: the construct yields no tensors.
		return rt.autorelease(rt.NewArray(nil))
	}
	empty := rt.NewArray(nil)
	defer rt.Release(empty)
	produced, ok := rt.callListBlock(branch, objc.BlockList, []objc.Ref{empty})
	if !ok {
		return objc.Nil
	}
	return rt.autorelease(rt.NewArray(produced))
}

// While implements objc.Runtime.
func (rt *Runtime) While(graph, initialInputs objc.Ref, before, after objc.TrampolineID, name objc.Ref) objc.Ref {
	_ = name
	rt.get(graph, kindGraph)
	args := rt.items(initialInputs)

	for range maxLoopIterations {
		argsArray := rt.NewArray(args)
		results := rt.NewMutableArray()
		condition := objc.CallTrampoline(before, objc.BlockCondition, []objc.Ref{argsArray, results})
		rt.Release(argsArray)
		if condition.IsNil() {
			rt.Release(results)
			return objc.Nil
		}
		keepGoing, err := rt.foldScalar(condition)
		loopResults := rt.items(results)
		rt.Release(results)
		if err != nil {
			klog.Errorf("fakeobjc: while: %v", err)
			return objc.Nil
		}
		if keepGoing == 0 {
			return rt.autorelease(rt.NewArray(loopResults))
		}

		bodyArray := rt.NewArray(loopResults)
		produced, ok := rt.callListBlock(after, objc.BlockList, []objc.Ref{bodyArray})
		rt.Release(bodyArray)
		if !ok {
			return objc.Nil
		}
		args = produced
	}
	klog.Errorf("fakeobjc: while: condition still true after %d iterations", maxLoopIterations)
	return objc.Nil
}

// ForLoop implements objc.Runtime.
func (rt *Runtime) ForLoop(graph, lowerBound, upperBound, step, initialArgs objc.Ref, body objc.TrampolineID, name objc.Ref) objc.Ref {
	_ = name
	rt.get(graph, kindGraph)
	lower, err := rt.foldScalar(lowerBound)
	if err == nil {
		var upper float64
		upper, err = rt.foldScalar(upperBound)
		if err == nil {
			var inc float64
			inc, err = rt.foldScalar(step)
			if err == nil {
				if inc <= 0 {
					err = errors.Errorf("step must be positive, got %v", inc)
				} else {
					return rt.runForLoop(graph, int64(lower), int64(upper), int64(inc), initialArgs, body)
				}
			}
		}
	}
	klog.Errorf("fakeobjc: for: %v", err)
	return objc.Nil
}

// ForLoopIterations implements objc.Runtime.
func (rt *Runtime) ForLoopIterations(graph, iterations, initialArgs objc.Ref, body objc.TrampolineID, name objc.Ref) objc.Ref {
	_ = name
	rt.get(graph, kindGraph)
	n, err := rt.foldScalar(iterations)
	if err != nil {
		klog.Errorf("fakeobjc: for: %v", err)
		return objc.Nil
	}
	return rt.runForLoop(graph, 0, int64(n), 1, initialArgs, body)
}

func (rt *Runtime) runForLoop(graph objc.Ref, lower, upper, step int64, initialArgs objc.Ref, body objc.TrampolineID) objc.Ref {
	args := rt.items(initialArgs)
	for i := lower; i < upper; i += step {
		index := rt.ConstantScalar(graph, float64(i), dtypeInt32)
		argsArray := rt.NewArray(args)
		produced, ok := rt.callListBlock(body, objc.BlockIndexedList, []objc.Ref{index, argsArray})
		rt.Release(argsArray)
		if !ok {
			return objc.Nil
		}
		args = produced
	}
	return rt.autorelease(rt.NewArray(args))
}
