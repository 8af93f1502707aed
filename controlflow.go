// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph

import (
	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
)

// The control-flow constructs below take Go closures and install them as
// foreign blocks for the duration of one construct call. The foreign
// framework invokes the closures synchronously, zero or more times, while
// the construct call is on the stack; closure panics and errors are
// contained at the boundary and surface as the construct's error return.
//
// Tensors passed into a closure are borrowed: they are valid only during
// the call and must not be stored. Tensors returned by a closure and by the
// constructs themselves are owned by the caller.

// LoopResults collects intermediate result tensors inside a while-loop
// condition closure; see Graph.While.
type LoopResults struct {
	list *bridge.MutableList
}

// Append adds tensors to the loop's result set.
func (r *LoopResults) Append(tensors ...*Tensor) {
	r.list.Append(tensorHandles(tensors)...)
}

// tensorsFromResultArray converts the transient tensor array returned by a
// control-flow entry point into owned Tensors. A nil array is a
// foreign-side failure for these entry points.
func (g *Graph) tensorsFromResultArray(ref objc.Ref, op string) ([]*Tensor, error) {
	array, err := bridge.RetainAndWrap(g.rt, ref, op)
	if err != nil {
		return nil, err
	}
	defer array.Release()
	handles, err := bridge.FromList(array)
	if err != nil {
		return nil, err
	}
	return g.wrapTensors(handles), nil
}

// listClosure adapts a tensor-list closure to the Handle level.
func (g *Graph) listClosure(fn func(inputs []*Tensor) ([]*Tensor, error)) bridge.ListFunc {
	return func(inputs []*bridge.Handle) ([]*bridge.Handle, error) {
		outputs, err := fn(g.wrapTensors(inputs))
		if err != nil {
			return nil, err
		}
		return tensorHandles(outputs), nil
	}
}

// If records a conditional: thenFn's tensors are produced when pred is
// true, elseFn's when it is false. elseFn may be nil when the conditional
// produces no results. Both branches must produce the same number and types
// of tensors.
func (g *Graph) If(pred *Tensor, thenFn, elseFn func() ([]*Tensor, error), name string) (results []*Tensor, err error) {
	const op = "MPSGraph ifWithPredicateTensor:thenBlock:elseBlock:name:"
	g.check(op, pred)
	err = bridge.WithPool(g.rt, func() error {
		nameH, err := nameHandle(g.rt, name)
		if err != nil {
			return err
		}
		defer nameH.Release()

		noInputs := func(fn func() ([]*Tensor, error)) func([]*Tensor) ([]*Tensor, error) {
			return func([]*Tensor) ([]*Tensor, error) { return fn() }
		}
		thenTr := bridge.WrapList(g.rt, g.listClosure(noInputs(thenFn)))
		defer thenTr.Close()
		var elseTr *bridge.Trampoline
		var elseID objc.TrampolineID
		if elseFn != nil {
			elseTr = bridge.WrapList(g.rt, g.listClosure(noInputs(elseFn)))
			defer elseTr.Close()
			elseID = elseTr.ID()
		}

		ref := g.rt.If(g.h.Ref(), pred.h.Ref(), thenTr.ID(), elseID, nameH.Ref())
		if err := bridge.FirstErr(thenTr, elseTr); err != nil {
			return err
		}
		results, err = g.tensorsFromResultArray(ref, op)
		return err
	})
	return
}

// While records a while-loop. before receives the current loop arguments
// and returns the boolean condition tensor; the tensors it appends to
// LoopResults become the loop's results when the condition is false, and
// the inputs of after when it is true. after computes the next iteration's
// arguments.
func (g *Graph) While(initial []*Tensor,
	before func(inputs []*Tensor, results *LoopResults) (*Tensor, error),
	after func(inputs []*Tensor) ([]*Tensor, error),
	name string) (results []*Tensor, err error) {
	const op = "MPSGraph whileWithInitialInputs:before:after:name:"
	g.check(op, initial...)
	err = bridge.WithPool(g.rt, func() error {
		nameH, err := nameHandle(g.rt, name)
		if err != nil {
			return err
		}
		defer nameH.Release()
		initialList, err := bridge.ToList(g.rt, tensorHandles(initial))
		if err != nil {
			return err
		}
		defer initialList.Release()

		beforeTr := bridge.WrapCondition(g.rt, func(inputs []*bridge.Handle, list *bridge.MutableList) (*bridge.Handle, error) {
			condition, err := before(g.wrapTensors(inputs), &LoopResults{list: list})
			if err != nil {
				return nil, err
			}
			return condition.h, nil
		})
		defer beforeTr.Close()
		afterTr := bridge.WrapList(g.rt, g.listClosure(after))
		defer afterTr.Close()

		ref := g.rt.While(g.h.Ref(), initialList.Ref(), beforeTr.ID(), afterTr.ID(), nameH.Ref())
		if err := bridge.FirstErr(beforeTr, afterTr); err != nil {
			return err
		}
		results, err = g.tensorsFromResultArray(ref, op)
		return err
	})
	return
}

// runForLoop is the shared tail of ForLoop and ForLoopIterations.
func (g *Graph) runForLoop(op string, initial []*Tensor,
	body func(index *Tensor, args []*Tensor) ([]*Tensor, error),
	name string,
	install func(initialArgs, nameRef objc.Ref, body objc.TrampolineID) objc.Ref) (results []*Tensor, err error) {
	err = bridge.WithPool(g.rt, func() error {
		nameH, err := nameHandle(g.rt, name)
		if err != nil {
			return err
		}
		defer nameH.Release()
		initialList, err := bridge.ToList(g.rt, tensorHandles(initial))
		if err != nil {
			return err
		}
		defer initialList.Release()

		bodyTr := bridge.WrapIndexedList(g.rt, func(index *bridge.Handle, inputs []*bridge.Handle) ([]*bridge.Handle, error) {
			outputs, err := body(&Tensor{graph: g, h: index}, g.wrapTensors(inputs))
			if err != nil {
				return nil, err
			}
			return tensorHandles(outputs), nil
		})
		defer bodyTr.Close()

		ref := install(initialList.Ref(), nameH.Ref(), bodyTr.ID())
		if err := bodyTr.Err(); err != nil {
			return err
		}
		results, err = g.tensorsFromResultArray(ref, op)
		return err
	})
	return
}

// ForLoop records a bounded loop over [lower, upper) with the given step.
// body receives the loop index and the current arguments, and returns the
// next iteration's arguments; the last iteration's outputs are the loop's
// results.
func (g *Graph) ForLoop(lower, upper, step *Tensor, initial []*Tensor,
	body func(index *Tensor, args []*Tensor) ([]*Tensor, error),
	name string) ([]*Tensor, error) {
	const op = "MPSGraph forLoopWithLowerBound:upperBound:step:initialBodyArguments:body:name:"
	g.check(op, append([]*Tensor{lower, upper, step}, initial...)...)
	return g.runForLoop(op, initial, body, name, func(initialArgs, nameRef objc.Ref, bodyID objc.TrampolineID) objc.Ref {
		return g.rt.ForLoop(g.h.Ref(), lower.h.Ref(), upper.h.Ref(), step.h.Ref(), initialArgs, bodyID, nameRef)
	})
}

// ForLoopIterations records a bounded loop with an explicit iteration count
// tensor; the index runs over [0, iterations).
func (g *Graph) ForLoopIterations(iterations *Tensor, initial []*Tensor,
	body func(index *Tensor, args []*Tensor) ([]*Tensor, error),
	name string) ([]*Tensor, error) {
	const op = "MPSGraph forLoopWithNumberOfIterations:initialBodyArguments:body:name:"
	g.check(op, append([]*Tensor{iterations}, initial...)...)
	return g.runForLoop(op, initial, body, name, func(initialArgs, nameRef objc.Ref, bodyID objc.TrampolineID) objc.Ref {
		return g.rt.ForLoopIterations(g.h.Ref(), iterations.h.Ref(), initialArgs, bodyID, nameRef)
	})
}

// ControlDependency produces dependent's tensors with an execution
// dependency on ops: they only run after every operation in ops completes.
func (g *Graph) ControlDependency(ops []*Operation, dependent func() ([]*Tensor, error), name string) (results []*Tensor, err error) {
	const op = "MPSGraph controlDependencyWithOperations:dependentBlock:name:"
	g.check(op)
	err = bridge.WithPool(g.rt, func() error {
		nameH, err := nameHandle(g.rt, name)
		if err != nil {
			return err
		}
		defer nameH.Release()
		opsList, err := bridge.ToList(g.rt, operationHandles(ops))
		if err != nil {
			return err
		}
		defer opsList.Release()

		dependentTr := bridge.WrapList(g.rt, g.listClosure(func([]*Tensor) ([]*Tensor, error) {
			return dependent()
		}))
		defer dependentTr.Close()

		ref := g.rt.ControlDependency(g.h.Ref(), opsList.Ref(), dependentTr.ID(), nameH.Ref())
		if err := dependentTr.Err(); err != nil {
			return err
		}
		results, err = g.tensorsFromResultArray(ref, op)
		return err
	})
	return
}
