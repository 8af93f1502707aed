package mpsgraph

import (
	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
)

// Tensor is one symbolic value in a Graph. Tensors are created and owned by
// their Graph; the wrapper holds an independent retain, so a Tensor stays
// valid until both it is released and its Graph finalized. Tensor identity
// -- what makes two Tensors "the same" as feed or result keys -- is the
// foreign object, not the Go pointer.
type Tensor struct {
	graph *Graph
	h     *bridge.Handle
}

// wrapTensor promotes a transient tensor reference returned by a graph
// operation into an owned Tensor. op names the foreign call for error
// reporting.
func (g *Graph) wrapTensor(ref objc.Ref, op string) (*Tensor, error) {
	h, err := bridge.RetainAndWrap(g.rt, ref, op)
	if err != nil {
		return nil, err
	}
	return &Tensor{graph: g, h: h}, nil
}

// wrapTensors wraps a slice of Handles as Tensors. The Tensors inherit
// whatever ownership the Handles carry: owned for handles enumerated from a
// construct's result array, borrowed for trampoline arguments (which must
// not escape the closure call).
func (g *Graph) wrapTensors(handles []*bridge.Handle) []*Tensor {
	tensors := make([]*Tensor, len(handles))
	for i, h := range handles {
		tensors[i] = &Tensor{graph: g, h: h}
	}
	return tensors
}

func tensorHandles(tensors []*Tensor) []*bridge.Handle {
	handles := make([]*bridge.Handle, len(tensors))
	for i, t := range tensors {
		handles[i] = t.h
	}
	return handles
}

// Graph returns the graph that owns this tensor.
func (t *Tensor) Graph() *Graph { return t.graph }

// DataType returns the tensor's element type.
func (t *Tensor) DataType() DataType {
	if t == nil || t.h.IsNil() {
		return InvalidDType
	}
	return DataType(t.graph.rt.TensorDType(t.h.Ref()))
}

// Shape returns the tensor's static shape, or nil when the shape is not
// known at construction time.
func (t *Tensor) Shape() (shape Shape, err error) {
	if t == nil || t.h.IsNil() {
		return nil, nil
	}
	err = bridge.WithPool(t.graph.rt, func() error {
		shape, err = shapeFromList(t.graph.rt, t.graph.rt.TensorShape(t.h.Ref()))
		return err
	})
	return
}

// Operation returns the operation that produced this tensor, as an
// independently retained wrapper.
func (t *Tensor) Operation() (*Operation, error) {
	t.graph.check("Tensor.Operation", t)
	// The operation reference is a borrowed property of the graph-owned
	// tensor; promote it so the wrapper outlives this call.
	h, err := bridge.RetainAndWrap(t.graph.rt, t.graph.rt.TensorOperation(t.h.Ref()), "MPSGraphTensor operation")
	if err != nil {
		return nil, err
	}
	return &Operation{graph: t.graph, h: h}, nil
}

// Release drops the Tensor's retain on the foreign tensor. The foreign
// object stays alive while its Graph does; Release is only needed to bound
// wrapper lifetimes in long construction loops.
func (t *Tensor) Release() {
	if t != nil {
		t.h.Release()
	}
}

// Operation is one recorded operation in a Graph, used as a target for
// ControlDependency and run target-operations lists.
type Operation struct {
	graph *Graph
	h     *bridge.Handle
}

// Release drops the wrapper's retain on the foreign operation.
func (o *Operation) Release() {
	if o != nil {
		o.h.Release()
	}
}

func operationHandles(ops []*Operation) []*bridge.Handle {
	handles := make([]*bridge.Handle, len(ops))
	for i, o := range ops {
		handles[i] = o.h
	}
	return handles
}
