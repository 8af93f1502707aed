// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"k8s.io/klog/v2"
)

// Graph wraps one foreign computation graph. All methods are synchronous
// and must be called from a single goroutine; the foreign scheduler may
// parallelize execution internally, but graph construction is a blocking,
// single-threaded sequence.
//
// Release resources deterministically with Finalize; a Graph is not
// reclaimed by the garbage collector.
type Graph struct {
	rt   objc.Runtime
	h    *bridge.Handle
	name string
}

// Option configures New.
type Option func(*graphConfig)

type graphConfig struct {
	rt   objc.Runtime
	spec string
	name string
}

// WithName attaches a debug name to the graph, used in log messages and as
// the default prefix for operation names.
func WithName(name string) Option {
	return func(c *graphConfig) { c.name = name }
}

// WithRuntimeSpec selects the foreign runtime implementation, as "name" or
// "name:config" (see the MPSGRAPH_RUNTIME environment variable). The
// default is the real runtime on macOS.
func WithRuntimeSpec(spec string) Option {
	return func(c *graphConfig) { c.spec = spec }
}

// withRuntime injects a runtime instance directly; used by tests and by
// Device-sharing constructors.
func withRuntime(rt objc.Runtime) Option {
	return func(c *graphConfig) { c.rt = rt }
}

// New creates an empty graph.
func New(opts ...Option) (*Graph, error) {
	var config graphConfig
	for _, opt := range opts {
		opt(&config)
	}
	rt := config.rt
	if rt == nil {
		var err error
		rt, err = objc.New(config.spec)
		if err != nil {
			return nil, err
		}
	}
	h, err := bridge.AcquireOwned(rt, rt.NewGraph(), "MPSGraph new")
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("mpsgraph: new graph %q on runtime %q", config.name, rt.Name())
	return &Graph{rt: rt, h: h, name: config.name}, nil
}

// Name returns the graph's debug name.
func (g *Graph) Name() string { return g.name }

// Finalize releases the foreign graph immediately. The Graph, its Tensors
// and its Operations must not be used afterwards.
func (g *Graph) Finalize() {
	if g.h != nil {
		g.h.Release()
		g.h = nil
	}
}

// check panics (with a stack trace, see the exceptions package) on
// programmer errors: finalized graphs and tensors from a different graph.
// These are not runtime failures and are not returned as errors.
func (g *Graph) check(op string, inputs ...*Tensor) {
	if g == nil || g.h == nil {
		exceptions.Panicf("%s: graph is nil or was finalized", op)
	}
	for i, input := range inputs {
		if input == nil || input.h.IsNil() {
			exceptions.Panicf("%s: input tensor #%d is nil", op, i)
		}
		if input.graph != g {
			exceptions.Panicf("%s: input tensor #%d belongs to a different graph", op, i)
		}
	}
}

// nameHandle marshals an optional operation name, nil for "".
func nameHandle(rt objc.Runtime, name string) (*bridge.Handle, error) {
	if name == "" {
		return nil, nil
	}
	return bridge.AcquireOwned(rt, rt.NewString(name), "NSString stringWithUTF8String:")
}

// Placeholder creates a graph input tensor to be fed at run time.
func (g *Graph) Placeholder(dtype DataType, shape Shape, name string) (t *Tensor, err error) {
	g.check("Placeholder")
	err = bridge.WithPool(g.rt, func() error {
		shapeList, err := shape.marshal(g.rt)
		if err != nil {
			return err
		}
		defer shapeList.Release()
		nameH, err := nameHandle(g.rt, name)
		if err != nil {
			return err
		}
		defer nameH.Release()
		t, err = g.wrapTensor(
			g.rt.Placeholder(g.h.Ref(), shapeList.Ref(), uint32(dtype), nameH.Ref()),
			"MPSGraph placeholderWithShape:dataType:name:")
		return err
	})
	return
}

// Constant creates a scalar constant tensor.
func (g *Graph) Constant(value float64, dtype DataType) (t *Tensor, err error) {
	g.check("Constant")
	err = bridge.WithPool(g.rt, func() error {
		t, err = g.wrapTensor(
			g.rt.ConstantScalar(g.h.Ref(), value, uint32(dtype)),
			"MPSGraph constantWithScalar:dataType:")
		return err
	})
	return
}

// ConstantData creates a constant tensor from raw bytes in the given shape
// and dtype.
func (g *Graph) ConstantData(data []byte, shape Shape, dtype DataType) (t *Tensor, err error) {
	g.check("ConstantData")
	err = bridge.WithPool(g.rt, func() error {
		shapeList, err := shape.marshal(g.rt)
		if err != nil {
			return err
		}
		defer shapeList.Release()
		t, err = g.wrapTensor(
			g.rt.ConstantData(g.h.Ref(), data, shapeList.Ref(), uint32(dtype)),
			"MPSGraph constantWithData:shape:dataType:")
		return err
	})
	return
}

// Foreign selectors of the binary operations exposed below. The full
// operation catalog of the framework is deliberately not mirrored here;
// these exist to exercise the bridge and cover the common arithmetic.
const (
	selAdd  = "additionWithPrimaryTensor:secondaryTensor:name:"
	selSub  = "subtractionWithPrimaryTensor:secondaryTensor:name:"
	selMul  = "multiplicationWithPrimaryTensor:secondaryTensor:name:"
	selLess = "lessThanWithPrimaryTensor:secondaryTensor:name:"
)

func (g *Graph) binaryOp(selector string, a, b *Tensor, name string) (t *Tensor, err error) {
	g.check(selector, a, b)
	err = bridge.WithPool(g.rt, func() error {
		nameH, err := nameHandle(g.rt, name)
		if err != nil {
			return err
		}
		defer nameH.Release()
		t, err = g.wrapTensor(
			g.rt.BinaryOp(g.h.Ref(), selector, a.h.Ref(), b.h.Ref(), nameH.Ref()),
			"MPSGraph "+selector)
		return err
	})
	return
}

// Add returns a+b, element-wise.
func (g *Graph) Add(a, b *Tensor, name string) (*Tensor, error) {
	return g.binaryOp(selAdd, a, b, name)
}

// Sub returns a-b, element-wise.
func (g *Graph) Sub(a, b *Tensor, name string) (*Tensor, error) {
	return g.binaryOp(selSub, a, b, name)
}

// Mul returns a*b, element-wise.
func (g *Graph) Mul(a, b *Tensor, name string) (*Tensor, error) {
	return g.binaryOp(selMul, a, b, name)
}

// LessThan returns the boolean tensor a<b, element-wise.
func (g *Graph) LessThan(a, b *Tensor, name string) (*Tensor, error) {
	return g.binaryOp(selLess, a, b, name)
}
