// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fakeobjc

import (
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// maxLoopIterations caps construction-time unrolling of while loops, so a
// condition that never constant-folds to false fails instead of hanging.
const maxLoopIterations = 10_000

// binaryKernels maps the foreign binary-op selectors the emulation
// understands to their element-wise kernel. Unknown selectors make BinaryOp
// return nil, the foreign failure convention.
var binaryKernels = map[string]func(a, b float64) float64{
	"additionWithPrimaryTensor:secondaryTensor:name:":       func(a, b float64) float64 { return a + b },
	"subtractionWithPrimaryTensor:secondaryTensor:name:":    func(a, b float64) float64 { return a - b },
	"multiplicationWithPrimaryTensor:secondaryTensor:name:": func(a, b float64) float64 { return a * b },
	"lessThanWithPrimaryTensor:secondaryTensor:name:": func(a, b float64) float64 {
		if a < b {
			return 1
		}
		return 0
	},
}

// NewGraph implements objc.Runtime.
func (rt *Runtime) NewGraph() objc.Ref {
	return rt.alloc(&object{kind: kindGraph})
}

// NewDevice implements objc.Runtime.
func (rt *Runtime) NewDevice() objc.Ref {
	return rt.alloc(&object{kind: kindDevice})
}

// newTensor allocates a tensor and its producing operation, transfers both
// to the graph's ownership, and returns the tensor as a transient reference
// -- the convention every graph operation shares.
func (rt *Runtime) newTensor(graph objc.Ref, t *object) objc.Ref {
	g := rt.get(graph, kindGraph)
	t.kind = kindTensor
	t.graph = graph
	t.operation = rt.alloc(&object{kind: kindOperation, str: t.op, graph: graph})
	ref := rt.alloc(t)
	// The creation +1 of both objects transfers to the graph, which keeps
	// its tensors and operations alive for its whole lifetime.
	g.items = append(g.items, ref, t.operation)
	return rt.autorelease(rt.Retain(ref))
}

func (rt *Runtime) shapeValues(shape objc.Ref) []int64 {
	if shape.IsNil() {
		return nil
	}
	obj := rt.get(shape, kindArray)
	dims := make([]int64, len(obj.items))
	for i, item := range obj.items {
		dims[i] = rt.get(item, kindNumber).num
	}
	return dims
}

func shapeSize(dims []int64) int {
	size := 1
	for _, dim := range dims {
		size *= int(dim)
	}
	return size
}

// Placeholder implements objc.Runtime.
func (rt *Runtime) Placeholder(graph, shape objc.Ref, dataType uint32, name objc.Ref) objc.Ref {
	_ = name
	return rt.newTensor(graph, &object{
		op:    "placeholder",
		shape: rt.shapeValues(shape),
		dtype: dataType,
	})
}

// ConstantScalar implements objc.Runtime.
func (rt *Runtime) ConstantScalar(graph objc.Ref, value float64, dataType uint32) objc.Ref {
	return rt.newTensor(graph, &object{
		op:     "constant",
		folded: []float64{value},
		dtype:  dataType,
	})
}

// ConstantData implements objc.Runtime.
func (rt *Runtime) ConstantData(graph objc.Ref, data []byte, shape objc.Ref, dataType uint32) objc.Ref {
	dims := rt.shapeValues(shape)
	folded, err := decodeValues(&object{data: data, dtype: dataType, shape: dims})
	if err != nil {
		klog.V(1).Infof("fakeobjc: constant data: %v", err)
		return objc.Nil
	}
	return rt.newTensor(graph, &object{
		op:     "constant",
		folded: folded,
		shape:  dims,
		dtype:  dataType,
	})
}

// BinaryOp implements objc.Runtime: selector-dispatched two-tensor
// operation, constant-folded when both inputs folded.
func (rt *Runtime) BinaryOp(graph objc.Ref, selector string, primary, secondary, name objc.Ref) objc.Ref {
	_ = name
	kernel, known := binaryKernels[selector]
	if !known {
		klog.V(1).Infof("fakeobjc: unknown selector %q, returning nil", selector)
		return objc.Nil
	}
	lhs := rt.get(primary, kindTensor)
	rhs := rt.get(secondary, kindTensor)
	t := &object{
		op:     selector,
		inputs: []objc.Ref{primary, secondary},
		shape:  lhs.shape,
		dtype:  lhs.dtype,
	}
	if selector == "lessThanWithPrimaryTensor:secondaryTensor:name:" {
		t.dtype = dtypeBool
	}
	if lhs.folded != nil && rhs.folded != nil {
		folded, err := applyKernel(kernel, lhs.folded, rhs.folded)
		if err != nil {
			klog.V(1).Infof("fakeobjc: %q fold failed: %v", selector, err)
			return objc.Nil
		}
		t.folded = folded
	}
	return rt.newTensor(graph, t)
}

func applyKernel(kernel func(a, b float64) float64, lhs, rhs []float64) ([]float64, error) {
	// Scalar broadcast only; anything fancier is outside the emulation.
	switch {
	case len(lhs) == len(rhs):
		out := make([]float64, len(lhs))
		for i := range lhs {
			out[i] = kernel(lhs[i], rhs[i])
		}
		return out, nil
	case len(rhs) == 1:
		out := make([]float64, len(lhs))
		for i := range lhs {
			out[i] = kernel(lhs[i], rhs[0])
		}
		return out, nil
	case len(lhs) == 1:
		out := make([]float64, len(rhs))
		for i := range rhs {
			out[i] = kernel(lhs[0], rhs[i])
		}
		return out, nil
	}
	return nil, errors.Errorf("shape mismatch: %d vs %d elements", len(lhs), len(rhs))
}

// TensorShape implements objc.Runtime. Transient.
func (rt *Runtime) TensorShape(tensor objc.Ref) objc.Ref {
	t := rt.get(tensor, kindTensor)
	if t.shape == nil {
		return objc.Nil
	}
	return rt.numberArray(t.shape)
}

// numberArray builds a transient foreign array of boxed numbers.
func (rt *Runtime) numberArray(values []int64) objc.Ref {
	numbers := make([]objc.Ref, len(values))
	for i, value := range values {
		numbers[i] = rt.NewNumber(value)
	}
	array := rt.NewArray(numbers)
	for _, num := range numbers {
		rt.Release(num) // retained by the array
	}
	return rt.autorelease(array)
}

// TensorDType implements objc.Runtime.
func (rt *Runtime) TensorDType(tensor objc.Ref) uint32 {
	return rt.get(tensor, kindTensor).dtype
}

// TensorOperation implements objc.Runtime. Borrowed: the graph keeps the
// operation alive.
func (rt *Runtime) TensorOperation(tensor objc.Ref) objc.Ref {
	return rt.get(tensor, kindTensor).operation
}

// NewTensorData implements objc.Runtime.
func (rt *Runtime) NewTensorData(device objc.Ref, data []byte, shape objc.Ref, dataType uint32) objc.Ref {
	if !device.IsNil() {
		rt.get(device, kindDevice)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return rt.alloc(&object{
		kind:  kindTensorData,
		data:  payload,
		shape: rt.shapeValues(shape),
		dtype: dataType,
	})
}

// TensorDataBytes implements objc.Runtime.
func (rt *Runtime) TensorDataBytes(tensorData objc.Ref) ([]byte, error) {
	obj := rt.get(tensorData, kindTensorData)
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// TensorDataDType implements objc.Runtime.
func (rt *Runtime) TensorDataDType(tensorData objc.Ref) uint32 {
	return rt.get(tensorData, kindTensorData).dtype
}

// TensorDataShape implements objc.Runtime. Transient.
func (rt *Runtime) TensorDataShape(tensorData objc.Ref) objc.Ref {
	return rt.numberArray(rt.get(tensorData, kindTensorData).shape)
}

// Run implements objc.Runtime: evaluates every target tensor from the feeds
// and returns a transient dictionary of tensor to tensor-data. Returns nil
// on evaluation failure, or when no targets were requested (the nil-on-empty
// convention of the foreign entry points).
func (rt *Runtime) Run(graph, feeds, targets, targetOps, desc objc.Ref) objc.Ref {
	_ = desc
	rt.get(graph, kindGraph)
	rt.lastRunTargetOps = targetOps
	rt.lastRunRecorded = true
	if !targetOps.IsNil() {
		rt.get(targetOps, kindArray) // operations "complete" trivially
	}

	env := make(map[objc.Ref][]float64)
	if !feeds.IsNil() {
		feedsObj := rt.get(feeds, kindDictionary)
		for i, key := range feedsObj.keys {
			t := rt.get(key, kindTensor)
			if t.op != "placeholder" {
				klog.Errorf("fakeobjc: feed key %#x is not a placeholder", uintptr(key))
				return objc.Nil
			}
			values, err := decodeValues(rt.get(feedsObj.values[i], kindTensorData))
			if err != nil {
				klog.Errorf("fakeobjc: feed decode: %v", err)
				return objc.Nil
			}
			env[key] = values
		}
	}

	targetRefs := rt.get(targets, kindArray).items
	if len(targetRefs) == 0 && targetOps.IsNil() {
		return objc.Nil
	}

	keys := make([]objc.Ref, 0, len(targetRefs))
	values := make([]objc.Ref, 0, len(targetRefs))
	defer func() {
		for _, value := range values {
			rt.Release(value) // dictionary (if built) retained them
		}
	}()
	for _, target := range targetRefs {
		result, err := rt.eval(target, env)
		if err != nil {
			klog.Errorf("fakeobjc: run: %v", err)
			return objc.Nil
		}
		t := rt.get(target, kindTensor)
		data, err := encodeValues(result, t.dtype)
		if err != nil {
			klog.Errorf("fakeobjc: run: %v", err)
			return objc.Nil
		}
		values = append(values, rt.alloc(&object{
			kind:  kindTensorData,
			data:  data,
			shape: t.shape,
			dtype: t.dtype,
		}))
		keys = append(keys, target)
	}
	return rt.autorelease(rt.NewDictionary(keys, values))
}

// eval computes a tensor's value from the placeholder environment.
func (rt *Runtime) eval(tensor objc.Ref, env map[objc.Ref][]float64) ([]float64, error) {
	t := rt.get(tensor, kindTensor)
	if t.folded != nil {
		return t.folded, nil
	}
	switch t.op {
	case "placeholder":
		values, fed := env[tensor]
		if !fed {
			return nil, errors.Errorf("placeholder %#x was not fed", uintptr(tensor))
		}
		return values, nil
	case "constant":
		return t.folded, nil
	}
	kernel, known := binaryKernels[t.op]
	if !known || len(t.inputs) != 2 {
		return nil, errors.Errorf("cannot evaluate tensor %#x (op %q)", uintptr(tensor), t.op)
	}
	lhs, err := rt.eval(t.inputs[0], env)
	if err != nil {
		return nil, err
	}
	rhs, err := rt.eval(t.inputs[1], env)
	if err != nil {
		return nil, err
	}
	return applyKernel(kernel, lhs, rhs)
}
