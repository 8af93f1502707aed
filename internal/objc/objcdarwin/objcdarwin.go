//go:build darwin && cgo

// Package objcdarwin implements the objc.Runtime interface over the real
// Objective-C runtime and the MetalPerformanceShadersGraph framework.
//
// The Objective-C side lives in bridge.m: C-ABI shims taking and returning
// opaque object pointers (uintptr-sized), the convention the rest of the
// binding manipulates as objc.Ref. Block trampolines created there forward
// to the exported go-functions below, which re-enter Go through
// objc.CallTrampoline; only the integer trampoline ID crosses the boundary,
// never a Go pointer.
package objcdarwin

/*
#cgo LDFLAGS: -framework Foundation -framework Metal -framework MetalPerformanceShaders -framework MetalPerformanceShadersGraph
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"unsafe"

	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
)

// Name of this runtime in the objc registry.
const Name = "darwin"

func init() {
	objc.Register(Name, func(config string) (objc.Runtime, error) {
		if config != "" {
			return nil, errors.Errorf("darwin runtime takes no configuration, got %q", config)
		}
		if C.mpsgb_mps_supported() == 0 {
			return nil, errors.New("MetalPerformanceShadersGraph is not supported on this device")
		}
		return &Runtime{}, nil
	})
}

// Runtime implements objc.Runtime over the Objective-C runtime. It is
// stateless: all state lives on the foreign side.
type Runtime struct{}

var _ objc.Runtime = (*Runtime)(nil)

func ptr(ref objc.Ref) unsafe.Pointer { return unsafe.Pointer(uintptr(ref)) }
func ref(p unsafe.Pointer) objc.Ref   { return objc.Ref(uintptr(p)) }

// Name implements objc.Runtime.
func (rt *Runtime) Name() string { return Name }

// Retain implements objc.Runtime.
func (rt *Runtime) Retain(r objc.Ref) objc.Ref {
	if r.IsNil() {
		return r
	}
	C.mpsgb_retain(ptr(r))
	return r
}

// Release implements objc.Runtime.
func (rt *Runtime) Release(r objc.Ref) {
	if r.IsNil() {
		return
	}
	C.mpsgb_release(ptr(r))
}

// RetainCount implements objc.Runtime. Diagnostic only: the value is
// meaningful solely in the balanced-ownership tests of the bridge.
func (rt *Runtime) RetainCount(r objc.Ref) int64 {
	if r.IsNil() {
		return 0
	}
	return int64(C.mpsgb_retain_count(ptr(r)))
}

// PoolPush implements objc.Runtime.
func (rt *Runtime) PoolPush() objc.Ref {
	return ref(C.mpsgb_pool_push())
}

// PoolPop implements objc.Runtime.
func (rt *Runtime) PoolPop(token objc.Ref) {
	C.mpsgb_pool_pop(ptr(token))
}

// NewString implements objc.Runtime.
func (rt *Runtime) NewString(s string) objc.Ref {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	return ref(C.mpsgb_string_new(cs))
}

// GoString implements objc.Runtime.
func (rt *Runtime) GoString(r objc.Ref) string {
	cs := C.mpsgb_string_utf8(ptr(r))
	defer C.free(unsafe.Pointer(cs))
	return C.GoString(cs)
}

// NewNumber implements objc.Runtime.
func (rt *Runtime) NewNumber(value int64) objc.Ref {
	return ref(C.mpsgb_number_new(C.int64_t(value)))
}

// NumberValue implements objc.Runtime.
func (rt *Runtime) NumberValue(r objc.Ref) int64 {
	return int64(C.mpsgb_number_value(ptr(r)))
}

func refsPointer(refs []objc.Ref) *unsafe.Pointer {
	if len(refs) == 0 {
		return nil
	}
	// objc.Ref is pointer-sized by construction; the foreign objects it
	// refers to are not Go memory, so passing the slice base is safe.
	return (*unsafe.Pointer)(unsafe.Pointer(unsafe.SliceData(refs)))
}

// NewArray implements objc.Runtime.
func (rt *Runtime) NewArray(items []objc.Ref) objc.Ref {
	return ref(C.mpsgb_array_new(refsPointer(items), C.size_t(len(items))))
}

// NewMutableArray implements objc.Runtime.
func (rt *Runtime) NewMutableArray() objc.Ref {
	return ref(C.mpsgb_mutable_array_new())
}

// ArrayLen implements objc.Runtime.
func (rt *Runtime) ArrayLen(array objc.Ref) int {
	return int(C.mpsgb_array_len(ptr(array)))
}

// ArrayAt implements objc.Runtime.
func (rt *Runtime) ArrayAt(array objc.Ref, i int) objc.Ref {
	return ref(C.mpsgb_array_at(ptr(array), C.size_t(i)))
}

// ArrayAppend implements objc.Runtime.
func (rt *Runtime) ArrayAppend(array, item objc.Ref) {
	C.mpsgb_array_append(ptr(array), ptr(item))
}

// NewDictionary implements objc.Runtime.
func (rt *Runtime) NewDictionary(keys, values []objc.Ref) objc.Ref {
	return ref(C.mpsgb_dictionary_new(refsPointer(values), refsPointer(keys), C.size_t(len(keys))))
}

// NewMutableDictionary implements objc.Runtime.
func (rt *Runtime) NewMutableDictionary(capacity int) objc.Ref {
	return ref(C.mpsgb_mutable_dictionary_new(C.size_t(capacity)))
}

// DictionarySet implements objc.Runtime.
func (rt *Runtime) DictionarySet(dict, key, value objc.Ref) {
	C.mpsgb_dictionary_set(ptr(dict), ptr(key), ptr(value))
}

// DictionaryLen implements objc.Runtime.
func (rt *Runtime) DictionaryLen(dict objc.Ref) int {
	return int(C.mpsgb_dictionary_len(ptr(dict)))
}

// DictionaryKeys implements objc.Runtime.
func (rt *Runtime) DictionaryKeys(dict objc.Ref) objc.Ref {
	return ref(C.mpsgb_dictionary_keys(ptr(dict)))
}

// DictionaryGet implements objc.Runtime.
func (rt *Runtime) DictionaryGet(dict, key objc.Ref) objc.Ref {
	return ref(C.mpsgb_dictionary_get(ptr(dict), ptr(key)))
}

// NewGraph implements objc.Runtime.
func (rt *Runtime) NewGraph() objc.Ref {
	return ref(C.mpsgb_graph_new())
}

// NewDevice implements objc.Runtime.
func (rt *Runtime) NewDevice() objc.Ref {
	return ref(C.mpsgb_device_new())
}

// NewTensorData implements objc.Runtime.
func (rt *Runtime) NewTensorData(device objc.Ref, data []byte, shape objc.Ref, dataType uint32) objc.Ref {
	var base unsafe.Pointer
	if len(data) > 0 {
		base = unsafe.Pointer(unsafe.SliceData(data))
	}
	return ref(C.mpsgb_tensor_data_new(ptr(device), base, C.size_t(len(data)), ptr(shape), C.uint32_t(dataType)))
}

// TensorDataBytes implements objc.Runtime.
func (rt *Runtime) TensorDataBytes(tensorData objc.Ref) ([]byte, error) {
	var size C.size_t
	base := C.mpsgb_tensor_data_bytes(ptr(tensorData), &size)
	if base == nil {
		return nil, errors.New("MPSGraphTensorData readback failed")
	}
	defer C.free(base)
	return C.GoBytes(base, C.int(size)), nil
}

// TensorDataDType implements objc.Runtime.
func (rt *Runtime) TensorDataDType(tensorData objc.Ref) uint32 {
	return uint32(C.mpsgb_tensor_data_dtype(ptr(tensorData)))
}

// TensorDataShape implements objc.Runtime.
func (rt *Runtime) TensorDataShape(tensorData objc.Ref) objc.Ref {
	return ref(C.mpsgb_tensor_data_shape(ptr(tensorData)))
}

// TensorShape implements objc.Runtime.
func (rt *Runtime) TensorShape(tensor objc.Ref) objc.Ref {
	return ref(C.mpsgb_tensor_shape(ptr(tensor)))
}

// TensorDType implements objc.Runtime.
func (rt *Runtime) TensorDType(tensor objc.Ref) uint32 {
	return uint32(C.mpsgb_tensor_dtype(ptr(tensor)))
}

// TensorOperation implements objc.Runtime.
func (rt *Runtime) TensorOperation(tensor objc.Ref) objc.Ref {
	return ref(C.mpsgb_tensor_operation(ptr(tensor)))
}

// Placeholder implements objc.Runtime.
func (rt *Runtime) Placeholder(graph, shape objc.Ref, dataType uint32, name objc.Ref) objc.Ref {
	return ref(C.mpsgb_placeholder(ptr(graph), ptr(shape), C.uint32_t(dataType), ptr(name)))
}

// ConstantScalar implements objc.Runtime.
func (rt *Runtime) ConstantScalar(graph objc.Ref, value float64, dataType uint32) objc.Ref {
	return ref(C.mpsgb_constant_scalar(ptr(graph), C.double(value), C.uint32_t(dataType)))
}

// ConstantData implements objc.Runtime.
func (rt *Runtime) ConstantData(graph objc.Ref, data []byte, shape objc.Ref, dataType uint32) objc.Ref {
	var base unsafe.Pointer
	if len(data) > 0 {
		base = unsafe.Pointer(unsafe.SliceData(data))
	}
	return ref(C.mpsgb_constant_data(ptr(graph), base, C.size_t(len(data)), ptr(shape), C.uint32_t(dataType)))
}

// BinaryOp implements objc.Runtime: dispatches by selector name, e.g.
// "additionWithPrimaryTensor:secondaryTensor:name:".
func (rt *Runtime) BinaryOp(graph objc.Ref, selector string, primary, secondary, name objc.Ref) objc.Ref {
	cs := C.CString(selector)
	defer C.free(unsafe.Pointer(cs))
	return ref(C.mpsgb_binary_op(ptr(graph), cs, ptr(primary), ptr(secondary), ptr(name)))
}

// Run implements objc.Runtime.
func (rt *Runtime) Run(graph, feeds, targets, targetOps, desc objc.Ref) objc.Ref {
	return ref(C.mpsgb_run(ptr(graph), ptr(feeds), ptr(targets), ptr(targetOps), ptr(desc)))
}

// ControlDependency implements objc.Runtime.
func (rt *Runtime) ControlDependency(graph, ops objc.Ref, dependent objc.TrampolineID, name objc.Ref) objc.Ref {
	return ref(C.mpsgb_control_dependency(ptr(graph), ptr(ops), C.uintptr_t(dependent), ptr(name)))
}

// If implements objc.Runtime.
func (rt *Runtime) If(graph, predicate objc.Ref, thenBranch, elseBranch objc.TrampolineID, name objc.Ref) objc.Ref {
	return ref(C.mpsgb_if(ptr(graph), ptr(predicate), C.uintptr_t(thenBranch), C.uintptr_t(elseBranch), ptr(name)))
}

// While implements objc.Runtime.
func (rt *Runtime) While(graph, initialInputs objc.Ref, before, after objc.TrampolineID, name objc.Ref) objc.Ref {
	return ref(C.mpsgb_while(ptr(graph), ptr(initialInputs), C.uintptr_t(before), C.uintptr_t(after), ptr(name)))
}

// ForLoop implements objc.Runtime.
func (rt *Runtime) ForLoop(graph, lowerBound, upperBound, step, initialArgs objc.Ref, body objc.TrampolineID, name objc.Ref) objc.Ref {
	return ref(C.mpsgb_for(ptr(graph), ptr(lowerBound), ptr(upperBound), ptr(step), ptr(initialArgs), C.uintptr_t(body), ptr(name)))
}

// ForLoopIterations implements objc.Runtime.
func (rt *Runtime) ForLoopIterations(graph, iterations, initialArgs objc.Ref, body objc.TrampolineID, name objc.Ref) objc.Ref {
	return ref(C.mpsgb_for_iterations(ptr(graph), ptr(iterations), ptr(initialArgs), C.uintptr_t(body), ptr(name)))
}

// The exported functions below are the only entry points through which the
// Objective-C block shims re-enter Go. They forward to the bridge's
// trampoline dispatcher, which contains panics; nothing here may panic.

//export goTrampolineCondition
func goTrampolineCondition(id C.uintptr_t, inputs, results unsafe.Pointer) unsafe.Pointer {
	out := objc.CallTrampoline(objc.TrampolineID(id), objc.BlockCondition,
		[]objc.Ref{ref(inputs), ref(results)})
	return ptr(out)
}

//export goTrampolineList
func goTrampolineList(id C.uintptr_t, inputs unsafe.Pointer) unsafe.Pointer {
	out := objc.CallTrampoline(objc.TrampolineID(id), objc.BlockList,
		[]objc.Ref{ref(inputs)})
	return ptr(out)
}

//export goTrampolineIndexedList
func goTrampolineIndexedList(id C.uintptr_t, index, inputs unsafe.Pointer) unsafe.Pointer {
	out := objc.CallTrampoline(objc.TrampolineID(id), objc.BlockIndexedList,
		[]objc.Ref{ref(index), ref(inputs)})
	return ptr(out)
}
