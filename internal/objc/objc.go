// Package objc defines the foreign call surface of the MPSGraph binding.
//
// Everything the bridge and the graph layer do with the Objective-C runtime
// goes through the Runtime interface defined here. The real implementation
// (sub-package objcdarwin) translates each method into an Objective-C message
// send; the test implementation (sub-package fakeobjc) emulates the retain
// count and autorelease semantics in pure Go, which is what makes the
// ownership discipline of the bridge testable on any platform.
//
// A Ref is an opaque reference to one foreign object. It is never
// dereferenced by host code; 0 is the foreign nil.
package objc

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Ref is an opaque reference to a foreign-runtime object.
// The zero value is the foreign nil.
type Ref uintptr

// Nil is the foreign nil reference.
const Nil Ref = 0

// IsNil reports whether r is the foreign nil.
func (r Ref) IsNil() bool { return r == 0 }

// Runtime is the complete foreign call surface used by the binding.
//
// Ownership conventions, uniform across implementations:
//
//   - Methods documented "+1" return a reference the caller owns and must
//     eventually Release (the "new"/"copy" Objective-C convention).
//   - Methods documented "transient" return a reference registered with the
//     innermost autorelease pool; the caller must Retain it to keep it alive
//     past the pool (the "autoreleased" convention).
//   - Methods documented "borrowed" return a reference owned by another
//     object the caller already holds; it must not outlive that owner.
//
// No Runtime method is safe for concurrent use on the same object without
// external synchronization; the foreign retain count itself is thread-safe.
type Runtime interface {
	// Name returns the short name the runtime was registered under.
	Name() string

	// Retain increments the foreign retain count and returns its argument.
	Retain(ref Ref) Ref

	// Release decrements the foreign retain count.
	Release(ref Ref)

	// RetainCount returns the current foreign retain count for ref.
	// It exists for tests and leak diagnostics only; production code must
	// never base decisions on it.
	RetainCount(ref Ref) int64

	// PoolPush opens a new autorelease pool scope and returns its token.
	PoolPush() Ref

	// PoolPop closes the pool scope identified by token, releasing every
	// transient reference registered since the matching PoolPush.
	PoolPop(token Ref)

	// NewString creates a foreign string. +1.
	NewString(s string) Ref

	// GoString converts a foreign string reference back to a Go string.
	GoString(ref Ref) string

	// NewNumber creates a foreign boxed integer. +1.
	NewNumber(value int64) Ref

	// NumberValue unboxes a foreign number.
	NumberValue(ref Ref) int64

	// NewArray creates an immutable foreign array from items, preserving
	// order. The array retains its elements. +1.
	NewArray(items []Ref) Ref

	// NewMutableArray creates an empty mutable foreign array. +1.
	NewMutableArray() Ref

	// ArrayLen returns the number of elements of a foreign array.
	ArrayLen(array Ref) int

	// ArrayAt returns the element at index i. Borrowed.
	ArrayAt(array Ref, i int) Ref

	// ArrayAppend appends item to a mutable foreign array, retaining it.
	ArrayAppend(array, item Ref)

	// NewDictionary builds a foreign keyed collection from parallel key and
	// value slices in one call. Keys are compared by foreign identity. The
	// dictionary retains keys and values. +1.
	NewDictionary(keys, values []Ref) Ref

	// NewMutableDictionary creates an empty mutable foreign dictionary. +1.
	NewMutableDictionary(capacity int) Ref

	// DictionarySet inserts or replaces one association, retaining both key
	// and value.
	DictionarySet(dict, key, value Ref)

	// DictionaryLen returns the number of associations.
	DictionaryLen(dict Ref) int

	// DictionaryKeys returns a foreign array holding every key exactly
	// once. Transient.
	DictionaryKeys(dict Ref) Ref

	// DictionaryGet returns the value associated with key, or nil if
	// absent. Borrowed.
	DictionaryGet(dict, key Ref) Ref

	GraphAPI
}

// GraphAPI is the MPSGraph slice of the foreign surface: graph, device and
// tensor-data constructors, selector-dispatched operations, the run entry
// point, and the control-flow constructs that consume trampolines.
type GraphAPI interface {
	// NewGraph creates an empty graph. +1.
	NewGraph() Ref

	// NewDevice creates a graph device bound to the default Metal device. +1.
	NewDevice() Ref

	// NewTensorData creates a tensor-data object holding a copy of data,
	// with the given shape array and data type code. +1.
	NewTensorData(device Ref, data []byte, shape Ref, dataType uint32) Ref

	// TensorDataBytes reads back the contents of a tensor-data object.
	TensorDataBytes(tensorData Ref) ([]byte, error)

	// TensorDataDType returns the data type code of a tensor-data object.
	TensorDataDType(tensorData Ref) uint32

	// TensorDataShape returns the shape of a tensor-data object as a
	// foreign array of numbers. Transient.
	TensorDataShape(tensorData Ref) Ref

	// TensorShape returns the shape of a graph tensor as a foreign array of
	// numbers. Transient. Nil when the tensor has no static shape.
	TensorShape(tensor Ref) Ref

	// TensorDType returns the data type code of a graph tensor.
	TensorDType(tensor Ref) uint32

	// TensorOperation returns the operation that produced tensor. Borrowed:
	// the graph owns its operations for its whole lifetime.
	TensorOperation(tensor Ref) Ref

	// Placeholder creates a graph input tensor. Transient.
	Placeholder(graph, shape Ref, dataType uint32, name Ref) Ref

	// ConstantScalar creates a scalar constant tensor. Transient.
	ConstantScalar(graph Ref, value float64, dataType uint32) Ref

	// ConstantData creates a constant tensor from raw bytes. Transient.
	ConstantData(graph Ref, data []byte, shape Ref, dataType uint32) Ref

	// BinaryOp dispatches a two-tensor operation by its foreign selector
	// name (e.g. "additionWithPrimaryTensor:secondaryTensor:name:").
	// Transient. Nil signals foreign-side failure.
	BinaryOp(graph Ref, selector string, primary, secondary, name Ref) Ref

	// Run executes the graph: feeds is a dictionary of placeholder tensors
	// to tensor-data, targets an array of tensors to compute, targetOps an
	// optional array of operations to complete (nil for none), desc an
	// optional execution descriptor. Returns a dictionary of tensor to
	// tensor-data, or nil. Transient.
	Run(graph, feeds, targets, targetOps, desc Ref) Ref

	// ControlDependency records a dependency construct: the tensors
	// produced by the dependent trampoline only execute after ops complete.
	// Returns the array of result tensors. Transient.
	ControlDependency(graph, ops Ref, dependent TrampolineID, name Ref) Ref

	// If records a conditional construct. elseBranch may be 0.
	// Returns the array of result tensors. Transient.
	If(graph, predicate Ref, thenBranch, elseBranch TrampolineID, name Ref) Ref

	// While records a while-loop construct with its before (condition) and
	// after (body) trampolines. Returns the array of result tensors.
	// Transient.
	While(graph, initialInputs Ref, before, after TrampolineID, name Ref) Ref

	// ForLoop records a bounded loop over [lowerBound, upperBound) with the
	// given step. Returns the array of result tensors. Transient.
	ForLoop(graph, lowerBound, upperBound, step, initialArgs Ref, body TrampolineID, name Ref) Ref

	// ForLoopIterations records a bounded loop with an explicit iteration
	// count tensor. Returns the array of result tensors. Transient.
	ForLoopIterations(graph, iterations, initialArgs Ref, body TrampolineID, name Ref) Ref
}

// Constructor builds a Runtime from a configuration string (may be empty).
type Constructor func(config string) (Runtime, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a runtime implementation under the given name.
// Call during package initialization; the first registered name becomes the
// default when MPSGRAPH_RUNTIME is not set.
func Register(name string, constructor Constructor) {
	if _, found := registeredConstructors[name]; found {
		klog.Warningf("objc.Register: runtime %q registered twice, overriding previous registration", name)
	}
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// RuntimeEnvVar selects the runtime implementation and its configuration, as
// "name" or "name:config".
const RuntimeEnvVar = "MPSGRAPH_RUNTIME"

// New creates a Runtime from a "name" or "name:config" specification.
// An empty spec takes $MPSGRAPH_RUNTIME, falling back to the first
// registered runtime.
func New(spec string) (Runtime, error) {
	if spec == "" {
		spec = os.Getenv(RuntimeEnvVar)
	}
	if spec == "" {
		spec = firstRegistered
	}
	if spec == "" {
		return nil, errors.WithStack(ErrNoRuntime)
	}
	name, config := spec, ""
	if idx := strings.Index(spec, ":"); idx >= 0 {
		name, config = spec[:idx], spec[idx+1:]
	}
	constructor, found := registeredConstructors[name]
	if !found {
		return nil, errors.Errorf("unknown runtime %q (registered: %s) -- on non-darwin platforms only test runtimes are available",
			name, strings.Join(registeredNames(), ", "))
	}
	rt, err := constructor(config)
	if err != nil {
		return nil, errors.WithMessagef(err, "constructing runtime %q", name)
	}
	klog.V(1).Infof("objc: using runtime %q", rt.Name())
	return rt, nil
}

// ErrNoRuntime is returned by New when no runtime implementation was
// registered -- typically a non-darwin build without the test runtime
// imported.
var ErrNoRuntime = errors.New("no Objective-C runtime available")

func registeredNames() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
